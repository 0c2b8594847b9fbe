package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/consolidation/core/shadow"
	"github.com/kilianp07/consolidation/infra/logger"
	"github.com/kilianp07/consolidation/infra/store"
)

var reportHours float64

var shadowReportCmd = &cobra.Command{
	Use:   "shadow-report",
	Short: "Print the shadow mode performance report from the configured store",
	RunE:  shadowReport,
}

func init() {
	shadowReportCmd.Flags().Float64Var(&reportHours, "hours", 24, "report window in hours")
	rootCmd.AddCommand(shadowReportCmd)
}

func shadowReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Logging.Level)
	backend, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("store %s: %w", cfg.Store.Type, err)
	}
	defer backend.Close()

	cmp := shadow.NewComparator(cfg.Shadow.Config, backend.Decisions, shadow.WithLogger(logger.New("shadow-report")))
	defer cmp.Close()
	rep, err := cmp.GeneratePerformanceReport(cmd.Context(), reportHours)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rep)
}
