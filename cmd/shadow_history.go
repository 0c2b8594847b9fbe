package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/consolidation/core/shadow"
	"github.com/kilianp07/consolidation/infra/logger"
	"github.com/kilianp07/consolidation/infra/store"
	"github.com/kilianp07/consolidation/pkg/export"
)

var (
	historyParcel string
	historyLimit  int
	historyFormat string
)

var shadowHistoryCmd = &cobra.Command{
	Use:   "shadow-history",
	Short: "Export recent shadow decisions as JSON or CSV",
	RunE:  shadowHistory,
}

func init() {
	shadowHistoryCmd.Flags().StringVar(&historyParcel, "parcel", "", "only decisions for this parcel")
	shadowHistoryCmd.Flags().IntVar(&historyLimit, "limit", shadow.DefaultHistoryLimit, "maximum number of decisions")
	shadowHistoryCmd.Flags().StringVar(&historyFormat, "format", "json", "output format: json or csv")
	rootCmd.AddCommand(shadowHistoryCmd)
}

func shadowHistory(cmd *cobra.Command, _ []string) error {
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

	cmp := shadow.NewComparator(cfg.Shadow.Config, backend.Decisions, shadow.WithLogger(logger.New("shadow-history")))
	defer cmp.Close()
	recs, err := cmp.History(cmd.Context(), historyParcel, historyLimit)
	if err != nil {
		return err
	}
	return export.Write(cmd.OutOrStdout(), historyFormat, recs)
}
