package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/consolidation/core/decision"
	"github.com/kilianp07/consolidation/infra/logger"
	"github.com/kilianp07/consolidation/infra/store/memory"
	"github.com/kilianp07/consolidation/qa/scenarios"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <scenario.yaml>",
	Short: "Run one scenario file through the decision pipeline and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  evaluateScenario,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func evaluateScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Logging.Level)
	sc, err := scenarios.Load(args[0])
	if err != nil {
		return err
	}
	svc := decision.NewService(cfg.Decision, memory.NewDecisionStore(),
		decision.WithConstraints(cfg.Constraints),
		decision.WithLogger(logger.New("evaluate")),
		decision.WithClock(scenarios.Clock(sc)),
	)
	resp, runErr := scenarios.Run(cmd.Context(), svc, sc)
	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return runErr
}
