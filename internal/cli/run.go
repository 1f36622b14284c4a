package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline once for a partition",
		Long: `Run executes extract_file and extract_tables concurrently, then
load_warehouse once both have succeeded. A failed extraction skips the load
and the command exits with the failing stage's code.

Examples:
  # Today's partition with pgetl.yaml from the working directory
  pgetl run

  # Backfill a date against explicit databases
  pgetl run --date 2025-01-15 \
    --source-url postgres://etl@source:5432/banvic \
    --warehouse-url postgres://etl@dw:5432/warehouse`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.context()
			defer cancel()

			report, err := a.pipeline.Run(ctx, a.partition)
			if report != nil {
				for _, s := range report.Steps {
					a.logger.Verbose("%s: %s", s.Name, s.Status)
				}
			}
			if err != nil {
				a.logger.Error("Run for partition %s failed: %v", a.partition, err)
				return fmt.Errorf("pipeline run failed: %w", err)
			}
			return nil
		},
	}
}

// newStageCommand runs a single stage, for schedulers that own the graph.
func newStageCommand(flags *globalFlags, use, stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + ".\n\n" +
			"Runs only the " + stage + " step for the partition. The load step refuses\n" +
			"to start (exit 15) until both extraction steps have completed for the\n" +
			"same partition.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.context()
			defer cancel()

			if _, err := a.pipeline.RunStage(ctx, stage, a.partition); err != nil {
				a.logger.Error("Stage %s for partition %s failed: %v", stage, a.partition, err)
				return err
			}
			return nil
		},
	}
}
