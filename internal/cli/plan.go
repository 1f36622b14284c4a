package cli

import (
	"github.com/spf13/cobra"
)

func newPlanCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the workflow graph for an external scheduler",
		Long: `Plan prints the pipeline as YAML: name, cron schedule, tags, execution
order and, per step, its dependencies and declared inputs and outputs.
Nothing is connected to or written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.pipeline.Plan()
			if err != nil {
				return err
			}
			out, err := plan.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
