package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/pgetl/internal/config"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

const rootLong = `pgetl runs the banvic ingestion pipeline.

Two extraction stages snapshot today's inputs into a date partition under the
output root, then the loader replace-loads every snapshot into the warehouse:

  extract_file ────┐
                   ├──> load_warehouse
  extract_tables ──┘

  <root>/<YYYY-MM-DD>/csv/<file>        copy of the source CSV
  <root>/<YYYY-MM-DD>/sql/<table>.csv   SELECT * of each catalog table
  dw.<name>                             one warehouse table per snapshot

Scheduling is left to an external scheduler: 'pgetl plan' prints the step
graph and the cron schedule, 'pgetl run' executes the whole graph once and
the per-stage commands run a single step.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration
  11 - Database connection failed
  12 - Source file or table unavailable
  13 - Output or warehouse write failed, or snapshot changed after extraction
  14 - Warehouse object conflicts with a replace-load
  15 - Load started before both extractions completed
  16 - Nothing to load (load.require_artifacts)`

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath   string
	verbose      bool
	date         string
	outputRoot   string
	timeout      time.Duration
	sourceURL    string
	warehouseURL string
}

// NewRootCommand builds the pgetl command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "pgetl",
		Short:         "Daily extract and warehouse load for banvic",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.ConfigFileName,
		"Path to pgetl.yaml\n"+
			"A missing file at the default path means built-in defaults")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose output for all commands")
	pf.StringVar(&flags.date, "date", "",
		"Partition date (YYYY-MM-DD, default: today in local time)\n"+
			"Rerunning a date replaces its snapshots and warehouse tables")
	pf.StringVar(&flags.outputRoot, "output-root", "",
		"Directory holding date partitions (overrides pipeline.output_root)")
	pf.DurationVar(&flags.timeout, "timeout", pgetl.DefaultStageTimeout,
		"Catastrophic failure protection timeout for the whole invocation\n"+
			"Overrides pipeline.timeout when set. Examples: 30s, 5m, 1h30m")
	pf.StringVar(&flags.sourceURL, "source-url", "",
		"Source database URL: postgres://, mysql:// or sqlserver://\n"+
			"Precedence: --source-url > $PGETL_SOURCE_URL > source.url > $DATABASE_URL > PG* settings")
	pf.StringVar(&flags.warehouseURL, "warehouse-url", "",
		"Warehouse PostgreSQL URL\n"+
			"Precedence: --warehouse-url > $PGETL_WAREHOUSE_URL > warehouse.url > $DATABASE_URL > PG* settings")

	root.AddCommand(
		newRunCommand(flags),
		newStageCommand(flags, "extract-file", pgetl.StageExtractFile,
			"Copy the source CSV into today's partition"),
		newStageCommand(flags, "extract-tables", pgetl.StageExtractTables,
			"Snapshot every catalog table into today's partition"),
		newStageCommand(flags, "load", pgetl.StageLoadWarehouse,
			"Replace-load today's snapshots into the warehouse"),
		newPlanCommand(flags),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout)
		return nil
	}
	err := NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
