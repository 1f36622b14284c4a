package pgetl

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess            = 0  // Run or stage completed successfully
	ExitGeneralError       = 1  // Unknown or unclassified error
	ExitUsageError         = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic              = 3  // Internal panic (unexpected crash)
	ExitConfigError        = 10 // Invalid configuration or parameters
	ExitConnectionError    = 11 // Failed to connect to a database
	ExitSourceUnavailable  = 12 // Source file or relational source unavailable
	ExitWriteFailed        = 13 // Snapshot or warehouse write failed
	ExitSchemaConflict     = 14 // Warehouse object incompatible with replace-load
	ExitUpstreamIncomplete = 15 // Loader ran before both extractions completed
	ExitNoArtifacts        = 16 // Nothing to load and artifacts were required
)

// Stage names. They double as workflow step names and manifest file names.
const (
	StageExtractFile   = "extract_file"
	StageExtractTables = "extract_tables"
	StageLoadWarehouse = "load_warehouse"
)

const (
	// DefaultPipelineName is the workflow identifier published to schedulers.
	DefaultPipelineName = "banvic_pipeline"

	// DefaultSchedule runs the pipeline daily at 04:35.
	DefaultSchedule = "35 4 * * *"

	// DefaultOutputRoot is the directory that holds run partitions.
	DefaultOutputRoot = "/opt/airflow/data_output"

	// DefaultSourceFile is the flat file picked up by the file extractor.
	DefaultSourceFile = "/opt/airflow/data_source/transacoes.csv"

	// DefaultSourceSchema is the schema holding the source table catalog.
	DefaultSourceSchema = "public"

	// DefaultWarehouseSchema is the schema replace-loads write into.
	DefaultWarehouseSchema = "dw"

	// PartitionDateLayout formats a run partition's directory name (YYYY-MM-DD).
	PartitionDateLayout = "2006-01-02"

	// SnapshotExtension is the file extension of every extracted snapshot.
	SnapshotExtension = ".csv"

	// DefaultStageTimeout bounds a whole pipeline invocation.
	DefaultStageTimeout = 30 * time.Minute

	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of retry attempts.
	DefaultRetryMaxAttempts = 3

	// DefaultManagementDB is the database used when a connection names none.
	DefaultManagementDB = "postgres"
)

// DefaultTables is the source table catalog, extracted in this order.
var DefaultTables = []string{
	"agencias",
	"clientes",
	"colaborador_agencia",
	"colaboradores",
	"contas",
	"propostas_credito",
}

// DefaultTags label the workflow for schedulers that group by tag.
var DefaultTags = []string{"ingestao", "banvic", "dw"}
