package pgetl

import (
	"errors"
	"strings"
)

// Sentinel errors for the failure classes a pipeline stage can report.
// Callers distinguish them with errors.Is().
//
// Example usage:
//
//	_, err := loader.Load(ctx, partition)
//	if errors.Is(err, pgetl.ErrUpstreamIncomplete) {
//	    // an extractor has not finished for this partition
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrConnectionFailed indicates a database connection could not be established.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrSourceUnavailable indicates a source file is missing or unreadable,
	// or the relational source could not be reached or read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrWriteFailed indicates an output location or the warehouse could not be written.
	ErrWriteFailed = errors.New("write failed")

	// ErrArtifactMismatch indicates a snapshot on disk no longer matches its stage manifest.
	ErrArtifactMismatch = errors.New("artifact does not match manifest")

	// ErrSchemaConflict indicates a warehouse object is incompatible with a replace-load.
	ErrSchemaConflict = errors.New("schema conflict")

	// ErrUpstreamIncomplete indicates the loader was asked to run before both
	// extraction stages completed for the partition.
	ErrUpstreamIncomplete = errors.New("upstream stage incomplete")

	// ErrNoArtifacts indicates discovery found nothing to load while artifacts were required.
	ErrNoArtifacts = errors.New("no artifacts to load")
)

// usageErrorPatterns are the message prefixes cobra uses for command line misuse.
var usageErrorPatterns = []string{
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"required flag",
	"invalid argument",
}

// ExitCodeForError returns the exit code the external scheduler sees for err.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.Is(err, ErrUpstreamIncomplete):
		return ExitUpstreamIncomplete
	case errors.Is(err, ErrNoArtifacts):
		return ExitNoArtifacts
	case errors.Is(err, ErrSchemaConflict):
		return ExitSchemaConflict
	case errors.Is(err, ErrWriteFailed), errors.Is(err, ErrArtifactMismatch):
		return ExitWriteFailed
	case errors.Is(err, ErrSourceUnavailable):
		return ExitSourceUnavailable
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	}

	errStr := err.Error()
	for _, p := range usageErrorPatterns {
		if strings.HasPrefix(errStr, p) {
			return ExitUsageError
		}
	}

	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
