// Package files groups the snapshot file handling used by the pipeline stages.
//
// Sub-packages:
//   - filesystem: filesystem abstraction with OS and in-memory implementations
//   - scanner: discovery of CSV snapshots inside a date partition
//
// # Usage
//
//	import (
//	    "github.com/vvka-141/pgetl/internal/files/filesystem"
//	    "github.com/vvka-141/pgetl/internal/files/scanner"
//	)
//
//	fsProvider := filesystem.NewOSFileSystem()
//	snapshotScanner := scanner.NewScannerWithFS(checksum.New(), fsProvider)
//	artifacts, err := snapshotScanner.ScanPartition(partition.Today("/opt/airflow/data_output"))
package files
