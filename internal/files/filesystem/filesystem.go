// Package filesystem abstracts the file operations the pipeline performs on
// run partitions, so stages can be tested against an in-memory tree.
package filesystem

import (
	"io"
	"io/fs"
)

// FileInfo is an alias for fs.FileInfo from the standard library.
type FileInfo = fs.FileInfo

// File represents an individual file with its metadata and content accessor
type File interface {
	// Path returns the absolute path to the file
	Path() string

	// RelativePath returns the path relative to the walked directory, with forward slashes
	RelativePath() string

	Info() FileInfo

	ReadContent() ([]byte, error)
}

// Directory represents a directory that can be traversed to discover files
type Directory interface {
	Path() string

	// Walk visits every file and directory below Path in lexical order.
	// If fn returns an error, walking stops and Walk returns it.
	Walk(fn func(File, error) error) error
}

// FileSystemProvider is the pipeline's view of the filesystem.
// Missing paths produce errors matching fs.ErrNotExist.
type FileSystemProvider interface {
	// Open opens a directory for walking.
	Open(path string) (Directory, error)

	// OpenFile opens a regular file for streaming reads.
	OpenFile(path string) (io.ReadCloser, error)

	ReadFile(path string) ([]byte, error)

	Stat(path string) (FileInfo, error)

	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error

	// WriteFile replaces path with what write produces. The new content
	// becomes visible only if write returns nil; otherwise the previous
	// file, if any, is left untouched.
	WriteFile(path string, write func(w io.Writer) error) error

	// Remove deletes a file. A missing file is not an error.
	Remove(path string) error
}
