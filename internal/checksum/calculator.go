// Package checksum computes the SHA-256 digests recorded in stage manifests.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Calculator computes content checksums.
type Calculator interface {
	// Sum returns the hex digest of content.
	Sum(content []byte) string

	// SumReader digests r to EOF and returns the hex digest and byte count.
	SumReader(r io.Reader) (string, int64, error)
}

// SHA256 is a zero-size type and is safe for concurrent use.
type SHA256 struct{}

func New() SHA256 {
	return SHA256{}
}

func (c SHA256) Sum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (c SHA256) SumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Writer digests everything written through it.
type Writer struct {
	w io.Writer
	h hash.Hash
	n int64
}

// NewWriter returns a Writer that forwards to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: sha256.New()}
}

func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.h.Write(p[:n])
	cw.n += int64(n)
	return n, err
}

// Sum returns the hex digest of the bytes written so far.
func (cw *Writer) Sum() string {
	return hex.EncodeToString(cw.h.Sum(nil))
}

// Written returns the number of bytes written so far.
func (cw *Writer) Written() int64 {
	return cw.n
}
