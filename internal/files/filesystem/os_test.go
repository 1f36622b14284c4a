package filesystem

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_WriteFileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	p := NewOSFileSystem()
	target := filepath.Join(dir, "sql", "contas.csv")

	if err := p.MkdirAll(filepath.Dir(target)); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := p.WriteFile(target, func(w io.Writer) error {
		_, err := io.WriteString(w, "id\n1\n")
		return err
	}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err := p.WriteFile(target, func(w io.Writer) error {
		io.WriteString(w, "id\n")
		return errors.New("scan failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "id\n1\n" {
		t.Errorf("content = %q, previous content should survive a failed write", content)
	}

	entries, _ := os.ReadDir(filepath.Dir(target))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestOSFileSystem_OpenFileMissing(t *testing.T) {
	_, err := NewOSFileSystem().OpenFile(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestOSFileSystem_OpenFileDirectory(t *testing.T) {
	if _, err := NewOSFileSystem().OpenFile(t.TempDir()); err == nil {
		t.Fatal("expected error opening a directory as a file")
	}
}

func TestOSFileSystem_WalkRelativePaths(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "csv"), 0o755)
	os.WriteFile(filepath.Join(dir, "csv", "t.csv"), []byte("a\n"), 0o644)

	d, err := NewOSFileSystem().Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	var rel []string
	d.Walk(func(f File, err error) error {
		if err == nil && !f.Info().IsDir() {
			rel = append(rel, f.RelativePath())
		}
		return nil
	})
	if len(rel) != 1 || rel[0] != "csv/t.csv" {
		t.Errorf("relative paths = %v", rel)
	}
}

func TestOSFileSystem_Remove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extract_tables.yaml")
	if err := os.WriteFile(path, []byte("stage: extract_tables\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewOSFileSystem()
	if err := p.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("file still present: %v", err)
	}
	if err := p.Remove(path); err != nil {
		t.Errorf("Remove of missing file = %v, want nil", err)
	}
}
