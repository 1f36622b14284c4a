package filesystem

import (
	"errors"
	"io"
	"io/fs"
	"sync"
	"testing"
)

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	if err := mfs.MkdirAll("2024-01-02/csv"); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	err := mfs.WriteFile("2024-01-02/csv/a.csv", func(w io.Writer) error {
		_, err := io.WriteString(w, "id\n1\n")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	content, err := mfs.ReadFile("/out/2024-01-02/csv/a.csv")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "id\n1\n" {
		t.Errorf("content = %q", content)
	}

	info, err := mfs.Stat("2024-01-02/csv/a.csv")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 5 || info.IsDir() {
		t.Errorf("unexpected info: size=%d dir=%v", info.Size(), info.IsDir())
	}
}

func TestMemoryFileSystem_FailedWriteKeepsPrevious(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	mfs.AddFile("t.csv", "old")

	err := mfs.WriteFile("t.csv", func(w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("query failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	content, _ := mfs.ReadFile("t.csv")
	if string(content) != "old" {
		t.Errorf("content = %q, want previous content", content)
	}
}

func TestMemoryFileSystem_WriteWithoutParent(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	err := mfs.WriteFile("missing/t.csv", func(w io.Writer) error { return nil })
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_FailWrites(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	mfs.FailWrites = "/out/locked"

	if err := mfs.MkdirAll("locked/csv"); !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected fs.ErrPermission, got %v", err)
	}
	if err := mfs.MkdirAll("open/csv"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryFileSystem_MissingPaths(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")

	if _, err := mfs.ReadFile("nope.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile: expected fs.ErrNotExist, got %v", err)
	}
	if _, err := mfs.OpenFile("nope.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("OpenFile: expected fs.ErrNotExist, got %v", err)
	}
	if _, err := mfs.Open("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open: expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_WalkIsSorted(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	mfs.AddFile("2024-01-02/sql/contas.csv", "")
	mfs.AddFile("2024-01-02/csv/transacoes.csv", "")
	mfs.AddFile("2024-01-02/sql/agencias.csv", "")

	dir, err := mfs.Open("2024-01-02")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var files []string
	err = dir.Walk(func(f File, err error) error {
		if err != nil {
			return err
		}
		if !f.Info().IsDir() {
			files = append(files, f.RelativePath())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []string{"csv/transacoes.csv", "sql/agencias.csv", "sql/contas.csv"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestMemoryFileSystem_WalkRecoversPanic(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	mfs.AddFile("a.csv", "")

	dir, _ := mfs.Open(".")
	err := dir.Walk(func(f File, err error) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestMemoryFileSystem_ConcurrentWrites(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	if err := mfs.MkdirAll("p"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('a'+n)) + ".csv"
			if err := mfs.WriteFile("p/"+name, func(w io.Writer) error {
				_, err := io.WriteString(w, name)
				return err
			}); err != nil {
				t.Errorf("WriteFile: %v", err)
			}
		}(i)
	}
	wg.Wait()

	dir, _ := mfs.Open("p")
	count := 0
	dir.Walk(func(f File, err error) error {
		if !f.Info().IsDir() {
			count++
		}
		return nil
	})
	if count != 10 {
		t.Errorf("count = %d, want 10", count)
	}
}

func TestMemoryFileSystem_Remove(t *testing.T) {
	mfs := NewMemoryFileSystem("/out")
	mfs.AddFile("p/_manifests/extract_file.yaml", "stage: extract_file")

	if err := mfs.Remove("p/_manifests/extract_file.yaml"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := mfs.Stat("p/_manifests/extract_file.yaml"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat after Remove = %v, want ErrNotExist", err)
	}
	if err := mfs.Remove("p/_manifests/extract_file.yaml"); err != nil {
		t.Errorf("second Remove = %v, want nil", err)
	}
	if err := mfs.Remove("p/_manifests"); err == nil {
		t.Error("Remove of a directory should fail")
	}
}
