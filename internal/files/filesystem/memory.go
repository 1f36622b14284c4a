package filesystem

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (f *memoryFileInfo) Name() string       { return f.name }
func (f *memoryFileInfo) Size() int64        { return f.size }
func (f *memoryFileInfo) Mode() fs.FileMode  { return f.mode }
func (f *memoryFileInfo) ModTime() time.Time { return f.modTime }
func (f *memoryFileInfo) IsDir() bool        { return f.isDir }
func (f *memoryFileInfo) Sys() interface{}   { return nil }

type memoryFile struct {
	absPath string
	relPath string
	content []byte
	info    fs.FileInfo
}

func (f *memoryFile) Path() string         { return f.absPath }
func (f *memoryFile) RelativePath() string { return f.relPath }
func (f *memoryFile) Info() FileInfo       { return f.info }

func (f *memoryFile) ReadContent() ([]byte, error) {
	return f.content, nil
}

type memoryDirectory struct {
	absPath string
	fs      *MemoryFileSystem
}

func (d *memoryDirectory) Path() string { return d.absPath }

func (d *memoryDirectory) Walk(fn func(File, error) error) error {
	entries := d.fs.entriesUnder(d.absPath)

	for _, entry := range entries {
		var callbackErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					callbackErr = fmt.Errorf("walk callback panicked at %s: %v", entry.absPath, r)
				}
			}()
			callbackErr = fn(entry, nil)
		}()

		if callbackErr != nil {
			return callbackErr
		}
	}
	return nil
}

// MemoryFileSystem implements FileSystemProvider in memory for tests.
// Paths use forward slashes. Safe for concurrent use.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string]*memoryFile
	root  string

	// FailWrites makes WriteFile and MkdirAll fail for paths under the given prefix.
	FailWrites string
}

// NewMemoryFileSystem creates an empty in-memory tree rooted at root.
// Relative paths passed to other methods resolve against root.
func NewMemoryFileSystem(root string) *MemoryFileSystem {
	root = path.Clean(filepath.ToSlash(root))
	mfs := &MemoryFileSystem{
		files: make(map[string]*memoryFile),
		root:  root,
	}
	mfs.files[root] = newMemoryDir(root, ".")
	return mfs
}

func newMemoryDir(absPath, relPath string) *memoryFile {
	return &memoryFile{
		absPath: absPath,
		relPath: relPath,
		info: &memoryFileInfo{
			name:    path.Base(absPath),
			mode:    0o755 | fs.ModeDir,
			modTime: time.Now(),
			isDir:   true,
		},
	}
}

func (mfs *MemoryFileSystem) abs(p string) string {
	p = filepath.ToSlash(p)
	if p == "" || p == "." {
		return mfs.root
	}
	if !path.IsAbs(p) {
		p = path.Join(mfs.root, p)
	}
	return path.Clean(p)
}

func (mfs *MemoryFileSystem) rel(absPath string) string {
	if absPath == mfs.root {
		return "."
	}
	return strings.TrimPrefix(absPath, strings.TrimSuffix(mfs.root, "/")+"/")
}

func notExist(op, p string) error {
	return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
}

// AddFile adds a file, creating parent directories.
func (mfs *MemoryFileSystem) AddFile(filePath string, content string) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	mfs.putFile(mfs.abs(filePath), []byte(content))
}

func (mfs *MemoryFileSystem) putFile(absPath string, content []byte) {
	mfs.files[absPath] = &memoryFile{
		absPath: absPath,
		relPath: mfs.rel(absPath),
		content: content,
		info: &memoryFileInfo{
			name:    path.Base(absPath),
			size:    int64(len(content)),
			mode:    0o644,
			modTime: time.Now(),
		},
	}
	mfs.ensureDirs(path.Dir(absPath))
}

func (mfs *MemoryFileSystem) ensureDirs(dir string) {
	for {
		if _, ok := mfs.files[dir]; ok {
			return
		}
		mfs.files[dir] = newMemoryDir(dir, mfs.rel(dir))
		parent := path.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// entriesUnder returns basePath and everything below it, sorted by path.
func (mfs *MemoryFileSystem) entriesUnder(basePath string) []*memoryFile {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	var entries []*memoryFile
	prefix := strings.TrimSuffix(basePath, "/") + "/"
	for p, file := range mfs.files {
		if p == basePath || strings.HasPrefix(p, prefix) {
			relPath := "."
			if p != basePath {
				relPath = strings.TrimPrefix(p, prefix)
			}
			entries = append(entries, &memoryFile{absPath: p, relPath: relPath, content: file.content, info: file.info})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].absPath < entries[j].absPath
	})
	return entries
}

func (mfs *MemoryFileSystem) lookup(op, p string) (*memoryFile, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	file, ok := mfs.files[mfs.abs(p)]
	if !ok {
		return nil, notExist(op, p)
	}
	return file, nil
}

func (mfs *MemoryFileSystem) Open(openPath string) (Directory, error) {
	file, err := mfs.lookup("open", openPath)
	if err != nil {
		return nil, fmt.Errorf("directory not found: %w", err)
	}
	if !file.info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", openPath)
	}
	return &memoryDirectory{absPath: file.absPath, fs: mfs}, nil
}

func (mfs *MemoryFileSystem) OpenFile(filePath string) (io.ReadCloser, error) {
	content, err := mfs.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (mfs *MemoryFileSystem) ReadFile(filePath string) ([]byte, error) {
	file, err := mfs.lookup("open", filePath)
	if err != nil {
		return nil, err
	}
	if file.info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}
	return file.content, nil
}

func (mfs *MemoryFileSystem) Stat(statPath string) (FileInfo, error) {
	file, err := mfs.lookup("stat", statPath)
	if err != nil {
		return nil, err
	}
	return file.info, nil
}

func (mfs *MemoryFileSystem) MkdirAll(dirPath string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	absPath := mfs.abs(dirPath)
	if err := mfs.checkWritable(absPath); err != nil {
		return err
	}
	if existing, ok := mfs.files[absPath]; ok && !existing.info.IsDir() {
		return fmt.Errorf("mkdir %s: not a directory", dirPath)
	}
	mfs.ensureDirs(absPath)
	return nil
}

func (mfs *MemoryFileSystem) WriteFile(filePath string, write func(w io.Writer) error) error {
	absPath := mfs.abs(filePath)

	mfs.mu.RLock()
	err := mfs.checkWritable(absPath)
	_, parentExists := mfs.files[path.Dir(absPath)]
	mfs.mu.RUnlock()
	if err != nil {
		return err
	}
	if !parentExists {
		return notExist("create", filePath)
	}

	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}

	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	mfs.putFile(absPath, buf.Bytes())
	return nil
}

func (mfs *MemoryFileSystem) Remove(filePath string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	absPath := mfs.abs(filePath)
	if err := mfs.checkWritable(absPath); err != nil {
		return err
	}
	file, ok := mfs.files[absPath]
	if !ok {
		return nil
	}
	if file.info.IsDir() {
		return fmt.Errorf("remove %s: is a directory", filePath)
	}
	delete(mfs.files, absPath)
	return nil
}

func (mfs *MemoryFileSystem) checkWritable(absPath string) error {
	if mfs.FailWrites == "" {
		return nil
	}
	prefix := mfs.abs(mfs.FailWrites)
	if absPath == prefix || strings.HasPrefix(absPath, prefix+"/") {
		return &fs.PathError{Op: "write", Path: absPath, Err: fs.ErrPermission}
	}
	return nil
}
