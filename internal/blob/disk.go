package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes blobs under a local directory served at /uploads/.
// It is the default backend for single-host deployments.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Dir() string {
	return d.dir
}

func (d *DiskStore) Save(_ context.Context, fileName, _ string, content io.Reader, size int64) (Stored, error) {
	name, err := objectName(fileName)
	if err != nil {
		return Stored{}, err
	}
	path := filepath.Join(d.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return Stored{}, fmt.Errorf("create blob file: %w", err)
	}
	if size > 0 {
		content = io.LimitReader(content, size)
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		os.Remove(path)
		return Stored{}, fmt.Errorf("write blob file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return Stored{}, fmt.Errorf("close blob file: %w", err)
	}
	return Stored{ObjectName: name, URL: "/uploads/" + name}, nil
}

func (d *DiskStore) Open(_ context.Context, url string) (io.ReadCloser, error) {
	name := strings.TrimPrefix(url, "/uploads/")
	// The generated names never contain separators; reject anything
	// that tries to point outside the upload dir.
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("open blob: bad url %q", url)
	}
	file, err := os.Open(filepath.Join(d.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}
