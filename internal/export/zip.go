package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"

	"lahtotiedot/api/internal/store"
)

type blobOpener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// buildZIP bundles a submission's files, one directory per form field.
// Name collisions within a field get a numeric suffix so no entry is
// silently dropped.
func buildZIP(ctx context.Context, files []store.FileEntry, blobs blobOpener) ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	used := make(map[string]int)
	for _, file := range files {
		name := file.FieldName + "/" + file.FileName
		if n := used[name]; n > 0 {
			name = fmt.Sprintf("%s/%d_%s", file.FieldName, n, file.FileName)
		}
		used[file.FieldName+"/"+file.FileName]++

		entry, err := writer.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %q: %w", name, err)
		}
		blob, err := blobs.Open(ctx, file.FileURL)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", file.FileName, err)
		}
		_, err = io.Copy(entry, blob)
		blob.Close()
		if err != nil {
			return nil, fmt.Errorf("write zip entry %q: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish zip: %w", err)
	}
	return buf.Bytes(), nil
}
