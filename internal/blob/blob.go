package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrExtensionNotAllowed rejects uploads outside the accepted document
// and drawing formats.
var ErrExtensionNotAllowed = errors.New("file extension not allowed")

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".doc":  {},
	".docx": {},
	".dwg":  {},
}

// Stored describes a persisted blob. URL is what gets written into the
// submission file row; older versions keep referencing the same URL
// after a clone, so blobs are write-once.
type Stored struct {
	ObjectName string
	URL        string
}

type Store interface {
	// Save persists the content under a fresh generated name and
	// returns the public URL for it.
	Save(ctx context.Context, fileName, contentType string, content io.Reader, size int64) (Stored, error)
	// Open streams a previously stored blob back by its URL.
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// objectName keeps the original extension but nothing else of the
// client-supplied name.
func objectName(fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}
	return uuid.NewString() + ext, nil
}
