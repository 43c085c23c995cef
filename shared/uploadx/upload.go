package uploadx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploader stores a file before its owning event is published, so event
// payloads can carry a stable URL instead of file bytes.
type Uploader interface {
	Upload(ctx context.Context, filename string, contentType string, r io.Reader) (string, error)
}

// LocalUploader writes files under a local directory and returns URLs rooted
// at baseURL. It stands in for an external blob store in single-node setups.
type LocalUploader struct {
	dir     string
	baseURL string
}

func NewLocalUploader(dir string, baseURL string) (*LocalUploader, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("UPLOAD_DIR is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (u *LocalUploader) Upload(ctx context.Context, filename string, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := filepath.Ext(filename)
	name := uuid.NewString() + ext

	f, err := os.Create(filepath.Join(u.dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}

	if u.baseURL == "" {
		return "/" + name, nil
	}
	return u.baseURL + "/" + name, nil
}
