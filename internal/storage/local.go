package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader writes images under a directory the API serves statically.
type LocalUploader struct {
	dir     string
	baseURL string
}

func NewLocalUploader(dir, baseURL string) (*LocalUploader, error) {
	if err := os.MkdirAll(filepath.Join(dir, "issues"), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (u *LocalUploader) Upload(ctx context.Context, img Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := objectName(img)
	path := filepath.Join(u.dir, filepath.FromSlash(name))

	// write then rename so a reader never sees a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("store image: %w", err)
	}

	return u.baseURL + "/" + name, nil
}
