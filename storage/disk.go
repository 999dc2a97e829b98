package storage

import (
	"chat-relay/contract"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

var _ contract.FileStorage = (*DiskStorage)(nil)

// DiskStorage keeps attachments in a local directory.
// Files are served back under baseURL by the HTTP layer.
type DiskStorage struct {
	dir     string
	baseURL string
	log     *slog.Logger
}

func NewDiskStorage(dir, baseURL string, log *slog.Logger) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create files directory: %w", err)
	}
	return &DiskStorage{dir: dir, baseURL: baseURL, log: log}, nil
}

func (d *DiskStorage) Dir() string { return d.dir }

func (d *DiskStorage) Upload(_ context.Context, filename string, data []byte) (string, error) {
	key := ObjectKey(filename)
	if err := os.WriteFile(filepath.Join(d.dir, key), data, 0o644); err != nil {
		return "", fmt.Errorf("unable to write %s: %w", key, err)
	}
	d.log.Debug("File stored on disk", "key", key, "size", len(data))
	return d.baseURL + "/" + url.PathEscape(key), nil
}

// Delete ignores files that are already gone.
func (d *DiskStorage) Delete(_ context.Context, fileURL string) error {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return fmt.Errorf("invalid file url %q: %w", fileURL, err)
	}
	key := path.Base(parsed.Path)
	if key == "." || key == "/" {
		return fmt.Errorf("invalid file url %q", fileURL)
	}
	err = os.Remove(filepath.Join(d.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
