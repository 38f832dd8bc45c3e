package disk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/terrycain/blob-config-sync/pkg/e"
)

type Backend struct {
	BaseDir string
}

func New(connectionString string) (*Backend, error) {
	if connectionString == "" {
		return nil, errors.New("disk base directory is required")
	}
	if _, err := os.Stat(connectionString); os.IsNotExist(err) {
		return nil, errors.New("path does not exist")
	}

	baseDir, err := filepath.Abs(connectionString)
	if err != nil {
		return nil, err
	}

	backend := Backend{BaseDir: baseDir}
	return &backend, nil
}

func (b *Backend) Setup() error {
	return nil
}

func (b *Backend) Type() string {
	return "disk"
}

func (b *Backend) Fetch(ctx context.Context, blobPath string) ([]byte, error) {
	filePath, err := b.GetFilePath(blobPath)
	if err != nil {
		return nil, e.NewFetchError(e.FetchNotFound, blobPath, err)
	}

	if err = ctx.Err(); err != nil {
		return nil, e.NewFetchError(e.FetchTransientNetwork, blobPath, err)
	}

	data, err := os.ReadFile(filePath)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, e.NewFetchError(e.FetchNotFound, blobPath, err)
	case errors.Is(err, fs.ErrPermission):
		return nil, e.NewFetchError(e.FetchUnauthorized, blobPath, err)
	default:
		return nil, e.NewFetchError(e.FetchUnknown, blobPath, err)
	}
}

func (b *Backend) GetFilePath(key string) (string, error) {
	filePath := filepath.Clean(filepath.Join(b.BaseDir, key))
	if filePath != b.BaseDir && !strings.HasPrefix(filePath, b.BaseDir+string(filepath.Separator)) {
		return "", e.ErrNotFound
	}

	return filePath, nil
}
