package storage

import (
	"context"
	"errors"

	"github.com/terrycain/blob-config-sync/pkg/s"
	s3 "github.com/terrycain/blob-config-sync/pkg/storage/aws-s3"
	"github.com/terrycain/blob-config-sync/pkg/storage/azureblob"
	"github.com/terrycain/blob-config-sync/pkg/storage/disk"
)

//go:generate mockgen -destination=mock_storage/mock_backend.go -package=mock_storage github.com/terrycain/blob-config-sync/pkg/storage Backend

// Backend is a read-only view of the object store holding the config document.
// Fetch errors are *e.FetchError.
type Backend interface {
	Setup() error
	Type() string
	Fetch(ctx context.Context, blobPath string) ([]byte, error)
}

func GetStorageBackend(loc s.RemoteLocation) (Backend, error) {
	var b Backend
	var err error

	switch loc.Backend {
	case "azureblob":
		b, err = azureblob.New(loc)
	case "s3":
		b, err = s3.New(loc)
	case "disk":
		b, err = disk.New(loc.Container)
	default:
		return nil, errors.New("invalid storage backend")
	}

	if err != nil {
		return nil, err
	}

	if err := b.Setup(); err != nil {
		return nil, err
	}

	return b, nil
}
