package disk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/terrycain/blob-config-sync/pkg/e"
)

func getBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err = backend.Setup(); err != nil {
		t.Fatal(err)
	}
	return backend
}

func TestNewMissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing dir")
	}
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestFetch(t *testing.T) {
	backend := getBackend(t)
	doc := []byte("model_list: []\n")
	if err := os.MkdirAll(filepath.Join(backend.BaseDir, "prod"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backend.BaseDir, "prod", "config.yaml"), doc, 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := backend.Fetch(context.Background(), "prod/config.yaml")
	if err != nil {
		t.Fatalf("Failed to fetch: %s", err.Error())
	}
	if diff := cmp.Diff(doc, data); diff != "" {
		t.Fatal(diff)
	}
}

func TestFetchErrors(t *testing.T) {
	backend := getBackend(t)

	tables := []struct {
		name     string
		path     string
		expected error
	}{
		{"missing file", "missing.yaml", e.ErrNotFound},
		{"path traversal", "../../etc/passwd", e.ErrNotFound},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			_, err := backend.Fetch(context.Background(), table.path)
			if !errors.Is(err, table.expected) {
				t.Errorf("expected %v, got %v", table.expected, err)
			}
		})
	}
}

func TestFetchCancelledContext(t *testing.T) {
	backend := getBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := backend.Fetch(ctx, "config.yaml"); !errors.Is(err, e.ErrTransientNetwork) {
		t.Fatalf("expected ErrTransientNetwork, got %v", err)
	}
}
