package e

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFetchKindFromStatus(t *testing.T) {
	tables := []struct {
		name     string
		status   int
		expected FetchKind
	}{
		{"401 is unauthorized", http.StatusUnauthorized, FetchUnauthorized},
		{"403 is unauthorized", http.StatusForbidden, FetchUnauthorized},
		{"404 is not found", http.StatusNotFound, FetchNotFound},
		{"408 is transient", http.StatusRequestTimeout, FetchTransientNetwork},
		{"429 is transient", http.StatusTooManyRequests, FetchTransientNetwork},
		{"503 is transient", http.StatusServiceUnavailable, FetchTransientNetwork},
		{"400 is unknown", http.StatusBadRequest, FetchUnknown},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			if diff := cmp.Diff(table.expected, FetchKindFromStatus(table.status)); diff != "" {
				t.Errorf("FetchKindFromStatus() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchErrorMatchesSentinels(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NewFetchError(FetchNotFound, "config.yaml", cause))

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("did not expect errors.Is(err, ErrUnauthorized)")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatal("expected errors.As to find *FetchError")
	}
	if fetchErr.Retryable() {
		t.Error("not found should not be retryable")
	}
	if !NewFetchError(FetchTransientNetwork, "x", nil).Retryable() {
		t.Error("transient network errors should be retryable")
	}
}

func TestIsNetworkError(t *testing.T) {
	tables := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("nope"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			if diff := cmp.Diff(table.expected, IsNetworkError(table.err)); diff != "" {
				t.Errorf("IsNetworkError() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
