package e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrTransientNetwork   = errors.New("transient network error")
	ErrUnknown            = errors.New("unknown error")
	ErrMalformed          = errors.New("malformed document")
	ErrFilesystem         = errors.New("filesystem error")
	ErrCacheConnectivity  = errors.New("cache connectivity error")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrRetriesExhausted   = errors.New("retries exhausted")
	ErrNotImplemented     = errors.New("not implemented")
)

type FetchKind int

const (
	FetchUnknown FetchKind = iota
	FetchUnauthorized
	FetchNotFound
	FetchTransientNetwork
)

func (k FetchKind) String() string {
	switch k {
	case FetchUnauthorized:
		return "unauthorized"
	case FetchNotFound:
		return "not_found"
	case FetchTransientNetwork:
		return "transient_network"
	default:
		return "unknown"
	}
}

func (k FetchKind) sentinel() error {
	switch k {
	case FetchUnauthorized:
		return ErrUnauthorized
	case FetchNotFound:
		return ErrNotFound
	case FetchTransientNetwork:
		return ErrTransientNetwork
	default:
		return ErrUnknown
	}
}

// FetchError is returned by every storage backend when a blob could not be read.
// errors.Is matches both the kind sentinel (ErrNotFound etc.) and the underlying cause.
type FetchError struct {
	Kind FetchKind
	Path string
	Err  error
}

func NewFetchError(kind FetchKind, path string, err error) *FetchError {
	return &FetchError{Kind: kind, Path: path, Err: err}
}

func (f *FetchError) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("fetch %s: %s", f.Path, f.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %s", f.Path, f.Kind, f.Err.Error())
}

func (f *FetchError) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind.sentinel()}
	}
	return []error{f.Kind.sentinel(), f.Err}
}

// Retryable reports whether trying again could plausibly succeed without operator action.
func (f *FetchError) Retryable() bool {
	return f.Kind == FetchTransientNetwork || f.Kind == FetchUnknown
}

func FetchKindFromStatus(statusCode int) FetchKind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return FetchUnauthorized
	case statusCode == http.StatusNotFound:
		return FetchNotFound
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return FetchTransientNetwork
	default:
		return FetchUnknown
	}
}

// IsNetworkError covers the errors a dropped or unreachable connection surfaces as.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
