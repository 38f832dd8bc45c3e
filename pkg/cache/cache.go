// Package cache provides a key/value cache backed by Redis that quietly falls back to process memory when
// Redis cannot be reached. Callers never see an error from Get, Set or Delete.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

type AuthMode string

const (
	AuthNone             AuthMode = "none"
	AuthPassword         AuthMode = "password"
	AuthWorkloadIdentity AuthMode = "mi"
)

type Options struct {
	// Addr is host:port, empty disables the remote cache entirely.
	Addr     string
	Username string
	Password string `json:"-"`
	TLS      bool
	DB       int

	Auth     AuthMode
	ClientID string

	ProbeTimeout time.Duration
	OpTimeout    time.Duration
}

const (
	defaultProbeTimeout = 5 * time.Second
	defaultOpTimeout    = 5 * time.Second
)

type Health struct {
	Enabled  bool   `json:"enabled"`
	Degraded bool   `json:"degraded"`
	Backend  string `json:"backend"`
}
