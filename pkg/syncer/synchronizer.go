// Package syncer keeps the local config file in step with the remote document.
//
// Synchronizer.Sync is the single fetch, validate, compare and replace operation. InitialSync wraps it in a
// blocking retry loop for startup and Refresher runs it on a timer afterwards.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/metrics"
	"github.com/terrycain/blob-config-sync/pkg/s"
	"github.com/terrycain/blob-config-sync/pkg/storage"
	"github.com/terrycain/blob-config-sync/pkg/validate"
)

type Syncer interface {
	Sync(ctx context.Context, force bool) (s.SyncResult, error)
}

type Status struct {
	Synced              bool      `json:"synced"`
	LastOutcome         string    `json:"last_outcome,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	Hash                string    `json:"hash,omitempty"`
	Size                int       `json:"size"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	LastUpdate          time.Time `json:"last_update"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

type Synchronizer struct {
	store     storage.Backend
	validator validate.Validator
	location  s.RemoteLocation
	target    s.LocalTarget

	// held for the whole fetch, validate, write sequence
	mu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

func New(store storage.Backend, validator validate.Validator, location s.RemoteLocation, target s.LocalTarget) *Synchronizer {
	return &Synchronizer{
		store:     store,
		validator: validator,
		location:  location,
		target:    target,
	}
}

func (c *Synchronizer) Target() s.LocalTarget {
	return c.target
}

// Sync fetches the remote document and, when it parses and differs from the live file (or force is set),
// atomically replaces the live file with it. A failed Sync never touches the live file.
func (c *Synchronizer) Sync(ctx context.Context, force bool) (s.SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	logger := log.With().
		Str("sync_id", uuid.NewString()).
		Str("blob", c.location.BlobPath).
		Bool("force", force).
		Logger()

	result, err := c.sync(ctx, force, &logger)
	if err != nil {
		result = s.SyncResult{Outcome: s.Rejected, Reason: err}
	}

	trigger := "scheduled"
	if force {
		trigger = "forced"
	}
	metrics.ObserveSync(result.Outcome.String(), trigger, time.Since(start), result.Size, err == nil)
	c.record(start, result)

	return result, err
}

func (c *Synchronizer) sync(ctx context.Context, force bool, logger *zerolog.Logger) (s.SyncResult, error) {
	raw, err := c.store.Fetch(ctx, c.location.BlobPath)
	if err != nil {
		return s.SyncResult{}, err
	}

	data, err := storage.Decode(c.location.BlobPath, raw)
	if err != nil {
		return s.SyncResult{}, err
	}

	doc, err := c.validator.Validate(data)
	if err != nil {
		return s.SyncResult{}, err
	}

	hash := contentHash(data)

	if !force {
		current, readErr := os.ReadFile(c.target.LivePath)
		switch {
		case readErr == nil && bytes.Equal(current, data):
			logger.Debug().Str("hash", hash).Msg("Config unchanged")
			return s.SyncResult{Outcome: s.Unchanged, Size: len(data), Hash: hash}, nil
		case readErr != nil && !errors.Is(readErr, fs.ErrNotExist):
			logger.Warn().Err(readErr).Msg("Could not read live config, replacing it")
		}
	}

	if err = writeAtomic(c.target, data); err != nil {
		return s.SyncResult{}, err
	}

	logger.Info().
		Str("path", c.target.LivePath).
		Str("hash", hash).
		Int("bytes", len(data)).
		Str("kind", doc.Kind()).
		Msg("Config updated")

	return s.SyncResult{Outcome: s.Updated, Size: len(data), Hash: hash}, nil
}

func (c *Synchronizer) record(at time.Time, result s.SyncResult) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	c.status.LastAttempt = at
	c.status.LastOutcome = result.Outcome.String()

	if result.Outcome == s.Rejected {
		c.status.ConsecutiveFailures++
		if result.Reason != nil {
			c.status.LastError = result.Reason.Error()
		}
		return
	}

	c.status.Synced = true
	c.status.LastError = ""
	c.status.ConsecutiveFailures = 0
	c.status.LastSuccess = at
	c.status.Hash = result.Hash
	c.status.Size = result.Size
	if result.Outcome == s.Updated {
		c.status.LastUpdate = at
	}
}

func (c *Synchronizer) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func contentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
