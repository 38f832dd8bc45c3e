package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/s"
)

// Refresher calls Sync(ctx, false) every interval on its own goroutine. The timer is only re-armed once a
// sync has returned so ticks never overlap; a slow sync just pushes the next one back. A sync that runs past
// timeout has its context cancelled, 0 means no limit.
type Refresher struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRefresher(syncer Syncer, interval, timeout time.Duration) *Refresher {
	return &Refresher{syncer: syncer, interval: interval, timeout: timeout}
}

func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
		default:
			log.Warn().Msg("Config refresher already running")
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	log.Info().Dur("interval", r.interval).Dur("timeout", r.timeout).Msg("Config refresher started")
}

// Stop cancels the loop and waits for it to exit. A sync already in flight is allowed to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}

	log.Info().Msg("Stopping config refresher")
	cancel()
	<-done
}

// Run blocks until ctx is cancelled. Cancellation is only observed between ticks.
func (r *Refresher) Run(ctx context.Context) {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		r.tick(context.WithoutCancel(ctx))
		timer.Reset(r.interval)
	}
}

func (r *Refresher) tick(ctx context.Context) {
	ctx, cancel := withAttemptTimeout(ctx, r.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Err(fmt.Errorf("%v", rec)).Msg("Config refresh panicked, keeping current config")
		}
	}()

	result, err := r.syncer.Sync(ctx, false)
	if err != nil {
		log.Error().Err(err).Msg("Config refresh failed, keeping current config")
		return
	}

	switch result.Outcome {
	case s.Updated:
		log.Info().Str("hash", result.Hash).Int("bytes", result.Size).Msg("Config refreshed")
	case s.Unchanged:
		log.Debug().Str("hash", result.Hash).Msg("Config refresh found no changes")
	}
}
