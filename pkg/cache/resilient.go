package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/azauth"
	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/metrics"
)

type state int

const (
	stateConnected state = iota
	stateDegraded
)

// remoteResult is what a single Redis call produced. Errors stay inside the package, Resilient turns them
// into fallback reads and writes.
type remoteResult struct {
	value string
	found bool
	err   error
}

type remote interface {
	ping(ctx context.Context) error
	get(ctx context.Context, key string) remoteResult
	set(ctx context.Context, key, value string, ttl time.Duration) remoteResult
	del(ctx context.Context, key string) remoteResult
	close() error
}

type redisRemote struct {
	cli *redis.Client
}

func (r redisRemote) ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func (r redisRemote) get(ctx context.Context, key string) remoteResult {
	v, err := r.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return remoteResult{}
	}
	if err != nil {
		return remoteResult{err: err}
	}
	return remoteResult{value: v, found: true}
}

func (r redisRemote) set(ctx context.Context, key, value string, ttl time.Duration) remoteResult {
	return remoteResult{err: r.cli.Set(ctx, key, value, ttl).Err()}
}

func (r redisRemote) del(ctx context.Context, key string) remoteResult {
	return remoteResult{err: r.cli.Del(ctx, key).Err()}
}

func (r redisRemote) close() error {
	return r.cli.Close()
}

// Resilient serves from Redis while it is reachable and from process memory once it is not. The switch to
// memory happens at most once and is never undone. Every Set is mirrored into memory with the same TTL so
// values written while connected survive the switch, and expire there as they would have in Redis.
type Resilient struct {
	opts   Options
	memory *Memory

	mu          sync.RWMutex
	state       state
	remote      remote
	enabled     bool
	transitions int
}

// New never fails. An empty Addr, a credential problem or a failed ping all leave the cache degraded.
func New(ctx context.Context, opts Options) *Resilient {
	if opts.Addr == "" {
		log.Info().Msg("Redis disabled, using in-memory cache")
		return newResilient(ctx, opts, nil)
	}

	client, err := newRedisClient(ctx, opts)
	if err != nil {
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis setup failed, using in-memory cache")
		c := newResilient(ctx, opts, nil)
		c.enabled = true
		return c
	}

	return newResilient(ctx, opts, redisRemote{cli: client})
}

func newResilient(ctx context.Context, opts Options, r remote) *Resilient {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}

	c := &Resilient{
		opts:    opts,
		memory:  NewMemory(),
		state:   stateDegraded,
		enabled: r != nil,
	}

	if r != nil {
		probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()

		if err := r.ping(probeCtx); err != nil {
			log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis connection failed, using in-memory cache")
			_ = r.close()
		} else {
			c.remote = r
			c.state = stateConnected
			log.Info().Str("addr", opts.Addr).Msg("Redis connected")
		}
	}

	metrics.SetCacheDegraded(c.state == stateDegraded)
	return c
}

func newRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	opTimeout := opts.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	ro := &redis.Options{
		Addr:         opts.Addr,
		DB:           opts.DB,
		DialTimeout:  probeTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		MaxRetries:   1,
	}

	if opts.TLS {
		host, _, err := net.SplitHostPort(opts.Addr)
		if err != nil {
			return nil, err
		}
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	switch opts.Auth {
	case AuthNone, "":
	case AuthPassword:
		ro.Username = opts.Username
		ro.Password = opts.Password
		log.Info().Msg("Redis: using password authentication")
	case AuthWorkloadIdentity:
		cred, err := azauth.NewCredential(opts.ClientID)
		if err != nil {
			return nil, err
		}

		tokenCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if _, err = azauth.Token(tokenCtx, cred, azauth.RedisScope); err != nil {
			return nil, fmt.Errorf("redis token: %w", err)
		}

		// Entra tokens expire, so every new connection asks for a fresh one
		username := opts.Username
		ro.CredentialsProviderContext = func(ctx context.Context) (string, string, error) {
			token, err := azauth.Token(ctx, cred, azauth.RedisScope)
			return username, token, err
		}
		log.Info().Msg("Redis: using managed identity authentication")
	default:
		return nil, fmt.Errorf("invalid redis auth type %q", opts.Auth)
	}

	return redis.NewClient(ro), nil
}

func (c *Resilient) active() remote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == stateConnected {
		return c.remote
	}
	return nil
}

func (c *Resilient) degrade(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateDegraded {
		return
	}
	c.state = stateDegraded
	c.transitions++

	log.Warn().Err(fmt.Errorf("%w: %s", e.ErrCacheConnectivity, err.Error())).
		Str("op", op).
		Str("addr", c.opts.Addr).
		Msg("Redis unreachable, switching to in-memory cache")
	metrics.SetCacheDegraded(true)
}

// absorb reports whether the remote result can be used. Connectivity failures degrade the cache,
// anything else only sends this one call to memory.
func (c *Resilient) absorb(op string, res remoteResult) bool {
	if res.err == nil {
		return true
	}

	if isConnectivityError(res.err) {
		c.degrade(op, res.err)
	} else {
		log.Warn().Err(res.err).Str("op", op).Msg("Redis operation failed, serving from memory")
	}
	metrics.CacheFallback(op)
	return false
}

// opContext keeps a caller's cancellation from looking like a dead server.
func (c *Resilient) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.OpTimeout)
}

func (c *Resilient) Get(ctx context.Context, key string) (string, bool) {
	if r := c.active(); r != nil {
		opCtx, cancel := c.opContext(ctx)
		res := r.get(opCtx, key)
		cancel()
		if c.absorb("get", res) {
			return res.value, res.found
		}
	}
	return c.memory.Get(ctx, key)
}

func (c *Resilient) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if r := c.active(); r != nil {
		opCtx, cancel := c.opContext(ctx)
		c.absorb("set", r.set(opCtx, key, value, ttl))
		cancel()
	}
	c.memory.Set(ctx, key, value, ttl)
}

func (c *Resilient) Delete(ctx context.Context, key string) {
	if r := c.active(); r != nil {
		opCtx, cancel := c.opContext(ctx)
		c.absorb("delete", r.del(opCtx, key))
		cancel()
	}
	c.memory.Delete(ctx, key)
}

// Close releases the Redis connection pool, later calls are served from memory.
func (c *Resilient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remote == nil {
		return nil
	}
	err := c.remote.close()
	c.remote = nil
	c.state = stateDegraded
	return err
}

func (c *Resilient) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := Health{Enabled: c.enabled, Degraded: c.state == stateDegraded, Backend: "memory"}
	if c.state == stateConnected {
		h.Backend = "redis"
	}
	return h
}

func isConnectivityError(err error) bool {
	return errors.Is(err, redis.ErrClosed) || e.IsNetworkError(err)
}
