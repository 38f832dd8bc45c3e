package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/azauth"
	"github.com/terrycain/blob-config-sync/pkg/cache"
	"github.com/terrycain/blob-config-sync/pkg/consumer"
	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/metrics"
	"github.com/terrycain/blob-config-sync/pkg/s"
	"github.com/terrycain/blob-config-sync/pkg/storage"
	awss3 "github.com/terrycain/blob-config-sync/pkg/storage/aws-s3"
	"github.com/terrycain/blob-config-sync/pkg/syncer"
	"github.com/terrycain/blob-config-sync/pkg/utils/logging"
	"github.com/terrycain/blob-config-sync/pkg/validate"
	"github.com/terrycain/blob-config-sync/pkg/web"
)

type CLI struct {
	// Remote document
	StorageBackend       string `env:"STORAGE_BACKEND" default:"azureblob" enum:"azureblob,s3,disk" help:"Where the config document lives"`
	BlobAuthType         string `env:"BLOB_AUTH_TYPE" default:"MI" enum:"MI,CONNECTION_STRING" help:"Azure blob auth, managed identity or connection string"`
	BlobAccountURL       string `env:"BLOB_ACCOUNT_URL" help:"Storage account URL e.g. https://account.blob.core.windows.net"`
	BlobConnectionString string `env:"BLOB_CONNECTION_STRING" help:"Storage account connection string"`
	BlobMIClientID       string `env:"BLOB_MI_CLIENT_ID" name:"blob-mi-client-id" help:"Client ID of a user assigned managed identity"`
	BlobContainer        string `env:"BLOB_DOC_CONTAINER" default:"litellm-config" help:"Blob container holding the config"`
	BlobName             string `env:"BLOB_CONFIG_NAME" default:"config.yaml" help:"Blob name of the config, .gz and .zst are decompressed"`
	StorageS3            string `env:"STORAGE_S3" name:"storage-s3" help:"S3 location e.g. s3://bucket/prefix?region=eu-west-1"`
	StorageDisk          string `env:"STORAGE_DISK" help:"Directory to read the config from e.g. /mnt/config"`

	// Local file
	ConfigPath        string `env:"CONFIG_PATH" default:"config.yaml" help:"Path the consumer reads the config from"`
	ConfigStagingPath string `env:"CONFIG_STAGING_PATH" help:"Staging file, must be in the same directory as the config. Defaults to <config-path>.tmp"`
	DocumentFormat    string `env:"DOCUMENT_FORMAT" default:"yaml" enum:"yaml,json"`

	// Timing
	RefreshInterval         time.Duration `env:"CONFIG_REFRESH_INTERVAL" default:"60s" help:"How often to check for a new config"`
	StartupRetryInterval    time.Duration `env:"STARTUP_RETRY_INTERVAL" default:"5s"`
	StartupRetryMaxInterval time.Duration `env:"STARTUP_RETRY_MAX_INTERVAL" default:"60s"`
	SyncTimeout             time.Duration `env:"CONFIG_SYNC_TIMEOUT" default:"60s" help:"Deadline for a single fetch and write, 0 disables"`

	// Redis
	RedisHost       string `env:"REDIS_HOST" help:"Redis host, empty uses an in-memory cache"`
	RedisPort       int    `env:"REDIS_PORT" default:"6380"`
	RedisSSL        bool   `env:"REDIS_SSL" default:"true" help:"Use TLS, set REDIS_SSL=false to disable"`
	RedisAuthType   string `env:"REDIS_AUTH_TYPE" default:"none" enum:"none,password,mi"`
	RedisUser       string `env:"REDIS_USER"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisMIClientID string `env:"REDIS_MI_CLIENT_ID" name:"redis-mi-client-id" help:"Defaults to --blob-mi-client-id"`
	RedisDBNum      int    `env:"REDIS_DB_NUM" name:"redis-db-num"`

	// Misc
	LogLevel             string `env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	LogFormat            string `env:"LOG_FORMAT" default:"json" enum:"json,console"`
	ListenAddress        string `env:"LISTEN_ADDR" name:"listen-addr" default:"127.0.0.1:8081" help:"Status server listen address, empty disables"`
	CacheWriteAPI        bool   `env:"CACHE_WRITE_API" help:"Serve PUT and DELETE on /cache/:key, the routes have no authentication"`
	MetricsListenAddress string `env:"METRICS_LISTEN_ADDR" name:"metrics-listen-addr" default:"0.0.0.0:9102" help:"Listen address for prometheus metrics, empty disables"`
	EnvFile              string `env:"ENV_FILE" default:".env" help:"Optional dotenv file, only the ENV_FILE variable is read since it loads before flags are parsed"`

	Consumer []string `arg:"" optional:"" help:"Command to run once the config is in place, pass after --"`
}

// loadEnvFile has to run before kong so values in the file can feed env-bound flags.
func loadEnvFile() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
	}
}

func (c *CLI) remoteLocation() (s.RemoteLocation, error) {
	switch c.StorageBackend {
	case "s3":
		if c.StorageS3 == "" {
			return s.RemoteLocation{}, errors.New("--storage-s3 is required for the s3 backend")
		}
		return awss3.LocationFromURL(c.StorageS3, c.BlobName)
	case "disk":
		if c.StorageDisk == "" {
			return s.RemoteLocation{}, errors.New("--storage-disk is required for the disk backend")
		}
		return s.RemoteLocation{Backend: "disk", Container: c.StorageDisk, BlobPath: c.BlobName}, nil
	default:
		return s.RemoteLocation{
			Backend:          "azureblob",
			Container:        c.BlobContainer,
			BlobPath:         c.BlobName,
			Auth:             s.AuthMode(c.BlobAuthType),
			ClientID:         c.BlobMIClientID,
			AccountURL:       c.BlobAccountURL,
			ConnectionString: c.BlobConnectionString,
		}, nil
	}
}

func (c *CLI) cacheOptions() cache.Options {
	opts := cache.Options{
		Username: c.RedisUser,
		Password: c.RedisPassword,
		TLS:      c.RedisSSL,
		DB:       c.RedisDBNum,
		Auth:     cache.AuthMode(c.RedisAuthType),
		ClientID: c.RedisMIClientID,
	}
	if c.RedisHost != "" {
		opts.Addr = net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
	}
	if opts.ClientID == "" {
		opts.ClientID = c.BlobMIClientID
	}
	return opts
}

func (c *CLI) retryPolicy() syncer.RetryPolicy {
	policy := syncer.DefaultRetryPolicy()
	policy.Interval = c.StartupRetryInterval
	policy.MaxInterval = c.StartupRetryMaxInterval
	policy.AttemptTimeout = c.SyncTimeout
	if policy.MaxInterval < policy.Interval {
		policy.MaxInterval = policy.Interval
	}
	return policy
}

func (c *CLI) logBanner(loc s.RemoteLocation, target s.LocalTarget, cacheOpts cache.Options) {
	event := log.Info().
		Str("backend", loc.Backend).
		Str("container", loc.Container).
		Str("blob", loc.BlobPath).
		Str("config_path", target.LivePath).
		Str("format", c.DocumentFormat).
		Dur("refresh_interval", c.RefreshInterval).
		Dur("sync_timeout", c.SyncTimeout).
		Str("redis_addr", cacheOpts.Addr).
		Str("redis_auth", string(cacheOpts.Auth)).
		Str("listen_addr", c.ListenAddress).
		Bool("cache_write_api", c.CacheWriteAPI).
		Strs("consumer", c.Consumer)
	if loc.Backend == "azureblob" {
		event = event.Str("auth", string(loc.Auth)).Str("account_url", loc.AccountURL)
		if loc.ClientID != "" {
			event = event.Str("client_id", azauth.Redact(loc.ClientID))
		}
	}
	event.Msg("Starting blob-config-sync")
}

func main() {
	loadEnvFile()

	var cli CLI
	kong.Parse(&cli, kong.Description("Keeps a local config file in sync with a document in blob storage"))

	logging.SetupLogging(cli.LogLevel, cli.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cli.remoteLocation()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid storage configuration")
	}
	target, err := s.NewLocalTarget(cli.ConfigPath, cli.ConfigStagingPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid config path")
	}
	validator, err := validate.New(cli.DocumentFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid document format")
	}
	cacheOpts := cli.cacheOptions()
	cli.logBanner(loc, target, cacheOpts)

	storageBackend, err := storage.GetStorageBackend(loc)
	if err != nil {
		if errors.Is(err, e.ErrMissingCredentials) {
			log.Fatal().Err(err).Msg("Storage credentials are missing")
		}
		log.Fatal().Err(err).Msg("Failed to initiate storage backend")
	}

	resilientCache := cache.New(ctx, cacheOpts)
	synchronizer := syncer.New(storageBackend, validator, loc, target)

	if cli.MetricsListenAddress != "" {
		go func() {
			_ = metrics.Server(ctx, cli.MetricsListenAddress)
		}()
	}
	if cli.ListenAddress != "" {
		router := web.GetRouter(&web.Handlers{
			Sync:     synchronizer,
			Cache:    resilientCache,
			Location: loc,
			Target:   target,

			AllowCacheWrites: cli.CacheWriteAPI,
		}, cli.MetricsListenAddress != "")
		go func() {
			if err := web.Serve(ctx, cli.ListenAddress, router); err != nil {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
	}

	result, attempts, err := syncer.InitialSync(ctx, synchronizer, cli.retryPolicy())
	if err != nil {
		log.Warn().Err(err).Int("attempts", attempts).Msg("Stopped before the first config was written")
		_ = resilientCache.Close()
		os.Exit(1)
	}
	log.Info().Str("outcome", result.Outcome.String()).Str("hash", result.Hash).Int("attempts", attempts).Msg("Initial config written")

	refresher := syncer.NewRefresher(synchronizer, cli.RefreshInterval, cli.SyncTimeout)
	refresher.Start(ctx)

	exitCode := 0
	if len(cli.Consumer) > 0 {
		exitCode, err = consumer.Command{Argv: cli.Consumer}.Run(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to start consumer")
		}
	} else {
		<-ctx.Done()
	}

	log.Info().Msg("Shutting down")
	stop()
	refresher.Stop()
	if err = resilientCache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close cache")
	}
	os.Exit(exitCode)
}
