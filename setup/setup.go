// Package setup builds stores and caches from URIs and configuration.
package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/config"
	"github.com/unkn0wn-root/tiercache/location"
	zaplog "github.com/unkn0wn-root/tiercache/log/zap"
	"github.com/unkn0wn-root/tiercache/store"
	"github.com/unkn0wn-root/tiercache/store/bigcache"
	"github.com/unkn0wn-root/tiercache/store/breaker"
	"github.com/unkn0wn-root/tiercache/store/fsys"
	"github.com/unkn0wn-root/tiercache/store/minio"
	"github.com/unkn0wn-root/tiercache/store/otelstore"
	"github.com/unkn0wn-root/tiercache/store/redis"
	"github.com/unkn0wn-root/tiercache/store/retry"
	"github.com/unkn0wn-root/tiercache/store/ristretto"
	"github.com/unkn0wn-root/tiercache/store/s3"
)

// Deps carries clients and settings shared by every tier. Zero values are
// fine; missing clients are created from the matching config section.
type Deps struct {
	Redis goredis.UniversalClient
	S3    config.S3Config
	Minio config.MinioConfig
	// RedisConfig is used when Redis is nil.
	RedisConfig config.RedisConfig

	TracerProvider trace.TracerProvider
	Logger         tiercache.Logger
	Hooks          tiercache.Hooks
}

// Tier returns the store addressed by uri:
//
//	s3://bucket/prefix          AWS S3
//	https://s3.<region>...      AWS S3
//	minio://bucket/prefix       MinIO
//	redis://label/namespace     Redis
//	mem://label/prefix          process memory
//	bigcache://label/prefix     in-process bigcache
//	anything else               local directory
func Tier(ctx context.Context, uri string, deps Deps) (store.Store, error) {
	loc, err := location.Parse(uri)
	if err != nil {
		return nil, err
	}
	p, ok := loc.(location.Path)
	if ok {
		return fsys.Local(p.String())
	}
	obj := loc.(location.Object)
	key := strings.TrimSuffix(obj.Key, "/")

	switch obj.Scheme {
	case "s3":
		return s3.Connect(ctx, location.Object{Scheme: "s3", Bucket: obj.Bucket, Key: key, Region: obj.Region}, s3.ClientConfig{
			Region:         deps.S3.Region,
			Endpoint:       deps.S3.Endpoint,
			ForcePathStyle: deps.S3.ForcePathStyle,
			AccessKey:      deps.S3.AccessKey,
			SecretKey:      deps.S3.SecretKey,
			UploadPartSize: deps.S3.UploadPartSize,
			Concurrency:    deps.S3.Concurrency,
		})
	case "minio":
		return minio.New(minio.Config{
			Endpoint:  deps.Minio.Endpoint,
			AccessKey: deps.Minio.AccessKey,
			SecretKey: deps.Minio.SecretKey,
			UseSSL:    deps.Minio.UseSSL,
			Root:      location.Object{Scheme: "minio", Bucket: obj.Bucket, Key: key},
		})
	case "redis":
		client, owned := deps.Redis, false
		if client == nil {
			client = goredis.NewClient(&goredis.Options{
				Addr:     deps.RedisConfig.Addr,
				Password: deps.RedisConfig.Password,
				DB:       deps.RedisConfig.DB,
			})
			owned = true
		}
		return redis.New(redis.Config{Client: client, CloseClient: owned, Namespace: key, Label: obj.Bucket})
	case "mem":
		return sub(fsys.Memory(obj.Bucket), key), nil
	case "bigcache":
		bs, err := bigcache.New(bigcache.Config{Label: obj.Bucket})
		if err != nil {
			return nil, err
		}
		return sub(bs, key), nil
	default:
		return nil, fmt.Errorf("setup: unsupported scheme %q in %s", obj.Scheme, uri)
	}
}

func sub(st store.Store, key string) store.Store {
	if key == "" {
		return st
	}
	return st.Sub(key)
}

// Wrap applies the decorators a tier asks for. The hot cache sits outermost
// so its hits skip tracing, the breaker and retries.
func Wrap(st store.Store, t config.Tier, cfg *config.Config, deps Deps) (store.Store, error) {
	if t.Retry {
		st = retry.New(st, retry.Config{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		})
	}
	if t.Breaker {
		st = breaker.New(st, breaker.Config{
			Name:        t.URI,
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
		})
	}
	if t.Trace {
		st = otelstore.New(st, deps.TracerProvider)
	}
	if t.HotCache {
		hc := ristretto.DefaultConfig(cfg.Hot.MaxCost)
		if cfg.Hot.NumCounters > 0 {
			hc.NumCounters = cfg.Hot.NumCounters
		}
		hot, err := ristretto.New(st, hc)
		if err != nil {
			return nil, err
		}
		st = hot
	}
	return st, nil
}

// FromConfig builds one cache for a single tier, or a Multi over all tiers.
// Caches are initialized unless cfg.AutoInit is set.
func FromConfig[V any](ctx context.Context, cfg *config.Config, deps Deps) (tiercache.Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cd, err := codec.ByName[V](cfg.Codec)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		if deps.Logger, err = NewLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	if deps.Redis == nil {
		deps.RedisConfig = cfg.Redis
	}
	if deps.S3 == (config.S3Config{}) {
		deps.S3 = cfg.S3
	}
	if deps.Minio == (config.MinioConfig{}) {
		deps.Minio = cfg.Minio
	}

	members := make([]tiercache.Cache[V], 0, len(cfg.Tiers))
	fail := func(err error) (tiercache.Cache[V], error) {
		var errs []error
		for _, m := range members {
			errs = append(errs, m.Close(ctx))
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}
	for _, t := range cfg.Tiers {
		st, err := Tier(ctx, t.URI, deps)
		if err != nil {
			return fail(fmt.Errorf("setup: tier %s: %w", t.URI, err))
		}
		if st, err = Wrap(st, t, cfg, deps); err != nil {
			return fail(fmt.Errorf("setup: tier %s: %w", t.URI, err))
		}
		c, err := tiercache.New[V](tiercache.Options[V]{
			Store:              st,
			Codec:              cd,
			Logger:             deps.Logger,
			Hooks:              deps.Hooks,
			ReadOnly:           t.ReadOnly,
			Inactive:           t.Inactive,
			AutoInit:           cfg.AutoInit,
			RebuildMissingMeta: t.RebuildMissingMeta,
			CloseStore:         true,
		})
		if err != nil {
			_ = st.Close(ctx)
			return fail(err)
		}
		members = append(members, c)
		if !cfg.AutoInit {
			if err := c.Initialize(ctx); err != nil {
				return fail(err)
			}
		}
	}

	if len(members) == 1 {
		return members[0], nil
	}
	return tiercache.NewMulti(members, tiercache.MultiOptions{
		SyncAll:         cfg.SyncAll,
		ReversePriority: cfg.ReversePriority,
		Logger:          deps.Logger,
		Hooks:           deps.Hooks,
	}), nil
}

// NewLogger returns a zap production logger at level.
func NewLogger(level string) (tiercache.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return zaplog.ZapLogger{L: l}, nil
}
