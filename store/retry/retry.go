// Package retry retries transient store failures with exponential backoff.
// Missing and truncated objects are answers, not failures, and are returned
// immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether err is worth another attempt. Defaults to
	// everything except store.ErrNotFound, store.ErrTruncated and context
	// cancellation.
	Retryable func(err error) bool
	// OnRetry is called before each new attempt.
	OnRetry func(op, name string, err error, wait time.Duration)
}

func DefaultConfig() Config {
	return Config{MaxRetries: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: 2 * time.Second}
}

type Store struct {
	inner store.Store
	cfg   Config
}

var _ store.Store = (*Store)(nil)

func New(inner store.Store, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Retryable == nil {
		cfg.Retryable = Retryable
	}
	return &Store{inner: inner, cfg: cfg}
}

// Retryable is the default retry predicate.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrTruncated),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (s *Store) do(ctx context.Context, op, name string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.MaxElapsedTime = 0 // bounded by MaxRetries
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries)), ctx)

	operation := func() error {
		err := fn()
		if err != nil && !s.cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if s.cfg.OnRetry != nil {
		notify = func(err error, wait time.Duration) { s.cfg.OnRetry(op, name, err, wait) }
	}
	return backoff.RetryNotify(operation, policy, notify)
}

func (s *Store) Root() location.Location { return s.inner.Root() }

func (s *Store) Locate(name string) location.Location { return s.inner.Locate(name) }

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	err := s.do(ctx, "read", name, func() error {
		b, err := s.inner.Read(ctx, name)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	return s.do(ctx, "write", name, func() error { return s.inner.Write(ctx, name, data) })
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.do(ctx, "delete", name, func() error { return s.inner.Delete(ctx, name) })
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	var out []store.ObjectInfo
	err := s.do(ctx, "list", prefix, func() error {
		infos, err := s.inner.List(ctx, prefix)
		out = infos
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

func (s *Store) Close(ctx context.Context) error { return s.inner.Close(ctx) }

// Unwrap returns the wrapped store.
func (s *Store) Unwrap() store.Store { return s.inner }
