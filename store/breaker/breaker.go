// Package breaker guards a remote store with a sony/gobreaker circuit
// breaker. While the circuit is open calls fail fast with ErrOpen.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

// ErrOpen is returned while the circuit rejects calls.
var ErrOpen = errors.New("breaker: circuit open")

type Config struct {
	Name string
	// MaxFailures consecutive failures open the circuit. Default 5.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing. Default 30s.
	Timeout       time.Duration
	OnStateChange func(name string, from, to gobreaker.State)
}

type Store struct {
	inner store.Store
	cb    *gobreaker.CircuitBreaker
}

var _ store.Store = (*Store)(nil)

func New(inner store.Store, cfg Config) *Store {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = inner.Root().String()
	}
	limit := cfg.MaxFailures
	return &Store{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= limit
			},
			OnStateChange: cfg.OnStateChange,
			// a missing object is a healthy answer
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (s *Store) run(fn func() (any, error)) (any, error) {
	v, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrOpen, s.cb.Name())
	}
	return v, err
}

// State reports the circuit state.
func (s *Store) State() gobreaker.State { return s.cb.State() }

func (s *Store) Root() location.Location { return s.inner.Root() }

func (s *Store) Locate(name string) location.Location { return s.inner.Locate(name) }

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	v, err := s.run(func() (any, error) { return s.inner.Read(ctx, name) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	_, err := s.run(func() (any, error) { return nil, s.inner.Write(ctx, name, data) })
	return err
}

func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.run(func() (any, error) { return nil, s.inner.Delete(ctx, name) })
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	v, err := s.run(func() (any, error) { return s.inner.List(ctx, prefix) })
	if err != nil {
		return nil, err
	}
	return v.([]store.ObjectInfo), nil
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

func (s *Store) Close(ctx context.Context) error { return s.inner.Close(ctx) }

// Unwrap returns the wrapped store.
func (s *Store) Unwrap() store.Store { return s.inner }
