// Package ristretto is a read-through hot-object layer in front of a slower
// store. Objects read or written through it are kept in a dgraph-io/ristretto
// cache bounded by total byte cost; the wrapped store stays authoritative.
package ristretto

import (
	"context"
	"errors"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

type Store struct {
	inner store.Store
	c     *rc.Cache
}

var _ store.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // total bytes kept hot
	BufferItems int64
	Metrics     bool
}

// DefaultConfig keeps up to maxBytes of objects hot.
func DefaultConfig(maxBytes int64) Config {
	return Config{NumCounters: max(maxBytes/100, 1000), MaxCost: maxBytes, BufferItems: 64}
}

func New(inner store.Store, cfg Config) (*Store, error) {
	if inner == nil {
		return nil, errors.New("ristretto: nil inner store")
	}
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner, c: c}, nil
}

func (s *Store) Root() location.Location { return s.inner.Root() }

func (s *Store) Locate(name string) location.Location { return s.inner.Locate(name) }

// Read serves from memory when possible. The returned slice is a copy.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	if v, ok := s.c.Get(name); ok {
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
		// self-heal: drop unexpected entry shape
		s.c.Del(name)
	}
	b, err := s.inner.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	s.c.Set(name, append([]byte(nil), b...), cost(b))
	return b, nil
}

// Write is write-through. The hot copy is replaced only after the inner write
// succeeded.
func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	if err := s.inner.Write(ctx, name, data); err != nil {
		s.c.Del(name)
		s.c.Wait()
		return err
	}
	s.c.Set(name, append([]byte(nil), data...), cost(data))
	s.c.Wait()
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	s.c.Del(name)
	s.c.Wait()
	return s.inner.Delete(ctx, name)
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	return s.inner.List(ctx, prefix)
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

// Close drops the hot layer and closes the wrapped store.
func (s *Store) Close(ctx context.Context) error {
	s.c.Wait()
	s.c.Close()
	return s.inner.Close(ctx)
}

// Metrics exposes ristretto's counters; nil unless Config.Metrics was set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

// Unwrap returns the wrapped store.
func (s *Store) Unwrap() store.Store { return s.inner }

func cost(b []byte) int64 { return int64(len(b)) + 1 }
