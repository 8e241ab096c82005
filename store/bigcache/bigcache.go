// Package bigcache keeps cache objects in an in-process allegro/bigcache shard
// set. Contents live as long as the process.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

// forever keeps bigcache from expiring entries on its own.
const forever = 100 * 365 * 24 * time.Hour

type Store struct {
	c    *bc.BigCache
	root location.Object
}

var _ store.Store = (*Store)(nil)

type Config struct {
	// Label names the root location (bigcache://<Label>). Defaults to "default".
	Label              string
	Shards             int
	MaxEntriesInWindow int
	MaxEntrySize       int
	// HardMaxCacheSizeMB caps memory; 0 = unlimited. With a cap, bigcache
	// overwrites the oldest entries and reads of those names report
	// store.ErrNotFound.
	HardMaxCacheSizeMB int
}

func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(forever)
	conf.CleanWindow = 0
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	label := cfg.Label
	if label == "" {
		label = "default"
	}
	return &Store{c: c, root: location.Object{Scheme: "bigcache", Bucket: label}}, nil
}

func (s *Store) Root() location.Location { return s.root }

func (s *Store) Locate(name string) location.Location { return s.root.JoinObject(name) }

func (s *Store) Read(_ context.Context, name string) ([]byte, error) {
	b, err := s.c.Get(name)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("bigcache: get %s: %w", name, err)
	}
	return b, nil
}

func (s *Store) Write(_ context.Context, name string, data []byte) error {
	if err := s.c.Set(name, data); err != nil {
		return fmt.Errorf("bigcache: set %s: %w", name, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	if err := s.c.Delete(name); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return fmt.Errorf("bigcache: delete %s: %w", name, err)
	}
	return nil
}

// List iterates every shard. Entries written while iterating may or may not
// be reported.
func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	var out []store.ObjectInfo
	it := s.c.Iterator()
	for it.SetNext() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := it.Value()
		if err != nil {
			// entry vanished between SetNext and Value
			continue
		}
		name := e.Key()
		if !strings.HasPrefix(name, prefix) || store.IsTemp(name) {
			continue
		}
		out = append(out, store.ObjectInfo{
			Name:    name,
			Size:    int64(len(e.Value())),
			ModTime: time.Unix(int64(e.Timestamp()), 0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

func (s *Store) Close(context.Context) error { return s.c.Close() }

// Stats exposes bigcache's hit/miss counters.
func (s *Store) Stats() bc.Stats { return s.c.Stats() }
