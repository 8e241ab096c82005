// Package catalog implements the in-memory key → location index a cache keeps
// over its backend store.
//
// A catalog is a cache of the store's state, never the authority: it is built by
// listing the store (see Builder and Build), mutated by the owning cache on every
// put/remove and rebuilt from scratch on clear. Catalogs are not safe for
// concurrent use.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/unkn0wn-root/tiercache/location"
)

var (
	ErrKeyNotFound  = errors.New("tiercache: key not found")
	ErrDuplicateKey = errors.New("tiercache: duplicate key")
)

// Entry is one catalog record.
type Entry struct {
	Key      string
	Location location.Location
	Meta     Meta
}

// Catalog maps keys to entries.
type Catalog interface {
	Contains(key string) bool
	Get(key string) (Entry, bool)
	Add(e Entry)
	// Remove fails with ErrKeyNotFound if key is absent.
	Remove(key string) error
	// Keys returns the keys in ascending order.
	Keys() []string
	// Items returns the entries ordered by key.
	Items() []Entry
	Len() int
}

// Map is the default Catalog.
type Map struct {
	m map[string]Entry
}

var _ Catalog = (*Map)(nil)

// NewMap returns an empty catalog.
func NewMap() *Map { return &Map{m: make(map[string]Entry)} }

func (c *Map) Contains(key string) bool {
	_, ok := c.m[key]
	return ok
}

func (c *Map) Get(key string) (Entry, bool) {
	e, ok := c.m[key]
	return e, ok
}

func (c *Map) Add(e Entry) { c.m[e.Key] = e }

func (c *Map) Remove(key string) error {
	if _, ok := c.m[key]; !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	delete(c.m, key)
	return nil
}

func (c *Map) Keys() []string {
	keys := make([]string, 0, len(c.m))
	for k := range c.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Map) Items() []Entry {
	out := make([]Entry, 0, len(c.m))
	for _, k := range c.Keys() {
		out = append(out, c.m[k])
	}
	return out
}

func (c *Map) Len() int { return len(c.m) }
