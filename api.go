package tiercache

import (
	"context"

	"github.com/unkn0wn-root/tiercache/catalog"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/store"
)

// Cache is the key-value API shared by single caches and Multi.
// V is the caller's value type. Serialization is handled by a codec.Codec[V].
type Cache[V any] interface {
	// Name identifies the cache, normally its root location.
	Name() string
	String() string

	// Initialize builds the catalog by listing the store. It is a no-op on an
	// initialized cache. Every other operation fails with ErrNotInitialized
	// before it, unless AutoInit is set.
	Initialize(ctx context.Context) error
	IsInitialized() bool

	// An inactive cache behaves as empty and ignores writes.
	Activate()
	Deactivate()
	IsActive() bool

	SetReadOnly(readOnly bool)
	IsReadOnly() bool

	Contains(ctx context.Context, key string) (bool, error)
	// Get returns ErrKeyNotFound for an absent key.
	Get(ctx context.Context, key string) (V, error)
	// GetOr returns def for an absent key.
	GetOr(ctx context.Context, key string, def V) (V, error)
	// Put fails with ErrKeyExists for a present key unless WithUpdate is given.
	Put(ctx context.Context, key string, value V, opts ...PutOption) error
	// Update overwrites a present key and fails with ErrKeyNotFound otherwise.
	Update(ctx context.Context, key string, value V) error
	// Remove deletes key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error
	Pop(ctx context.Context, key string) (V, error)
	PopOr(ctx context.Context, key string, def V) (V, error)

	// Keys returns the keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
	// Items returns the catalog entries ordered by key.
	Items(ctx context.Context) ([]catalog.Entry, error)
	// Meta returns the metadata stored with key.
	Meta(ctx context.Context, key string) (catalog.Meta, error)

	// Clear removes every entry. Clearing a non-empty cache without force
	// fails with ErrConfirmationRequired.
	Clear(ctx context.Context, force bool) error

	// Subcache returns a cache rooted at rel below this one, with the same
	// flags.
	Subcache(ctx context.Context, rel string) (Cache[V], error)

	Close(ctx context.Context) error
}

// Options configure a single cache. Store and Codec are required.
type Options[V any] struct {
	Store store.Store
	Codec codec.Codec[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	ReadOnly bool
	Inactive bool
	// AutoInit initializes the cache on first use instead of failing with
	// ErrNotInitialized.
	AutoInit bool
	// RebuildMissingMeta recreates lost sidecars from the store listing
	// instead of failing the catalog build with ErrMissingMeta.
	RebuildMissingMeta bool
	// CloseStore makes Close close the store too.
	CloseStore bool
}

// New returns an uninitialized cache. It does no I/O.
func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}

// Open is New followed by Initialize.
func Open[V any](ctx context.Context, opts Options[V]) (Cache[V], error) {
	c, err := newCache[V](opts)
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// PutOption tunes a single Put.
type PutOption func(*putOptions)

type putOptions struct {
	update bool
	meta   *catalog.Meta
}

// WithUpdate allows Put to overwrite an existing key.
func WithUpdate() PutOption { return func(o *putOptions) { o.update = true } }

// WithMeta makes the written entry carry m's write identity (write id and
// timestamp), so the copy compares as the same write as m.
func WithMeta(m catalog.Meta) PutOption {
	return func(o *putOptions) { o.meta = &m }
}

func collectPutOptions(opts []PutOption) putOptions {
	var po putOptions
	for _, o := range opts {
		if o != nil {
			o(&po)
		}
	}
	return po
}
