package tiercache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/unkn0wn-root/tiercache/catalog"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/wire"
	"github.com/unkn0wn-root/tiercache/store"
)

type cache[V any] struct {
	st    store.Store
	codec codec.Codec[V]
	ext   string
	log   Logger
	hooks Hooks

	// nil until initialized
	cat *catalog.Map

	active             bool
	readOnly           bool
	autoInit           bool
	rebuildMissingMeta bool
	closeStore         bool
}

var _ Cache[struct{}] = (*cache[struct{}])(nil)

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("tiercache: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("tiercache: codec is required")
	}
	ext := opts.Codec.Ext()
	if strings.HasSuffix(ext, MetaSuffix) || strings.Contains(ext, "/") {
		return nil, fmt.Errorf("tiercache: codec extension %q is not usable", ext)
	}

	c := &cache[V]{
		st:                 opts.Store,
		codec:              opts.Codec,
		ext:                ext,
		active:             !opts.Inactive,
		readOnly:           opts.ReadOnly,
		autoInit:           opts.AutoInit,
		rebuildMissingMeta: opts.RebuildMissingMeta,
		closeStore:         opts.CloseStore,
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return c, nil
}

func (c *cache[V]) Name() string { return c.st.Root().String() }

func (c *cache[V]) String() string {
	params := []string{c.Name()}
	if c.cat == nil {
		params = append(params, "UNINITIALIZED")
	} else {
		params = append(params, fmt.Sprintf("%d items", c.cat.Len()))
	}
	if !c.active {
		params = append(params, "NOT ACTIVE")
	}
	if c.readOnly {
		params = append(params, "READ-ONLY")
	}
	return "tiercache(" + strings.Join(params, ", ") + ")"
}

func (c *cache[V]) opErr(op, key string, err error) error {
	return &OpError{Op: op, Cache: c.Name(), Key: key, Err: err}
}

// ==============================
// State
// ==============================

func (c *cache[V]) Initialize(ctx context.Context) error {
	if c.cat != nil {
		return nil
	}
	cat, err := catalog.Build(ctx, c.scan)
	if err != nil {
		return c.opErr("initialize", "", err)
	}
	c.cat = cat
	c.log.Info("catalog built", Fields{"cache": c.Name(), "entries": cat.Len()})
	c.hooks.CatalogBuilt(c.Name(), cat.Len())
	return nil
}

func (c *cache[V]) IsInitialized() bool { return c.cat != nil }

// ready enforces initialization, or performs it under AutoInit.
func (c *cache[V]) ready(ctx context.Context, op, key string) error {
	if c.cat != nil {
		return nil
	}
	if !c.autoInit {
		return c.opErr(op, key, ErrNotInitialized)
	}
	return c.Initialize(ctx)
}

func (c *cache[V]) Activate()   { c.active = true }
func (c *cache[V]) Deactivate() { c.active = false }

// IsActive is false for an uninitialized cache unless it initializes on use.
func (c *cache[V]) IsActive() bool { return c.active && (c.cat != nil || c.autoInit) }

func (c *cache[V]) SetReadOnly(readOnly bool) { c.readOnly = readOnly }
func (c *cache[V]) IsReadOnly() bool          { return c.readOnly }

func (c *cache[V]) Close(ctx context.Context) error {
	if c.closeStore {
		return c.st.Close(ctx)
	}
	return nil
}

// ==============================
// Reads
// ==============================

func (c *cache[V]) Contains(ctx context.Context, key string) (bool, error) {
	if err := c.ready(ctx, "contains", key); err != nil {
		return false, err
	}
	if !c.active {
		return false, nil
	}
	return c.cat.Contains(key), nil
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, error) {
	v, ok, err := c.lookup(ctx, "get", key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, c.opErr("get", key, ErrKeyNotFound)
	}
	return v, nil
}

func (c *cache[V]) GetOr(ctx context.Context, key string, def V) (V, error) {
	v, ok, err := c.lookup(ctx, "get", key)
	if err != nil {
		return v, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// lookup reads and verifies key. A truncated or corrupt entry is healed and
// reported as absent.
func (c *cache[V]) lookup(ctx context.Context, op, key string) (V, bool, error) {
	var zero V
	if err := c.ready(ctx, op, key); err != nil {
		return zero, false, err
	}
	if !c.active {
		return zero, false, nil
	}
	e, ok := c.cat.Get(key)
	if !ok {
		return zero, false, nil
	}

	c.log.Debug("reading cached item", Fields{"key": key, "location": e.Location.String()})
	raw, err := c.st.Read(ctx, e.Meta.Name)
	if err != nil {
		if errors.Is(err, store.ErrTruncated) {
			c.heal(ctx, e, "truncated")
			return zero, false, nil
		}
		return zero, false, c.opErr(op, key, err)
	}
	if reason := verify(raw, e.Meta); reason != "" {
		c.heal(ctx, e, reason)
		return zero, false, nil
	}
	v, err := c.codec.Decode(raw)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			c.heal(ctx, e, "truncated")
			return zero, false, nil
		}
		return zero, false, c.opErr(op, key, fmt.Errorf("decode: %w", err))
	}
	return v, true, nil
}

// verify compares a payload with its recorded size and checksum.
func verify(raw []byte, m catalog.Meta) string {
	switch n := int64(len(raw)); {
	case n < m.Size:
		return "truncated"
	case n > m.Size:
		return "corrupt"
	}
	if m.Checksum != 0 && catalog.Checksum(raw) != m.Checksum {
		return "corrupt"
	}
	return ""
}

// heal drops an unreadable entry. Store deletes are best-effort and skipped
// on a read-only cache; the catalog entry is dropped either way.
func (c *cache[V]) heal(ctx context.Context, e catalog.Entry, reason string) {
	loc := e.Location.String()
	c.log.Warn("dropping unreadable cached item", Fields{"key": e.Key, "location": loc, "reason": reason})
	if !c.readOnly {
		if err := c.deleteObjects(ctx, e.Meta.Name); err != nil {
			c.log.Error("self-heal delete failed", Fields{"key": e.Key, "err": err.Error()})
		}
	}
	_ = c.cat.Remove(e.Key)
	c.hooks.SelfHeal(loc, reason)
}

func (c *cache[V]) Meta(ctx context.Context, key string) (catalog.Meta, error) {
	if err := c.ready(ctx, "meta", key); err != nil {
		return catalog.Meta{}, err
	}
	if c.active {
		if e, ok := c.cat.Get(key); ok {
			return e.Meta, nil
		}
	}
	return catalog.Meta{}, c.opErr("meta", key, ErrKeyNotFound)
}

func (c *cache[V]) Keys(ctx context.Context) ([]string, error) {
	if err := c.ready(ctx, "keys", ""); err != nil {
		return nil, err
	}
	if !c.active {
		return []string{}, nil
	}
	return c.cat.Keys(), nil
}

func (c *cache[V]) Items(ctx context.Context) ([]catalog.Entry, error) {
	if err := c.ready(ctx, "items", ""); err != nil {
		return nil, err
	}
	if !c.active {
		return []catalog.Entry{}, nil
	}
	return c.cat.Items(), nil
}

// ==============================
// Writes
// ==============================

func (c *cache[V]) Put(ctx context.Context, key string, value V, opts ...PutOption) error {
	po := collectPutOptions(opts)
	if err := c.ready(ctx, "put", key); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return c.opErr("put", key, err)
	}
	if c.readOnly {
		return c.opErr("put", key, ErrReadOnly)
	}
	if !c.active {
		return nil
	}
	if c.cat.Contains(key) && !po.update {
		return c.opErr("put", key, ErrKeyExists)
	}

	payload, err := c.codec.Encode(value)
	if err != nil {
		return c.opErr("put", key, fmt.Errorf("encode: %w", err))
	}
	m := catalog.NewMeta(key, dataName(key, c.ext), payload)
	if po.meta != nil {
		m.Written, m.WriteID = po.meta.Written, po.meta.WriteID
	}
	return c.write(ctx, payload, m)
}

// write stores payload then its sidecar, and only then indexes the entry.
func (c *cache[V]) write(ctx context.Context, payload []byte, m catalog.Meta) error {
	c.log.Debug("caching item", Fields{"key": m.Key, "location": c.st.Locate(m.Name).String(), "bytes": len(payload)})
	if err := c.st.Write(ctx, m.Name, payload); err != nil {
		return c.opErr("put", m.Key, err)
	}
	mb, err := wire.EncodeMeta(m)
	if err != nil {
		return c.opErr("put", m.Key, err)
	}
	if err := c.st.Write(ctx, metaName(m.Name), mb); err != nil {
		return c.opErr("put", m.Key, err)
	}
	c.cat.Add(catalog.Entry{Key: m.Key, Location: c.st.Locate(m.Name), Meta: m})
	return nil
}

func (c *cache[V]) Update(ctx context.Context, key string, value V) error {
	ok, err := c.Contains(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return c.opErr("update", key, ErrKeyNotFound)
	}
	return c.Put(ctx, key, value, WithUpdate())
}

func (c *cache[V]) Remove(ctx context.Context, key string) error {
	if err := c.ready(ctx, "remove", key); err != nil {
		return err
	}
	if !c.active {
		return nil
	}
	e, ok := c.cat.Get(key)
	if !ok {
		return nil
	}
	if c.readOnly {
		return c.opErr("remove", key, ErrReadOnly)
	}
	c.log.Debug("deleting cached item", Fields{"key": key, "location": e.Location.String()})
	if err := c.deleteObjects(ctx, e.Meta.Name); err != nil {
		return c.opErr("remove", key, err)
	}
	return c.cat.Remove(key)
}

// deleteObjects removes a data object and then its sidecar.
func (c *cache[V]) deleteObjects(ctx context.Context, name string) error {
	if err := c.st.Delete(ctx, name); err != nil {
		return err
	}
	return c.st.Delete(ctx, metaName(name))
}

func (c *cache[V]) Pop(ctx context.Context, key string) (V, error) {
	v, err := c.Get(ctx, key)
	if err != nil {
		return v, err
	}
	return v, c.Remove(ctx, key)
}

func (c *cache[V]) PopOr(ctx context.Context, key string, def V) (V, error) {
	v, err := c.GetOr(ctx, key, def)
	if err != nil {
		return v, err
	}
	return v, c.Remove(ctx, key)
}

func (c *cache[V]) Clear(ctx context.Context, force bool) error {
	if err := c.ready(ctx, "clear", ""); err != nil {
		return err
	}
	if !c.active || c.cat.Len() == 0 {
		return nil
	}
	if !force {
		return c.opErr("clear", "", ErrConfirmationRequired)
	}
	keys := c.cat.Keys()
	c.log.Info("clearing cache", Fields{"cache": c.Name(), "entries": len(keys)})
	for _, k := range keys {
		if err := c.Remove(ctx, k); err != nil {
			return err
		}
	}
	c.cat = nil
	return c.Initialize(ctx)
}

func (c *cache[V]) Subcache(ctx context.Context, rel string) (Cache[V], error) {
	if err := ValidateKey(rel); err != nil {
		return nil, c.opErr("subcache", rel, err)
	}
	sub, err := newCache[V](Options[V]{
		Store:              c.st.Sub(rel),
		Codec:              c.codec,
		Logger:             c.log,
		Hooks:              c.hooks,
		ReadOnly:           c.readOnly,
		Inactive:           !c.active,
		AutoInit:           c.autoInit,
		RebuildMissingMeta: c.rebuildMissingMeta,
	})
	if err != nil {
		return nil, err
	}
	if c.cat != nil {
		if err := sub.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// ==============================
// Catalog build
// ==============================

// scan lists the store and pairs every data object with its sidecar.
func (c *cache[V]) scan(ctx context.Context) ([]catalog.Entry, error) {
	infos, err := c.st.List(ctx, "")
	if err != nil {
		return nil, err
	}
	present := make(map[string]store.ObjectInfo, len(infos))
	for _, o := range infos {
		present[o.Name] = o
	}

	var entries []catalog.Entry
	for _, o := range infos {
		if strings.HasSuffix(o.Name, MetaSuffix) {
			data := strings.TrimSuffix(o.Name, MetaSuffix)
			if _, ok := present[data]; !ok {
				loc := c.st.Locate(o.Name).String()
				c.log.Warn("ignoring metadata without data object", Fields{"location": loc})
				c.hooks.OrphanMeta(loc)
			}
			continue
		}
		key, ok := keyForName(o.Name, c.ext)
		if !ok || ValidateKey(key) != nil {
			c.log.Debug("ignoring foreign object", Fields{"name": o.Name})
			continue
		}
		m, err := c.loadMeta(ctx, key, o, present)
		if err != nil {
			return nil, err
		}
		entries = append(entries, catalog.Entry{Key: key, Location: c.st.Locate(o.Name), Meta: m})
	}
	return entries, nil
}

func (c *cache[V]) loadMeta(ctx context.Context, key string, o store.ObjectInfo, present map[string]store.ObjectInfo) (catalog.Meta, error) {
	mname := metaName(o.Name)
	var cause error
	if _, ok := present[mname]; ok {
		b, err := c.st.Read(ctx, mname)
		switch {
		case err == nil:
			var m catalog.Meta
			if m, err = wire.DecodeMeta(b); err == nil {
				m.Key, m.Name = key, o.Name
				return m, nil
			}
		case !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrTruncated):
			// a backend failure says nothing about the sidecar itself
			return catalog.Meta{}, fmt.Errorf("metadata for %s: %w", o.Name, err)
		}
		cause = fmt.Errorf("metadata for %s: %w", o.Name, err)
	} else {
		cause = fmt.Errorf("%w: %s", ErrMissingMeta, o.Name)
	}
	if !c.rebuildMissingMeta {
		return catalog.Meta{}, cause
	}

	// size and modification time are all the listing can tell
	m := catalog.Meta{Key: key, Name: o.Name, Size: o.Size}
	if !o.ModTime.IsZero() {
		m.Written = o.ModTime.UnixNano()
	}
	loc := c.st.Locate(mname).String()
	if !c.readOnly {
		mb, err := wire.EncodeMeta(m)
		if err == nil {
			err = c.st.Write(ctx, mname, mb)
		}
		if err != nil {
			return catalog.Meta{}, fmt.Errorf("rebuild %s: %w", loc, err)
		}
	}
	c.log.Warn("rebuilt missing metadata", Fields{"location": loc, "reason": cause.Error()})
	c.hooks.MetaRebuilt(loc)
	return m, nil
}
