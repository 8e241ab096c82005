package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/unkn0wn-root/tiercache/catalog"
)

// MultiOptions configure a Multi.
type MultiOptions struct {
	// SyncAll writes every writable member on Put and back-fills members
	// on Get.
	SyncAll bool
	// ReversePriority reads members last to first.
	ReversePriority bool
	Inactive        bool
	ReadOnly        bool

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// Multi composes caches in priority order. The first member holding a key
// answers reads. Writes go to the first writable member, or to all of them
// under SyncAll.
type Multi[V any] struct {
	members  []Cache[V]
	syncAll  bool
	active   bool
	readOnly bool
	log      Logger
	hooks    Hooks
}

var _ Cache[struct{}] = (*Multi[struct{}])(nil)

// NewMulti returns a Multi over members. It does no I/O.
func NewMulti[V any](members []Cache[V], opts MultiOptions) *Multi[V] {
	ms := make([]Cache[V], 0, len(members))
	ms = append(ms, members...)
	if opts.ReversePriority {
		for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
			ms[i], ms[j] = ms[j], ms[i]
		}
	}
	return &Multi[V]{
		members:  ms,
		syncAll:  opts.SyncAll,
		active:   !opts.Inactive,
		readOnly: opts.ReadOnly,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
}

// Members returns the members in priority order.
func (m *Multi[V]) Members() []Cache[V] {
	out := make([]Cache[V], len(m.members))
	copy(out, m.members)
	return out
}

func (m *Multi[V]) Name() string {
	names := make([]string, len(m.members))
	for i, c := range m.members {
		names[i] = c.Name()
	}
	return "multi[" + strings.Join(names, ", ") + "]"
}

func (m *Multi[V]) String() string {
	parts := make([]string, len(m.members))
	for i, c := range m.members {
		parts[i] = c.String()
	}
	return "tiercache.Multi(" + strings.Join(parts, ", ") + ")"
}

func (m *Multi[V]) opErr(op, key string, err error) error {
	return &OpError{Op: op, Cache: m.Name(), Key: key, Err: err}
}

// ==============================
// State
// ==============================

func (m *Multi[V]) Initialize(ctx context.Context) error {
	for _, c := range m.members {
		if err := c.Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi[V]) IsInitialized() bool {
	for _, c := range m.members {
		if !c.IsInitialized() {
			return false
		}
	}
	return true
}

func (m *Multi[V]) Activate() {
	m.active = true
	for _, c := range m.members {
		c.Activate()
	}
}

func (m *Multi[V]) Deactivate() {
	m.active = false
	for _, c := range m.members {
		c.Deactivate()
	}
}

// IsActive requires the Multi itself and at least one member to be active.
func (m *Multi[V]) IsActive() bool {
	if !m.active {
		return false
	}
	for _, c := range m.members {
		if c.IsActive() {
			return true
		}
	}
	return false
}

// SetReadOnly sets the Multi's own flag; members keep theirs.
func (m *Multi[V]) SetReadOnly(readOnly bool) { m.readOnly = readOnly }

// IsReadOnly is true when the Multi is flagged read-only or no member is
// writable.
func (m *Multi[V]) IsReadOnly() bool {
	if m.readOnly {
		return true
	}
	for _, c := range m.members {
		if !c.IsReadOnly() {
			return false
		}
	}
	return true
}

func (m *Multi[V]) writable(c Cache[V]) bool { return !c.IsReadOnly() && c.IsActive() }

// AddCache inserts c at index, or appends it when index is out of range.
// c is initialized first if the Multi already is.
func (m *Multi[V]) AddCache(ctx context.Context, c Cache[V], index int) error {
	if m.IsInitialized() && !c.IsInitialized() {
		if err := c.Initialize(ctx); err != nil {
			return err
		}
	}
	if index >= 0 && index < len(m.members) {
		m.members = append(m.members[:index], append([]Cache[V]{c}, m.members[index:]...)...)
	} else {
		m.members = append(m.members, c)
	}
	return nil
}

func (m *Multi[V]) Close(ctx context.Context) error {
	var errs []error
	for _, c := range m.members {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ==============================
// Reads
// ==============================

func (m *Multi[V]) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.holder(ctx, key)
	return ok, err
}

// holder returns the index of the first member holding key.
func (m *Multi[V]) holder(ctx context.Context, key string) (int, bool, error) {
	if !m.active {
		return -1, false, nil
	}
	for i, c := range m.members {
		ok, err := c.Contains(ctx, key)
		if err != nil {
			return -1, false, err
		}
		if ok {
			return i, true, nil
		}
	}
	return -1, false, nil
}

func (m *Multi[V]) Get(ctx context.Context, key string) (V, error) {
	return m.GetSync(ctx, key, m.syncAll)
}

// GetSync is Get with an explicit back-fill choice. With sync set, every
// writable member lacking key receives a copy carrying the source's write
// identity.
func (m *Multi[V]) GetSync(ctx context.Context, key string, sync bool) (V, error) {
	v, ok, err := m.lookup(ctx, key, sync)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, m.opErr("get", key, ErrKeyNotFound)
	}
	return v, nil
}

func (m *Multi[V]) GetOr(ctx context.Context, key string, def V) (V, error) {
	v, ok, err := m.lookup(ctx, key, m.syncAll)
	if err != nil {
		return v, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

func (m *Multi[V]) lookup(ctx context.Context, key string, sync bool) (V, bool, error) {
	var zero V
	if !m.active {
		return zero, false, nil
	}
	for i, c := range m.members {
		v, ok, err := m.readFrom(ctx, c, key)
		if err != nil {
			return zero, false, err
		}
		if !ok {
			continue
		}
		if sync {
			if err := m.backfill(ctx, key, i, v); err != nil {
				return zero, false, err
			}
		}
		return v, true, nil
	}
	return zero, false, nil
}

// readFrom reads key from one member. A member that healed a corrupt copy
// away reports a miss like any other.
func (m *Multi[V]) readFrom(ctx context.Context, c Cache[V], key string) (V, bool, error) {
	var zero V
	ok, err := c.Contains(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := c.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// backfill copies v from member src into every writable member lacking key.
func (m *Multi[V]) backfill(ctx context.Context, key string, src int, v V) error {
	meta, err := m.members[src].Meta(ctx, key)
	if err != nil {
		return err
	}
	for i, c := range m.members {
		if i == src || !m.writable(c) {
			continue
		}
		ok, err := c.Contains(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := c.Put(ctx, key, v, WithMeta(meta)); err != nil {
			return err
		}
		m.log.Debug("back-filled cached item", Fields{"key": key, "from": m.members[src].Name(), "to": c.Name()})
		m.hooks.Backfill(key, m.members[src].Name(), c.Name())
	}
	return nil
}

// Meta returns the first holder's metadata. Divergent copies elsewhere are
// logged.
func (m *Multi[V]) Meta(ctx context.Context, key string) (catalog.Meta, error) {
	copies, err := m.copies(ctx, key)
	if err != nil {
		return catalog.Meta{}, err
	}
	if len(copies) == 0 {
		return catalog.Meta{}, m.opErr("meta", key, ErrKeyNotFound)
	}
	if diverged(copies) {
		m.log.Warn("metadata mismatch between caches", Fields{"key": key, "copies": describe(copies)})
		m.hooks.Mismatch(key, len(copies))
	}
	return copies[0].Meta, nil
}

// describe maps each member name to its copy's metadata for logging.
func describe(copies []Copy) map[string]map[string]any {
	out := make(map[string]map[string]any, len(copies))
	for _, cp := range copies {
		out[cp.Member] = cp.Meta.ToMap()
	}
	return out
}

// copies collects key's metadata from every member holding it.
func (m *Multi[V]) copies(ctx context.Context, key string) ([]Copy, error) {
	var out []Copy
	for _, c := range m.members {
		ok, err := c.Contains(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		meta, err := c.Meta(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, Copy{Member: c.Name(), Meta: meta})
	}
	return out, nil
}

func diverged(copies []Copy) bool {
	for _, cp := range copies[min(1, len(copies)):] {
		if !cp.Meta.SameWrite(copies[0].Meta) {
			return true
		}
	}
	return false
}

// Mismatches reports keys whose copies are not the same write. With no keys
// given every key is checked.
func (m *Multi[V]) Mismatches(ctx context.Context, keys ...string) (map[string][]Copy, error) {
	if len(keys) == 0 {
		var err error
		if keys, err = m.Keys(ctx); err != nil {
			return nil, err
		}
	}
	out := make(map[string][]Copy)
	for _, k := range keys {
		copies, err := m.copies(ctx, k)
		if err != nil {
			return nil, err
		}
		if len(copies) > 1 && diverged(copies) {
			out[k] = copies
		}
	}
	return out, nil
}

// AllMetadata maps every key to each member's metadata, nil where the member
// lacks the key. Members are named "Cache <n> (<name>)".
func (m *Multi[V]) AllMetadata(ctx context.Context) (map[string]map[string]*catalog.Meta, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]*catalog.Meta, len(keys))
	for _, k := range keys {
		row := make(map[string]*catalog.Meta, len(m.members))
		for i, c := range m.members {
			label := fmt.Sprintf("Cache %d (%s)", i+1, c.Name())
			ok, err := c.Contains(ctx, k)
			if err != nil {
				return nil, err
			}
			if !ok {
				row[label] = nil
				continue
			}
			meta, err := c.Meta(ctx, k)
			if err != nil {
				return nil, err
			}
			row[label] = &meta
		}
		out[k] = row
	}
	return out, nil
}

// Keys returns the sorted union of the members' keys.
func (m *Multi[V]) Keys(ctx context.Context) ([]string, error) {
	if !m.IsActive() {
		return []string{}, nil
	}
	seen := make(map[string]struct{})
	for _, c := range m.members {
		keys, err := c.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Items returns, for every key, the entry of its first holder.
func (m *Multi[V]) Items(ctx context.Context) ([]catalog.Entry, error) {
	if !m.IsActive() {
		return []catalog.Entry{}, nil
	}
	byKey := make(map[string]catalog.Entry)
	for _, c := range m.members {
		items, err := c.Items(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range items {
			if _, ok := byKey[e.Key]; !ok {
				byKey[e.Key] = e
			}
		}
	}
	out := make([]catalog.Entry, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ==============================
// Writes
// ==============================

// Put fails with ErrKeyExists when any member holds key and WithUpdate is not
// given. The first writable member is written; later members are written
// under SyncAll, or when they hold a divergent copy the new write would
// otherwise contradict. Every copy shares the first copy's write identity.
func (m *Multi[V]) Put(ctx context.Context, key string, value V, opts ...PutOption) error {
	po := collectPutOptions(opts)
	if err := ValidateKey(key); err != nil {
		return m.opErr("put", key, err)
	}
	if m.IsReadOnly() {
		return m.opErr("put", key, ErrReadOnly)
	}
	if !m.IsActive() {
		return nil
	}
	if !po.update {
		if _, ok, err := m.holder(ctx, key); err != nil {
			return err
		} else if ok {
			return m.opErr("put", key, ErrKeyExists)
		}
	}

	meta := po.meta
	wrote := false
	for _, c := range m.members {
		if !m.writable(c) {
			continue
		}
		if wrote && !m.syncAll {
			ok, err := c.Contains(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			held, err := c.Meta(ctx, key)
			if err != nil {
				return err
			}
			if held.SameWrite(*meta) {
				continue
			}
		}
		putOpts := []PutOption{WithUpdate()}
		if meta != nil {
			putOpts = append(putOpts, WithMeta(*meta))
		}
		if err := c.Put(ctx, key, value, putOpts...); err != nil {
			return err
		}
		wrote = true
		if meta == nil {
			written, err := c.Meta(ctx, key)
			if err != nil {
				return err
			}
			meta = &written
		}
	}
	return nil
}

func (m *Multi[V]) Update(ctx context.Context, key string, value V) error {
	ok, err := m.Contains(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return m.opErr("update", key, ErrKeyNotFound)
	}
	return m.Put(ctx, key, value, WithUpdate())
}

// Remove deletes key from every member holding it. It is a no-op on an
// inactive Multi and fails with ErrReadOnly on a read-only one holding key.
func (m *Multi[V]) Remove(ctx context.Context, key string) error {
	if !m.IsActive() {
		return nil
	}
	if m.readOnly {
		if _, ok, err := m.holder(ctx, key); err != nil || !ok {
			return err
		}
		return m.opErr("remove", key, ErrReadOnly)
	}
	for _, c := range m.members {
		ok, err := c.Contains(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := c.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi[V]) Pop(ctx context.Context, key string) (V, error) {
	v, err := m.Get(ctx, key)
	if err != nil {
		return v, err
	}
	return v, m.Remove(ctx, key)
}

func (m *Multi[V]) PopOr(ctx context.Context, key string, def V) (V, error) {
	v, err := m.GetOr(ctx, key, def)
	if err != nil {
		return v, err
	}
	return v, m.Remove(ctx, key)
}

// Clear clears every member. Flags are checked as for a single cache.
func (m *Multi[V]) Clear(ctx context.Context, force bool) error {
	if !m.IsActive() {
		return nil
	}
	if m.readOnly {
		keys, err := m.Keys(ctx)
		switch {
		case err != nil || len(keys) == 0:
			return err
		case !force:
			return m.opErr("clear", "", ErrConfirmationRequired)
		}
		return m.opErr("clear", "", ErrReadOnly)
	}
	for _, c := range m.members {
		if err := c.Clear(ctx, force); err != nil {
			return err
		}
	}
	return nil
}

// SyncNow copies every key into every writable member lacking it. It fails
// with a *MismatchError, before writing anything, if any key has divergent
// copies.
func (m *Multi[V]) SyncNow(ctx context.Context) error {
	keys, err := m.Keys(ctx)
	if err != nil {
		return err
	}
	mism, err := m.Mismatches(ctx, keys...)
	if err != nil {
		return err
	}
	if len(mism) > 0 {
		for k, copies := range mism {
			m.log.Warn("metadata mismatch between caches", Fields{"key": k, "copies": describe(copies)})
			m.hooks.Mismatch(k, len(copies))
		}
		return m.opErr("sync", "", &MismatchError{Keys: mism})
	}
	for _, k := range keys {
		if err := m.syncKey(ctx, k); err != nil {
			return err
		}
	}
	m.log.Info("caches synchronized", Fields{"cache": m.Name(), "keys": len(keys)})
	return nil
}

func (m *Multi[V]) syncKey(ctx context.Context, key string) error {
	src, ok, err := m.holder(ctx, key)
	if err != nil || !ok {
		return err
	}
	for i, c := range m.members {
		if i == src || !m.writable(c) {
			continue
		}
		has, err := c.Contains(ctx, key)
		if err != nil {
			return err
		}
		if !has {
			v, err := m.members[src].Get(ctx, key)
			if err != nil {
				return err
			}
			return m.backfill(ctx, key, src, v)
		}
	}
	return nil
}

// SyncAlways turns on SyncAll and synchronizes now.
func (m *Multi[V]) SyncAlways(ctx context.Context) error {
	m.syncAll = true
	return m.SyncNow(ctx)
}

func (m *Multi[V]) Subcache(ctx context.Context, rel string) (Cache[V], error) {
	subs := make([]Cache[V], 0, len(m.members))
	for _, c := range m.members {
		sub, err := c.Subcache(ctx, rel)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return NewMulti(subs, MultiOptions{
		SyncAll:  m.syncAll,
		Inactive: !m.active,
		ReadOnly: m.readOnly,
		Logger:   m.log,
		Hooks:    m.hooks,
	}), nil
}
