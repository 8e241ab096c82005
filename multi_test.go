package tiercache

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/store/fsys"
)

func newMembers(t *testing.T, labels ...string) []Cache[user] {
	t.Helper()
	out := make([]Cache[user], len(labels))
	for i, l := range labels {
		out[i] = newTestCache(t, fsys.Memory(l), nil)
	}
	return out
}

// ==============================
// Reads
// ==============================

func TestMultiPriorityRead(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "fast", "slow")
	_ = ms[1].Put(ctx, "k", user{ID: "slow"})
	_ = ms[1].Put(ctx, "only-slow", user{ID: "slow"})
	_ = ms[0].Put(ctx, "k", user{ID: "fast"})

	mc := NewMulti(ms, MultiOptions{})
	if got, err := mc.Get(ctx, "k"); err != nil || got.ID != "fast" {
		t.Fatalf("Get should prefer the first member: %v %v", got, err)
	}
	if got, err := mc.Get(ctx, "only-slow"); err != nil || got.ID != "slow" {
		t.Fatalf("Get should fall through: %v %v", got, err)
	}
	if ok, _ := ms[0].Contains(ctx, "only-slow"); ok {
		t.Fatalf("no back-fill without sync")
	}
	if _, err := mc.Get(ctx, "absent"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get absent: %v", err)
	}

	rev := NewMulti(ms, MultiOptions{ReversePriority: true})
	if got, _ := rev.Get(ctx, "k"); got.ID != "slow" {
		t.Fatalf("reversed Get = %v", got)
	}
	if rev.Members()[0] != ms[1] {
		t.Fatalf("reversed member order")
	}
}

func TestMultiGetSyncBackfills(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "front", "back")
	_ = ms[1].Put(ctx, "k", user{ID: "1"})
	src, _ := ms[1].Meta(ctx, "k")

	hooks := &recHooks{}
	mc := NewMulti(ms, MultiOptions{Hooks: hooks})
	if got, err := mc.GetSync(ctx, "k", true); err != nil || got.ID != "1" {
		t.Fatalf("GetSync: %v %v", got, err)
	}
	copied, err := ms[0].Meta(ctx, "k")
	if err != nil {
		t.Fatalf("front member should now hold k: %v", err)
	}
	if !copied.SameWrite(src) {
		t.Fatalf("back-filled copy should keep the write identity: %+v vs %+v", copied, src)
	}
	if !reflect.DeepEqual(hooks.backfills, []string{"k:" + ms[0].Name()}) {
		t.Fatalf("backfill events = %v", hooks.backfills)
	}
	if mm, _ := mc.Mismatches(ctx); len(mm) != 0 {
		t.Fatalf("no mismatches expected, got %v", mm)
	}
}

func TestMultiBackfillSkipsReadOnly(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "ro", "src")
	_ = ms[1].Put(ctx, "k", user{ID: "1"})
	ms[0].SetReadOnly(true)

	mc := NewMulti(ms, MultiOptions{SyncAll: true})
	if _, err := mc.Get(ctx, "k"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok, _ := ms[0].Contains(ctx, "k"); ok {
		t.Fatalf("read-only member must not be back-filled")
	}
}

// ==============================
// Writes
// ==============================

func TestMultiPutFirstWritable(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b", "c")
	ms[0].SetReadOnly(true)
	mc := NewMulti(ms, MultiOptions{})

	if err := mc.Put(ctx, "k", user{ID: "1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for i, want := range []bool{false, true, false} {
		if ok, _ := ms[i].Contains(ctx, "k"); ok != want {
			t.Fatalf("member %d holds k = %v, want %v", i, ok, want)
		}
	}
	if err := mc.Put(ctx, "k", user{ID: "2"}); !errors.Is(err, ErrKeyExists) {
		t.Fatalf("second Put: %v", err)
	}
	if err := mc.Update(ctx, "absent", user{}); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Update absent: %v", err)
	}
}

func TestMultiPutSyncAll(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	mc := NewMulti(ms, MultiOptions{SyncAll: true})
	if err := mc.Put(ctx, "k", user{ID: "1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	a, errA := ms[0].Meta(ctx, "k")
	b, errB := ms[1].Meta(ctx, "k")
	if errA != nil || errB != nil || !a.SameWrite(b) {
		t.Fatalf("both members should hold the same write: %+v %+v (%v %v)", a, b, errA, errB)
	}
}

func TestMultiUpdateReplacesDivergentCopies(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	_ = ms[0].Put(ctx, "k", user{ID: "old-a"})
	_ = ms[1].Put(ctx, "k", user{ID: "old-b"})

	mc := NewMulti(ms, MultiOptions{})
	if mm, _ := mc.Mismatches(ctx, "k"); len(mm["k"]) != 2 {
		t.Fatalf("independent writes should mismatch: %v", mm)
	}
	if err := mc.Update(ctx, "k", user{ID: "new"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for i, c := range ms {
		if v, _ := c.Get(ctx, "k"); v.ID != "new" {
			t.Fatalf("member %d = %v", i, v)
		}
	}
	if mm, _ := mc.Mismatches(ctx); len(mm) != 0 {
		t.Fatalf("copies should agree after Update: %v", mm)
	}
}

func TestMultiReadOnlyAndInactive(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a")
	mc := NewMulti(ms, MultiOptions{ReadOnly: true})
	if err := mc.Put(ctx, "k", user{}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Put on read-only multi: %v", err)
	}
	mc.SetReadOnly(false)
	ms[0].SetReadOnly(true)
	if !mc.IsReadOnly() {
		t.Fatalf("multi with no writable member is read-only")
	}
	ms[0].SetReadOnly(false)

	mc.Deactivate()
	if mc.IsActive() || ms[0].IsActive() {
		t.Fatalf("Deactivate should reach members")
	}
	if err := mc.Put(ctx, "k", user{}); err != nil {
		t.Fatalf("Put on inactive multi is ignored: %v", err)
	}
	if keys, _ := mc.Keys(ctx); len(keys) != 0 {
		t.Fatalf("inactive Keys = %v", keys)
	}
	mc.Activate()
	if !mc.IsActive() {
		t.Fatalf("Activate")
	}
}

func TestMultiRemoveAndClearHonorFlags(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a")
	if err := ms[0].Put(ctx, "k", user{ID: "1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	held := func() {
		t.Helper()
		if ok, err := ms[0].Contains(ctx, "k"); err != nil || !ok {
			t.Fatalf("member lost k: %v %v", ok, err)
		}
	}

	mc := NewMulti(ms, MultiOptions{})
	mc.SetReadOnly(true)
	if err := mc.Remove(ctx, "k"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Remove on read-only multi: %v", err)
	}
	if err := mc.Remove(ctx, "absent"); err != nil {
		t.Fatalf("Remove of absent key on read-only multi: %v", err)
	}
	if err := mc.Clear(ctx, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("unforced Clear on read-only multi: %v", err)
	}
	if err := mc.Clear(ctx, true); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Clear on read-only multi: %v", err)
	}
	held()

	inactive := NewMulti(ms, MultiOptions{Inactive: true})
	if err := inactive.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove on inactive multi: %v", err)
	}
	if err := inactive.Clear(ctx, true); err != nil {
		t.Fatalf("Clear on inactive multi: %v", err)
	}
	ms[0].Activate()
	held()

	if err := ms[0].Put(ctx, "grp/k", user{ID: "2"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	parent := NewMulti(ms, MultiOptions{})
	sub, err := parent.Subcache(ctx, "grp")
	if err != nil {
		t.Fatalf("Subcache: %v", err)
	}
	sub.Deactivate()
	if err := sub.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove on inactive subcache: %v", err)
	}
	if ok, _ := ms[0].Contains(ctx, "grp/k"); !ok {
		t.Fatalf("inactive subcache removed grp/k")
	}
}

func TestMultiRemoveAndPop(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	mc := NewMulti(ms, MultiOptions{SyncAll: true})
	_ = mc.Put(ctx, "k", user{ID: "1"})

	if v, err := mc.Pop(ctx, "k"); err != nil || v.ID != "1" {
		t.Fatalf("Pop: %v %v", v, err)
	}
	for i, c := range ms {
		if ok, _ := c.Contains(ctx, "k"); ok {
			t.Fatalf("member %d still holds k", i)
		}
	}
	if v, err := mc.PopOr(ctx, "k", user{ID: "d"}); err != nil || v.ID != "d" {
		t.Fatalf("PopOr: %v %v", v, err)
	}
}

// ==============================
// Synchronization
// ==============================

func TestMultiSyncNow(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	_ = ms[0].Put(ctx, "only-a", user{ID: "a"})
	_ = ms[1].Put(ctx, "only-b", user{ID: "b"})

	mc := NewMulti(ms, MultiOptions{})
	if err := mc.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	for i, c := range ms {
		if keys, _ := c.Keys(ctx); !reflect.DeepEqual(keys, []string{"only-a", "only-b"}) {
			t.Fatalf("member %d keys = %v", i, keys)
		}
	}
	if mm, _ := mc.Mismatches(ctx); len(mm) != 0 {
		t.Fatalf("synced copies mismatch: %v", mm)
	}
}

func TestMultiSyncNowRefusesMismatch(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	_ = ms[0].Put(ctx, "clash", user{ID: "a"})
	_ = ms[1].Put(ctx, "clash", user{ID: "b"})
	_ = ms[1].Put(ctx, "missing-in-a", user{ID: "b"})

	hooks := &recHooks{}
	mc := NewMulti(ms, MultiOptions{Hooks: hooks})
	err := mc.SyncNow(ctx)
	var me *MismatchError
	if !errors.As(err, &me) || !errors.Is(err, ErrConsistencyMismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if _, ok := me.Keys["clash"]; !ok || len(me.Keys) != 1 {
		t.Fatalf("mismatch keys = %v", me.Keys)
	}
	if ok, _ := ms[0].Contains(ctx, "missing-in-a"); ok {
		t.Fatalf("SyncNow must not write when copies disagree")
	}
	if !reflect.DeepEqual(hooks.mismatch, []string{"clash"}) {
		t.Fatalf("mismatch events = %v", hooks.mismatch)
	}
}

func TestMultiSyncAlways(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	_ = ms[1].Put(ctx, "k", user{ID: "1"})
	mc := NewMulti(ms, MultiOptions{})
	if err := mc.SyncAlways(ctx); err != nil {
		t.Fatalf("SyncAlways: %v", err)
	}
	if ok, _ := ms[0].Contains(ctx, "k"); !ok {
		t.Fatalf("SyncAlways should copy existing keys")
	}
	if err := mc.Put(ctx, "new", user{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, _ := ms[1].Contains(ctx, "new"); !ok {
		t.Fatalf("later writes should reach every member")
	}
}

// ==============================
// Introspection and membership
// ==============================

func TestMultiAllMetadata(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	_ = ms[0].Put(ctx, "k", user{})
	mc := NewMulti(ms, MultiOptions{})

	all, err := mc.AllMetadata(ctx)
	if err != nil {
		t.Fatalf("AllMetadata: %v", err)
	}
	row := all["k"]
	first := "Cache 1 (" + ms[0].Name() + ")"
	second := "Cache 2 (" + ms[1].Name() + ")"
	if row[first] == nil || row[first].Key != "k" {
		t.Fatalf("row[%s] = %v", first, row[first])
	}
	if m, ok := row[second]; !ok || m != nil {
		t.Fatalf("row[%s] should be present and nil", second)
	}
	if m, err := mc.Meta(ctx, "k"); err != nil || m != *row[first] {
		t.Fatalf("Meta: %+v %v", m, err)
	}
}

func TestMultiAddCache(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	mc := NewMulti(ms, MultiOptions{})

	extra, _ := New[user](Options[user]{Store: fsys.Memory("extra"), Codec: codec.JSON[user]{}})
	if err := mc.AddCache(ctx, extra, 1); err != nil {
		t.Fatalf("AddCache: %v", err)
	}
	if !extra.IsInitialized() {
		t.Fatalf("added member should be initialized")
	}
	got := mc.Members()
	if len(got) != 3 || got[1] != extra || got[2] != ms[1] {
		t.Fatalf("members = %v", got)
	}

	tail := newTestCache(t, fsys.Memory("tail"), nil)
	_ = mc.AddCache(ctx, tail, 99)
	if m := mc.Members(); m[len(m)-1] != tail {
		t.Fatalf("out of range index should append")
	}
}

func TestMultiKeysItemsAndNames(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	_ = ms[0].Put(ctx, "x", user{ID: "a"})
	_ = ms[1].Put(ctx, "x", user{ID: "b"})
	_ = ms[1].Put(ctx, "y", user{ID: "b"})
	mc := NewMulti(ms, MultiOptions{})

	if keys, _ := mc.Keys(ctx); !reflect.DeepEqual(keys, []string{"x", "y"}) {
		t.Fatalf("Keys = %v", keys)
	}
	items, _ := mc.Items(ctx)
	if len(items) != 2 || !strings.HasPrefix(items[0].Location.String(), ms[0].Name()) {
		t.Fatalf("Items = %v", items)
	}
	if !strings.HasPrefix(mc.String(), "tiercache.Multi(tiercache(") {
		t.Fatalf("String = %s", mc.String())
	}
	if !strings.Contains(mc.Name(), ms[1].Name()) {
		t.Fatalf("Name = %s", mc.Name())
	}
}

func TestMultiClearAndSubcache(t *testing.T) {
	ctx := context.Background()
	ms := newMembers(t, "a", "b")
	mc := NewMulti(ms, MultiOptions{SyncAll: true})
	_ = mc.Put(ctx, "grp/k", user{ID: "1"})

	sub, err := mc.Subcache(ctx, "grp")
	if err != nil {
		t.Fatalf("Subcache: %v", err)
	}
	if v, err := sub.Get(ctx, "k"); err != nil || v.ID != "1" {
		t.Fatalf("sub Get: %v %v", v, err)
	}

	if err := mc.Clear(ctx, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("Clear without force: %v", err)
	}
	if err := mc.Clear(ctx, true); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if keys, _ := mc.Keys(ctx); len(keys) != 0 {
		t.Fatalf("Keys after Clear = %v", keys)
	}
	if err := mc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
