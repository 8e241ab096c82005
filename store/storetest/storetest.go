// Package storetest is a conformance suite for store.Store implementations.
//
// Backend tests call Run with a factory returning a fresh, empty store:
//
//	func TestConformance(t *testing.T) {
//		storetest.Run(t, func(t *testing.T) store.Store { return fsys.Memory("t") })
//	}
package storetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes every conformance check against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ReadWriteRoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("ReadMissing", func(t *testing.T) { testReadMissing(t, newStore(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newStore(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListRecursiveSorted", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ListPrefix", func(t *testing.T) { testListPrefix(t, newStore(t)) })
	t.Run("EmptyObject", func(t *testing.T) { testEmptyObject(t, newStore(t)) })
	t.Run("Sub", func(t *testing.T) { testSub(t, newStore(t)) })
	t.Run("Locate", func(t *testing.T) { testLocate(t, newStore(t)) })
	t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func testRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	payload := []byte{0, 1, 2, 3, 0xff, '\n'}
	require.NoError(t, s.Write(ctx, "a/b/c.bin", payload))

	got, err := s.Read(ctx, "a/b/c.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got), "bytes must round trip unchanged")
}

func testReadMissing(t *testing.T, s store.Store) {
	_, err := s.Read(context.Background(), "nope/missing.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testOverwrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "k", []byte("first, longer value")))
	require.NoError(t, s.Write(ctx, "k", []byte("second")))

	got, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	infos, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, infos, 1, "overwrite must not leave temp objects behind")
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "x/y", []byte("v")))
	require.NoError(t, s.Delete(ctx, "x/y"))
	require.NoError(t, s.Delete(ctx, "x/y"), "second delete must succeed")
	require.NoError(t, s.Delete(ctx, "never/existed"))

	_, err := s.Read(ctx, "x/y")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	names := []string{"z.json", "a.json", "dir/b.json", "dir/sub/c.json"}
	for _, n := range names {
		require.NoError(t, s.Write(ctx, n, []byte(n)))
	}

	infos, err := s.List(ctx, "")
	require.NoError(t, err)
	got := make([]string, 0, len(infos))
	for _, o := range infos {
		got = append(got, o.Name)
		assert.Equal(t, int64(len(o.Name)), o.Size, "size of %s", o.Name)
	}
	assert.Equal(t, []string{"a.json", "dir/b.json", "dir/sub/c.json", "z.json"}, got)
}

func testListPrefix(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, n := range []string{"dir/a", "dir/sub/b", "dirx/c", "other"} {
		require.NoError(t, s.Write(ctx, n, []byte("v")))
	}
	infos, err := s.List(ctx, "dir/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "dir/a", infos[0].Name)
	assert.Equal(t, "dir/sub/b", infos[1].Name)
}

func testEmptyObject(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "empty", nil))
	got, err := s.Read(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testSub(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "outside", []byte("o")))

	sub := s.Sub("nested/area")
	require.NoError(t, sub.Write(ctx, "k.json", []byte("in")))

	got, err := s.Read(ctx, "nested/area/k.json")
	require.NoError(t, err)
	assert.Equal(t, "in", string(got))

	infos, err := sub.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "k.json", infos[0].Name)

	assert.True(t, location.Equal(s.Locate("nested/area/k.json"), sub.Locate("k.json")))
	assert.True(t, location.Equal(s.Locate("nested/area"), sub.Root()))

	require.NoError(t, sub.Close(ctx))
	_, err = s.Read(ctx, "outside")
	require.NoError(t, err, "closing a sub store must not close its parent")
}

func testLocate(t *testing.T, s store.Store) {
	root := s.Root().String()
	loc := s.Locate("a/b.json").String()
	assert.NotEqual(t, root, loc)
	assert.Contains(t, loc, "a")
	assert.Equal(t, "b.json", s.Locate("a/b.json").Base())
}

func testConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c/%02d", i)
			if err := s.Write(ctx, name, []byte(name)); err != nil {
				errs <- err
				return
			}
			b, err := s.Read(ctx, name)
			if err != nil {
				errs <- err
				return
			}
			if string(b) != name {
				errs <- errors.New("mismatched read for " + name)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	infos, err := s.List(ctx, "c/")
	require.NoError(t, err)
	assert.Len(t, infos, 16)
}
