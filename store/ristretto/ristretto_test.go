package ristretto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache/store"
	"github.com/unkn0wn-root/tiercache/store/fsys"
	"github.com/unkn0wn-root/tiercache/store/storetest"
)

// countingStore counts reads that reach the wrapped store.
type countingStore struct {
	store.Store
	reads int
}

func (c *countingStore) Read(ctx context.Context, name string) ([]byte, error) {
	c.reads++
	return c.Store.Read(ctx, name)
}

func newHot(t *testing.T, inner store.Store) *Store {
	t.Helper()
	cfg := DefaultConfig(1 << 20)
	cfg.Metrics = true
	s, err := New(inner, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newHot(t, fsys.Memory("cold")) })
}

func TestReadsAreServedHot(t *testing.T) {
	cold := &countingStore{Store: fsys.Memory("cold")}
	s := newHot(t, cold)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "k", []byte("v")))
	for i := 0; i < 3; i++ {
		b, err := s.Read(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(b))
	}
	assert.Equal(t, 0, cold.reads, "write-through should warm the hot layer")
}

func TestDeleteInvalidatesHotCopy(t *testing.T) {
	s := newHot(t, fsys.Memory("cold"))
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Read(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadReturnsCopy(t *testing.T) {
	s := newHot(t, fsys.Memory("cold"))
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "k", []byte("abc")))
	b, err := s.Read(ctx, "k")
	require.NoError(t, err)
	b[0] = 'X'
	again, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(fsys.Memory("x"), Config{})
	assert.Error(t, err)
	_, err = New(nil, DefaultConfig(1024))
	assert.Error(t, err)
}
