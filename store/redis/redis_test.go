package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache/store"
	"github.com/unkn0wn-root/tiercache/store/storetest"
)

func newStore(t *testing.T, ns string) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s, err := New(Config{Client: client, CloseClient: true, Namespace: ns, Label: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t, "tc")
		return s
	})
}

func TestNilClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestNamespaceIsolation(t *testing.T) {
	s, mr := newStore(t, "tc")
	ctx := context.Background()

	require.NoError(t, mr.Set("foreign", "x"))
	require.NoError(t, s.Write(ctx, "k.json", []byte("v")))

	got, err := mr.Get("tc/k.json")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	infos, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "k.json", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].Size)
}

func TestLocation(t *testing.T) {
	s, _ := newStore(t, "cache")
	assert.Equal(t, "redis://test/cache", s.Root().String())
	assert.Equal(t, "redis://test/cache/d/k.json", s.Locate("d/k.json").String())
}

func TestServerErrorPropagates(t *testing.T) {
	s, mr := newStore(t, "tc")
	mr.SetError("boom")
	_, err := s.Read(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
