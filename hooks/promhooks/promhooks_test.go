package promhooks

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/store/fsys"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	require.NoError(t, err)

	h.SelfHeal("mem://a/k.json", "corrupt")
	h.SelfHeal("mem://a/j.json", "corrupt")
	h.SelfHeal("mem://a/i.json", "truncated")
	h.Backfill("k", "mem://b", "mem://a")
	h.Mismatch("k", 2)
	h.MetaRebuilt("x")
	h.OrphanMeta("y")

	assert.Equal(t, 2.0, testutil.ToFloat64(h.SelfHeals.WithLabelValues("corrupt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.SelfHeals.WithLabelValues("truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Backfills.WithLabelValues("mem://a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Mismatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.MetaRebuilds))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Orphans))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestWiredIntoCache(t *testing.T) {
	ctx := context.Background()
	h, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	c, err := tiercache.Open[string](ctx, tiercache.Options[string]{
		Store: fsys.Memory("prom"),
		Codec: codec.String{},
		Hooks: h,
	})
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "a", "1"))
	require.NoError(t, c.Clear(ctx, true))

	root := c.Name()
	assert.Equal(t, 2.0, testutil.ToFloat64(h.CatalogBuilds.WithLabelValues(root)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.CatalogSize.WithLabelValues(root)))
}
