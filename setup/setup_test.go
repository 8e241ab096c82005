package setup

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/config"
	"github.com/unkn0wn-root/tiercache/store/fsys"
	"github.com/unkn0wn-root/tiercache/store/ristretto"
)

type doc struct {
	Title string `json:"title" msgpack:"title"`
}

func TestTierSchemes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	deps := Deps{Redis: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}

	dir := t.TempDir()
	cases := map[string]string{
		"mem://scratch":         "mem://scratch",
		"mem://scratch/sub":     "mem://scratch/sub",
		"bigcache://local":      "bigcache://local",
		"redis://shared/app":    "redis://shared/app",
		"minio://bucket/prefix": "minio://bucket/prefix",
		dir:                     dir,
	}
	for uri, root := range cases {
		if uri == "minio://bucket/prefix" {
			deps.Minio = config.MinioConfig{Endpoint: "localhost:9000"}
		}
		st, err := Tier(ctx, uri, deps)
		require.NoError(t, err, uri)
		assert.Equal(t, root, st.Root().String(), uri)
		require.NoError(t, st.Close(ctx))
	}

	_, err := Tier(ctx, "ftp://host/path", deps)
	assert.Error(t, err)
	_, err = Tier(ctx, "", deps)
	assert.Error(t, err)
}

func TestFromConfigSingleTier(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Codec:    "json",
		LogLevel: "error",
		Tiers:    []config.Tier{{URI: t.TempDir()}},
	}
	c, err := FromConfig[doc](ctx, cfg, Deps{})
	require.NoError(t, err)
	defer c.Close(ctx)

	_, isMulti := c.(*tiercache.Multi[doc])
	assert.False(t, isMulti)
	assert.True(t, c.IsInitialized())

	require.NoError(t, c.Put(ctx, "a/b", doc{Title: "x"}))
	got, err := c.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Title)
}

func TestFromConfigMultiTier(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	cfg := &config.Config{
		Codec:    "msgpack+zstd",
		SyncAll:  true,
		LogLevel: "error",
		Tiers: []config.Tier{
			{URI: "mem://front", HotCache: true},
			{URI: "bigcache://back", Retry: true, Breaker: true, Trace: true},
		},
		Retry:   config.RetryConfig{MaxRetries: 1},
		Breaker: config.BreakerConfig{MaxFailures: 3},
		Hot:     config.HotConfig{MaxCost: 1 << 20},
	}
	c, err := FromConfig[doc](ctx, cfg, Deps{TracerProvider: tp})
	require.NoError(t, err)
	defer c.Close(ctx)

	m, ok := c.(*tiercache.Multi[doc])
	require.True(t, ok)
	require.Len(t, m.Members(), 2)

	require.NoError(t, c.Put(ctx, "k", doc{Title: "both"}))
	for _, member := range m.Members() {
		v, err := member.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "both", v.Title)
	}
	assert.NotEmpty(t, rec.Ended(), "traced tier should record spans")

	items, err := m.Members()[0].Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "k.msgpack.zst", items[0].Meta.Name)
}

func TestWrapOrder(t *testing.T) {
	cfg := &config.Config{Hot: config.HotConfig{MaxCost: 1 << 10}}
	st, err := Wrap(fsys.Memory("w"), config.Tier{URI: "mem://w", HotCache: true, Retry: true}, cfg, Deps{})
	require.NoError(t, err)
	_, outer := st.(*ristretto.Store)
	assert.True(t, outer, "hot cache should be the outermost decorator")
}

func TestFromConfigInvalid(t *testing.T) {
	_, err := FromConfig[doc](context.Background(), &config.Config{Codec: "json"}, Deps{})
	assert.Error(t, err)

	_, err = FromConfig[doc](context.Background(), &config.Config{
		Codec: "json",
		Tiers: []config.Tier{{URI: "mem://ok"}, {URI: "nope://x"}},
	}, Deps{})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	l.Debug("hello", tiercache.Fields{"k": "v"})

	_, err = NewLogger("chatty")
	assert.Error(t, err)
}
