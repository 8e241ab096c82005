package otelstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/unkn0wn-root/tiercache/store"
	"github.com/unkn0wn-root/tiercache/store/fsys"
	"github.com/unkn0wn-root/tiercache/store/storetest"
)

func traced(t *testing.T) (*Store, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return New(fsys.Memory("o"), tp), rec
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := traced(t)
		return s
	})
}

func TestSpansPerCall(t *testing.T) {
	s, rec := traced(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "k.json", []byte("abc")))
	_, err := s.Read(ctx, "k.json")
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "tiercache.store.write", spans[0].Name())
	assert.Equal(t, "tiercache.store.read", spans[1].Name())
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("tiercache.store.name", "k.json"))
	assert.Contains(t, spans[1].Attributes(), attribute.Int("tiercache.store.bytes", 3))
}

func TestMissIsNotAnError(t *testing.T) {
	s, rec := traced(t)
	_, err := s.Read(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("tiercache.store.miss", true))
}
