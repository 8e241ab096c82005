// Package otelstore wraps a store so every call produces an OpenTelemetry span.
package otelstore

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

const tracerName = "github.com/unkn0wn-root/tiercache/store/otelstore"

type Store struct {
	inner  store.Store
	tracer trace.Tracer
	root   string
}

var _ store.Store = (*Store)(nil)

// New wraps inner. A nil provider uses the global one.
func New(inner store.Store, tp trace.TracerProvider) *Store {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Store{inner: inner, tracer: tp.Tracer(tracerName), root: inner.Root().String()}
}

func (s *Store) start(ctx context.Context, op, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "tiercache.store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tiercache.store.root", s.root),
			attribute.String("tiercache.store.name", name),
		))
}

func finish(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	// a miss is an expected answer
	if errors.Is(err, store.ErrNotFound) {
		span.SetAttributes(attribute.Bool("tiercache.store.miss", true))
		return
	}
	span.SetStatus(codes.Error, err.Error())
}

func (s *Store) Root() location.Location { return s.inner.Root() }

func (s *Store) Locate(name string) location.Location { return s.inner.Locate(name) }

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	ctx, span := s.start(ctx, "read", name)
	b, err := s.inner.Read(ctx, name)
	if err == nil {
		span.SetAttributes(attribute.Int("tiercache.store.bytes", len(b)))
	}
	finish(span, err)
	return b, err
}

func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	ctx, span := s.start(ctx, "write", name)
	span.SetAttributes(attribute.Int("tiercache.store.bytes", len(data)))
	err := s.inner.Write(ctx, name, data)
	finish(span, err)
	return err
}

func (s *Store) Delete(ctx context.Context, name string) error {
	ctx, span := s.start(ctx, "delete", name)
	err := s.inner.Delete(ctx, name)
	finish(span, err)
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	ctx, span := s.start(ctx, "list", prefix)
	infos, err := s.inner.List(ctx, prefix)
	if err == nil {
		span.SetAttributes(attribute.Int("tiercache.store.objects", len(infos)))
	}
	finish(span, err)
	return infos, err
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

func (s *Store) Close(ctx context.Context) error { return s.inner.Close(ctx) }

// Unwrap returns the wrapped store.
func (s *Store) Unwrap() store.Store { return s.inner }
