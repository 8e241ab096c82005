package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache/store"
	"github.com/unkn0wn-root/tiercache/store/fsys"
	"github.com/unkn0wn-root/tiercache/store/storetest"
)

type down struct {
	store.Store
	broken bool
	calls  int
}

var errDown = errors.New("backend down")

func (d *down) Write(ctx context.Context, name string, data []byte) error {
	d.calls++
	if d.broken {
		return errDown
	}
	return d.Store.Write(ctx, name, data)
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New(fsys.Memory("b"), Config{}) })
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &down{Store: fsys.Memory("b"), broken: true}
	var transitions []gobreaker.State
	s := New(inner, Config{
		MaxFailures:   2,
		Timeout:       time.Hour,
		OnStateChange: func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) },
	})
	ctx := context.Background()

	assert.ErrorIs(t, s.Write(ctx, "k", nil), errDown)
	assert.ErrorIs(t, s.Write(ctx, "k", nil), errDown)
	assert.Equal(t, gobreaker.StateOpen, s.State())

	err := s.Write(ctx, "k", nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the backend")
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestNotFoundDoesNotTrip(t *testing.T) {
	s := New(fsys.Memory("b"), Config{MaxFailures: 1})
	for i := 0; i < 3; i++ {
		_, err := s.Read(context.Background(), "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, s.State())
}
