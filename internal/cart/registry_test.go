package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alextreichler/minishop/internal/storage"
)

func TestRegistry_ReturnsSameCartPerVisitor(t *testing.T) {
	r := NewRegistry(storage.NewMemory())
	ctx := context.Background()

	a1, err := r.Get(ctx, "a")
	require.NoError(t, err)
	a2, err := r.Get(ctx, "a")
	require.NoError(t, err)
	b, err := r.Get(ctx, "b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_LoadsPersistedCart(t *testing.T) {
	s := storage.NewMemory()
	ctx := context.Background()

	first := NewRegistry(s)
	c, err := first.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, headphones))

	// A fresh registry stands in for a process restart.
	second := NewRegistry(s)
	reloaded, err := second.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(7999), reloaded.TotalCents())
}

func TestRegistry_LoadErrorKeepsUsableCart(t *testing.T) {
	s := newFlakyStorage()
	s.failGet = true
	r := NewRegistry(s)
	ctx := context.Background()

	c, err := r.Get(ctx, "a")
	assert.ErrorIs(t, err, errDiskFull)
	require.NotNil(t, c)
	require.NoError(t, c.Add(ctx, headphones))

	again, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, c, again, "in-memory cart stays authoritative")
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(storage.NewMemory())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := r.Get(ctx, "old")
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	_, err = r.Get(ctx, "fresh")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, r.Sweep(time.Hour))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(storage.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
