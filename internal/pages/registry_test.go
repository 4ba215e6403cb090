package pages

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(ttl time.Duration, max int) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(ttl, max, logger.NewNop())
	r.now = clock.Now
	return r, clock
}

func emptyDoc(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString("<p>x</p>", nil)
	require.NoError(t, err)
	return doc
}

func TestRegistry_AddWithRemove(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, 0)
	doc := emptyDoc(t)

	id := r.Add(doc)
	assert.Equal(t, 1, r.Len())

	err := r.With(context.Background(), id, "apply", func(p *Page) error {
		assert.Same(t, doc, p.Doc)
		return nil
	})
	require.NoError(t, err)

	info, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "apply", info.LastCommand)

	require.NoError(t, r.Remove(id))
	assert.ErrorIs(t, r.Remove(id), ErrNotFound)
	assert.ErrorIs(t, r.With(context.Background(), id, "", func(*Page) error { return nil }), ErrNotFound)
	_, err = r.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_WithCancelledContext(t *testing.T) {
	r, _ := newTestRegistry(0, 0)
	id := r.Add(emptyDoc(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := r.With(ctx, id, "apply", func(*Page) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRegistry_SerialisesCommandsPerPage(t *testing.T) {
	r, _ := newTestRegistry(0, 0)
	id := r.Add(emptyDoc(t))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.With(context.Background(), id, "apply", func(*Page) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestRegistry_Expire(t *testing.T) {
	r, clock := newTestRegistry(10*time.Minute, 0)
	idle := r.Add(emptyDoc(t))
	clock.Advance(5 * time.Minute)
	busy := r.Add(emptyDoc(t))

	clock.Advance(6 * time.Minute)
	require.NoError(t, r.With(context.Background(), busy, "remove", func(*Page) error { return nil }))

	assert.Equal(t, 1, r.Expire())
	_, err := r.Get(idle)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(busy)
	assert.NoError(t, err)

	noTTL, _ := newTestRegistry(0, 0)
	noTTL.Add(emptyDoc(t))
	assert.Zero(t, noTTL.Expire())
}

func TestRegistry_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	r, clock := newTestRegistry(0, 2)
	first := r.Add(emptyDoc(t))
	clock.Advance(time.Second)
	second := r.Add(emptyDoc(t))
	clock.Advance(time.Second)
	require.NoError(t, r.With(context.Background(), first, "", func(*Page) error { return nil }))
	clock.Advance(time.Second)

	third := r.Add(emptyDoc(t))

	assert.Equal(t, 2, r.Len())
	_, err := r.Get(second)
	assert.ErrorIs(t, err, ErrNotFound)

	ids := []string{}
	for _, info := range r.List() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{third, first}, ids)
}

func TestRegistry_StartCleanup(t *testing.T) {
	r := NewRegistry(time.Millisecond, 0, logger.NewNop())
	r.Add(emptyDoc(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartCleanup(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}
