package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock — управляемые часы для тестов.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
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

const testKey = "metronome:lock"

func TestMemoryStore_Acquire(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	ok, err := s.Acquire(ctx, testKey, "a:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Живой lease — второй захват невозможен
	ok, err = s.Acquire(ctx, testKey, "b:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// После истечения — возможен
	clock.Advance(10 * time.Second)
	ok, err = s.Acquire(ctx, testKey, "b:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	l, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "b:1", l.OwnerToken)
	assert.Equal(t, "b", l.Holder())
}

func TestMemoryStore_Renew(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_, err := s.Acquire(ctx, testKey, "a:1", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	ok, err := s.Renew(ctx, testKey, "a:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	l, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(10*time.Second), l.ExpiresAt)

	// Чужой токен не продлевает
	ok, err = s.Renew(ctx, testKey, "b:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Истёкший lease не продлевается даже владельцем
	clock.Advance(11 * time.Second)
	ok, err = s.Renew(ctx, testKey, "a:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Release(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Acquire(ctx, testKey, "a:1", time.Minute)
	require.NoError(t, err)

	// Чужой release ничего не делает
	require.NoError(t, s.Release(ctx, testKey, "b:1"))
	l, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, l)

	require.NoError(t, s.Release(ctx, testKey, "a:1"))
	l, err = s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, l)

	// Повторный release — no-op
	require.NoError(t, s.Release(ctx, testKey, "a:1"))
}

func TestMemoryStore_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Acquire(ctx, testKey, "node:"+string(rune('a'+i)), time.Minute)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			wins++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
