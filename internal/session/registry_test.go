// ABOUTME: Tests for editor session claims, refresh, expiry, and conflicts
// ABOUTME: Uses an injected clock instead of sleeping

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vitrine/internal/errs"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(ttl time.Duration) (*Registry, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(ttl, nil)
	r.now = c.now
	return r, c
}

func TestOpen_ConflictAndRefresh(t *testing.T) {
	r, c := newTestRegistry(time.Minute)

	s, err := r.Open("S1", "alice")
	require.NoError(t, err)
	assert.Equal(t, c.now().Add(time.Minute), s.ExpiresAt)

	_, err = r.Open("S1", "bob")
	assert.ErrorIs(t, err, errs.ErrConflict)

	c.advance(30 * time.Second)
	s, err = r.Open("S1", "alice")
	require.NoError(t, err)
	assert.Equal(t, c.now().Add(time.Minute), s.ExpiresAt, "reopen refreshes expiry")

	// Different stores are independent
	_, err = r.Open("S2", "bob")
	assert.NoError(t, err)
}

func TestOpen_Validation(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, err := r.Open("", "alice")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = r.Open("S1", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestExpiry(t *testing.T) {
	r, c := newTestRegistry(time.Minute)
	_, err := r.Open("S1", "alice")
	require.NoError(t, err)

	c.advance(time.Minute)
	_, ok := r.Holder("S1")
	assert.False(t, ok)

	_, err = r.Open("S1", "bob")
	assert.NoError(t, err, "expired session no longer blocks")
}

func TestClose(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	_, err := r.Open("S1", "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, r.Close("S1", "bob"), errs.ErrConflict)
	holder, ok := r.Holder("S1")
	assert.True(t, ok)
	assert.Equal(t, "alice", holder)

	require.NoError(t, r.Close("S1", "alice"))
	_, ok = r.Holder("S1")
	assert.False(t, ok)
	assert.NoError(t, r.Close("S1", "alice"), "closing twice is a no-op")
}

func TestCheck(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)

	assert.NoError(t, r.Check("S1", "bob"), "no session: writes allowed")

	_, err := r.Open("S1", "alice")
	require.NoError(t, err)
	assert.NoError(t, r.Check("S1", "alice"))
	assert.ErrorIs(t, r.Check("S1", "bob"), errs.ErrConflict)
	assert.NoError(t, r.Check("S1", ""), "anonymous writes are not gated")
}

func TestClear(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	for _, s := range []string{"S1", "S2"} {
		_, err := r.Open(s, "alice")
		require.NoError(t, err)
	}
	r.Clear()
	_, ok := r.Holder("S1")
	assert.False(t, ok)
}

func TestConcurrentOpen_OneWinner(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	actors := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, a := range actors {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			if _, err := r.Open("S1", actor); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
