// ABOUTME: Thread-safe TTL set of upload idempotency keys
// ABOUTME: A repeated key inside the window is rejected so an archive is extracted once

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxKeys bounds memory when no size is given.
const DefaultMaxKeys = 10000

type claim struct {
	at      time.Time
	element *list.Element
}

// Keys remembers idempotency keys for a TTL. Insertion order is kept in a
// linked list so the oldest key is evicted in O(1) when the set is full.
type Keys struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a key set and starts a background sweep of expired keys.
func New(ttl time.Duration, maxSize int) *Keys {
	if maxSize <= 0 {
		maxSize = DefaultMaxKeys
	}
	k := &Keys{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go k.sweepLoop()
	return k
}

func (k *Keys) fresh(c *claim) bool {
	return k.now().Sub(c.at) < k.ttl
}

// Seen reports whether key was claimed within the TTL.
func (k *Keys) Seen(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.claims[key]
	return ok && k.fresh(c)
}

// Claim records key and returns true, or returns false if key is already held.
// Check and record happen under one lock so two concurrent uploads with the
// same key cannot both proceed.
func (k *Keys) Claim(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if c, ok := k.claims[key]; ok {
		if k.fresh(c) {
			return false
		}
		c.at = k.now()
		k.order.MoveToBack(c.element)
		return true
	}

	if len(k.claims) >= k.maxSize {
		k.evictOldest()
	}
	k.claims[key] = &claim{at: k.now(), element: k.order.PushBack(key)}
	return true
}

// Forget releases key so a failed upload can be retried with it.
func (k *Keys) Forget(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if c, ok := k.claims[key]; ok {
		k.order.Remove(c.element)
		delete(k.claims, key)
	}
}

// Len returns the number of keys currently stored, expired or not.
func (k *Keys) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.claims)
}

// evictOldest drops the front of the order list. Caller holds mu.
func (k *Keys) evictOldest() {
	front := k.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	k.order.Remove(front)
	delete(k.claims, key)
}

func (k *Keys) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			k.sweep()
		case <-k.done:
			return
		}
	}
}

func (k *Keys) sweep() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, c := range k.claims {
		if !k.fresh(c) {
			k.order.Remove(c.element)
			delete(k.claims, key)
		}
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (k *Keys) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.closed {
		close(k.done)
		k.closed = true
	}
}
