package trade

import (
	"log"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

var logger = log.New(log.Writer(), "[trade] ", log.LstdFlags)

// SoftLimitedBuffer is a double-ended buffer that accepts elements on both
// sides, newest at the front.
//
// The maximum capacity is soft: enforcement is eventual, not per-insert. A
// periodic checker trims the overshoot from the oldest end, and from the
// moment the limit has been hit once, every PushNewest evicts the oldest
// element right away while PushOldestBatch is rejected. Transient overshoot
// is tolerated on purpose: it keeps the write path cheap and lets a large
// in-flight backfill finish before trimming.
type SoftLimitedBuffer[T any] struct {
	softMaxCapacity int

	mu           sync.Mutex
	deque        deque.Deque[T]
	limitReached bool

	done     chan struct{}
	stopOnce sync.Once
}

func NewSoftLimitedBuffer[T any](softMaxCapacity int, checkPeriod time.Duration) *SoftLimitedBuffer[T] {
	b := &SoftLimitedBuffer[T]{
		softMaxCapacity: softMaxCapacity,
		done:            make(chan struct{}),
	}
	go b.capacityChecker(checkPeriod)
	return b
}

// PushNewest adds the element at the newest end. Once the soft capacity has
// been exceeded, the oldest element is evicted immediately after the insert.
func (b *SoftLimitedBuffer[T]) PushNewest(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deque.PushFront(v)
	if b.limitReached {
		b.deque.PopBack()
	}
}

// PushOldestBatch appends the elements at the oldest end, in the given order.
// It reports false without adding anything when the soft capacity has already
// been exceeded, bounding memory when many backfills overlap.
func (b *SoftLimitedBuffer[T]) PushOldestBatch(items []T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limitReached {
		logger.Printf("buffer soft capacity reached, rejecting %d elements at the oldest end", len(items))
		return false
	}
	for _, v := range items {
		b.deque.PushBack(v)
	}
	return true
}

func (b *SoftLimitedBuffer[T]) PeekNewest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.deque.Len() == 0 {
		return zero, false
	}
	return b.deque.Front(), true
}

func (b *SoftLimitedBuffer[T]) PeekOldest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.deque.Len() == 0 {
		return zero, false
	}
	return b.deque.Back(), true
}

// PeekNewestN returns an owned copy of up to n newest elements, newest first.
// Fewer than n elements is not an error.
func (b *SoftLimitedBuffer[T]) PeekNewestN(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.deque.Len() {
		n = b.deque.Len()
	}
	if n < 0 {
		n = 0
	}
	items := make([]T, n)
	for i := 0; i < n; i++ {
		items[i] = b.deque.At(i)
	}
	return items
}

func (b *SoftLimitedBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deque.Len()
}

func (b *SoftLimitedBuffer[T]) SoftMaxCapacity() int {
	return b.softMaxCapacity
}

// Stop halts the capacity checker. Safe to call twice.
func (b *SoftLimitedBuffer[T]) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

// capacityChecker trims the buffer back to the soft capacity once it has been
// exceeded, then exits: from that point on eviction happens inline on every
// PushNewest and the periodic check has nothing left to do.
func (b *SoftLimitedBuffer[T]) capacityChecker(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			if b.trimIfExceeded() {
				return
			}
		}
	}
}

func (b *SoftLimitedBuffer[T]) trimIfExceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.deque.Len() <= b.softMaxCapacity {
		return false
	}
	b.limitReached = true
	for b.deque.Len() > b.softMaxCapacity {
		b.deque.PopBack()
	}
	logger.Printf("buffer soft capacity exceeded (%d), extra elements removed from the oldest end", b.softMaxCapacity)
	return true
}
