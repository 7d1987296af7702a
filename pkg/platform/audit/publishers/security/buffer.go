package security

import (
	"sync"

	audit "carepilot/pkg/platform/audit"
)

// RingBuffer queues security events between Emit and the flush loop. It never
// blocks: once full, each new event evicts the oldest one.
type RingBuffer struct {
	mu      sync.Mutex
	slots   []audit.SecurityEvent
	start   int // index of the oldest event
	size    int
	dropped int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &RingBuffer{slots: make([]audit.SecurityEvent, capacity)}
}

func (b *RingBuffer) Enqueue(event audit.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == len(b.slots) {
		b.slots[b.start] = event
		b.start = b.next(b.start)
		b.dropped++
		return
	}
	b.slots[(b.start+b.size)%len(b.slots)] = event
	b.size++
}

// DequeueBatch pops at most n events, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []audit.SecurityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.size)
	if n <= 0 {
		return nil
	}
	batch := make([]audit.SecurityEvent, 0, n)
	for range n {
		batch = append(batch, b.slots[b.start])
		b.slots[b.start] = audit.SecurityEvent{}
		b.start = b.next(b.start)
	}
	b.size -= n
	return batch
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Dropped counts events evicted before they were flushed.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *RingBuffer) next(i int) int {
	return (i + 1) % len(b.slots)
}
