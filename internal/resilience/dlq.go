package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// DLQEntry describes a request that exhausted its retries.
type DLQEntry struct {
	Seq      uint64
	Op       string
	OrderID  string
	Symbol   string
	Err      error
	Attempts int
	At       time.Time
}

// DeadLetterQueue is an in-memory ordered holding area for failed
// requests. It is inspect-only: nothing replays entries automatically,
// an operator snapshots them with Entries and removes what was handled
// manually. Bounded; the oldest entry is dropped when full.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DLQEntry
	nextSeq uint64
	maxSize int
}

// NewDeadLetterQueue creates a queue bounded to maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, evicting the oldest if the queue is full.
// Returns the sequence number assigned to the entry.
func (q *DeadLetterQueue) Add(e DLQEntry) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	e.Seq = q.nextSeq
	if e.At.IsZero() {
		e.At = time.Now()
	}

	if len(q.entries) >= q.maxSize {
		dropped := q.entries[0]
		q.entries = q.entries[1:]
		slog.Warn("dead-letter queue full, dropping oldest entry",
			slog.Uint64("seq", dropped.Seq),
			slog.String("op", dropped.Op))
	}
	q.entries = append(q.entries, e)
	return e.Seq
}

// Entries returns a snapshot in arrival order.
func (q *DeadLetterQueue) Entries() []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DLQEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the current depth.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Remove deletes the entry with the given sequence number. Used after
// an operator has manually replayed or discarded the request.
func (q *DeadLetterQueue) Remove(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.Seq == seq {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}
