package resilience

import (
	"errors"
	"testing"
)

func TestDeadLetterQueue_OrderedAppend(t *testing.T) {
	q := NewDeadLetterQueue(10)

	q.Add(DLQEntry{Op: "SubmitOrder", OrderID: "a"})
	q.Add(DLQEntry{Op: "CancelOrder", OrderID: "b"})

	entries := q.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].OrderID != "a" || entries[1].OrderID != "b" {
		t.Error("entries must preserve arrival order")
	}
	if entries[0].Seq >= entries[1].Seq {
		t.Error("sequence numbers must be increasing")
	}
}

func TestDeadLetterQueue_BoundedDropsOldest(t *testing.T) {
	q := NewDeadLetterQueue(2)

	q.Add(DLQEntry{OrderID: "a", Err: errors.New("x")})
	q.Add(DLQEntry{OrderID: "b", Err: errors.New("x")})
	q.Add(DLQEntry{OrderID: "c", Err: errors.New("x")})

	entries := q.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected bounded size 2, got %d", len(entries))
	}
	if entries[0].OrderID != "b" || entries[1].OrderID != "c" {
		t.Error("oldest entry should have been evicted")
	}
}

func TestDeadLetterQueue_ManualRemove(t *testing.T) {
	q := NewDeadLetterQueue(10)
	seq := q.Add(DLQEntry{OrderID: "a"})

	if !q.Remove(seq) {
		t.Error("expected Remove to find the entry")
	}
	if q.Size() != 0 {
		t.Errorf("expected empty queue, got size %d", q.Size())
	}
	if q.Remove(seq) {
		t.Error("second Remove must report false")
	}
}
