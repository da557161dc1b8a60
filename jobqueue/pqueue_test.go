package jobqueue

import (
	"testing"
	"time"
)

func TestPQueueReadyPriorityOrder(t *testing.T) {
	q := newPQueue(0, readyLess)
	jobs := []*Job{
		{ID: 1, Priority: 10, heapIndex: -1},
		{ID: 2, Priority: 1, heapIndex: -1},
		{ID: 3, Priority: 10, heapIndex: -1},
	}
	for _, j := range jobs {
		if !q.give(j) {
			t.Fatalf("give(%d) failed unexpectedly", j.ID)
		}
	}

	want := []uint64{2, 1, 3} // lowest priority first, ties by id ascending
	for _, w := range want {
		got := q.take()
		if got == nil || got.ID != w {
			t.Fatalf("take() = %v, want id %d", got, w)
		}
	}
	if q.take() != nil {
		t.Fatalf("expected empty queue")
	}
}

func TestPQueueCapacity(t *testing.T) {
	q := newPQueue(2, readyLess)
	a := &Job{ID: 1, heapIndex: -1}
	b := &Job{ID: 2, heapIndex: -1}
	c := &Job{ID: 3, heapIndex: -1}

	if !q.give(a) || !q.give(b) {
		t.Fatalf("expected first two gives to succeed")
	}
	if q.give(c) {
		t.Fatalf("expected give to fail once at capacity")
	}
	if q.used() != 2 {
		t.Fatalf("used() = %d, want 2", q.used())
	}
}

func TestPQueueFindAndRemove(t *testing.T) {
	q := newPQueue(0, readyLess)
	a := &Job{ID: 1, Priority: 5, heapIndex: -1}
	b := &Job{ID: 2, Priority: 3, heapIndex: -1}
	c := &Job{ID: 3, Priority: 9, heapIndex: -1}
	q.give(a)
	q.give(b)
	q.give(c)

	if got := q.find(2); got != b {
		t.Fatalf("find(2) = %v, want %v", got, b)
	}
	if got := q.find(42); got != nil {
		t.Fatalf("find(42) = %v, want nil", got)
	}

	if !q.remove(a) {
		t.Fatalf("remove(a) should succeed")
	}
	if q.used() != 2 {
		t.Fatalf("used() = %d after remove, want 2", q.used())
	}
	if q.remove(a) {
		t.Fatalf("remove(a) twice should fail")
	}

	// Remaining order should still respect priority.
	got := q.take()
	if got != b {
		t.Fatalf("take() = %v, want b", got)
	}
}

func TestPQueueDelayOrder(t *testing.T) {
	q := newPQueue(0, delayLess)
	now := mustParseTime(t, "2024-01-01T00:00:00Z")
	a := &Job{ID: 1, Deadline: now.Add(3 * time.Second), heapIndex: -1}
	b := &Job{ID: 2, Deadline: now.Add(1 * time.Second), heapIndex: -1}
	q.give(a)
	q.give(b)

	if got := q.peek(); got != b {
		t.Fatalf("peek() = %v, want b (earlier deadline)", got)
	}
}
