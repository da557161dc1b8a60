package jobqueue

import (
	"testing"
	"time"
)

func TestReservationSetSortedInsert(t *testing.T) {
	var r reservationSet
	base := mustParseTime(t, "2024-01-01T00:00:00Z")
	a := &Job{ID: 1, Deadline: base.Add(5 * time.Second)}
	b := &Job{ID: 2, Deadline: base.Add(1 * time.Second)}
	c := &Job{ID: 3, Deadline: base.Add(3 * time.Second)}

	r.add(a)
	r.add(b)
	r.add(c)

	all := r.all()
	if len(all) != 3 || all[0].ID != 2 || all[1].ID != 3 || all[2].ID != 1 {
		t.Fatalf("all() = %v, want deadline-sorted [2,3,1]", ids(all))
	}
	if got := r.soonest(); got != b {
		t.Fatalf("soonest() = %v, want b", got)
	}
}

func TestReservationSetRemove(t *testing.T) {
	var r reservationSet
	base := mustParseTime(t, "2024-01-01T00:00:00Z")
	a := &Job{ID: 1, Deadline: base}
	b := &Job{ID: 2, Deadline: base.Add(time.Second)}
	r.add(a)
	r.add(b)

	if !r.remove(a) {
		t.Fatalf("remove(a) should succeed")
	}
	if r.remove(a) {
		t.Fatalf("remove(a) twice should fail")
	}
	if r.len() != 1 {
		t.Fatalf("len() = %d, want 1", r.len())
	}
}

func TestReservationSetExpiredIsDeadlinePrefix(t *testing.T) {
	var r reservationSet
	base := mustParseTime(t, "2024-01-01T00:00:00Z")
	a := &Job{ID: 1, Deadline: base}
	b := &Job{ID: 2, Deadline: base.Add(time.Second)}
	c := &Job{ID: 3, Deadline: base.Add(10 * time.Second)}
	r.add(c)
	r.add(a)
	r.add(b)

	expired := r.expired(base.Add(time.Second))
	if len(expired) != 2 || expired[0].ID != 1 || expired[1].ID != 2 {
		t.Fatalf("expired() = %v, want [1,2]", ids(expired))
	}
	if r.len() != 1 {
		t.Fatalf("len() = %d after expiring prefix, want 1", r.len())
	}
	if got := r.soonest(); got != c {
		t.Fatalf("soonest() = %v, want c", got)
	}
}

func ids(jobs []*Job) []uint64 {
	out := make([]uint64, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
