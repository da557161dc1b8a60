package jobqueue

import "time"

// reservationSet is one connection's held reservations, kept sorted by
// Deadline ascending so soonest() is O(1). Insertion is O(n) in
// the number of concurrently reserved jobs on this connection, which is
// typically small.
type reservationSet struct {
	jobs []*Job
}

// add inserts j in deadline order.
func (r *reservationSet) add(j *Job) {
	i := 0
	for i < len(r.jobs) && r.jobs[i].Deadline.Before(j.Deadline) {
		i++
	}
	r.jobs = append(r.jobs, nil)
	copy(r.jobs[i+1:], r.jobs[i:])
	r.jobs[i] = j
}

// remove takes a specific job out of the set.
func (r *reservationSet) remove(j *Job) bool {
	for i, jj := range r.jobs {
		if jj == j {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// soonest returns the earliest-expiring reservation, or nil if empty.
func (r *reservationSet) soonest() *Job {
	if len(r.jobs) == 0 {
		return nil
	}
	return r.jobs[0]
}

// expired pops and returns every reservation whose Deadline is at or before
// now, earliest first. Since the set is deadline-sorted, these are always a
// prefix of the slice.
func (r *reservationSet) expired(now time.Time) []*Job {
	var out []*Job
	for len(r.jobs) > 0 && !r.jobs[0].Deadline.After(now) {
		out = append(out, r.jobs[0])
		r.jobs = r.jobs[1:]
	}
	return out
}

// all returns every currently held reservation, earliest first.
func (r *reservationSet) all() []*Job {
	return append([]*Job(nil), r.jobs...)
}

func (r *reservationSet) len() int { return len(r.jobs) }
