// Copyright © 2016-2019 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

// Package jobqueue implements an in-memory work queue server: the job
// lifecycle engine (priority queues, reservation state machine, the
// waiting-worker matching loop) plus the command dispatcher that drives it
// from the wire protocol in protocol.go.
package jobqueue

import "time"

// JobState is one of the states a Job can be in. A Job's State field always
// matches the collection that currently holds it.
type JobState string

// The possible values of JobState.
const (
	JobStateReady    JobState = "ready"
	JobStateReserved JobState = "reserved"
	JobStateDelayed  JobState = "delayed"
	JobStateBuried   JobState = "buried"
	JobStateInvalid  JobState = "invalid"
)

// UrgentThreshold is the priority below which a job is considered "urgent"
// for stats purposes.
const UrgentThreshold = 1024

// MaxBodySize is the largest body a put will accept, in bytes.
const MaxBodySize = 65535

// Job is the unit of work: an id, its scheduling metadata, and its opaque
// body. Body excludes the trailing CRLF used on the wire; framing is added
// and stripped in protocol.go only.
type Job struct {
	ID       uint64
	Priority uint32
	Delay    time.Duration
	TTR      time.Duration
	Body     []byte
	State    JobState

	// Deadline means different things depending on State: for JobStateDelayed
	// it's when the job becomes ready; for JobStateReserved it's when the
	// reservation expires.
	Deadline time.Time
	Creation time.Time

	TimeoutCt uint32
	ReleaseCt uint32
	BuryCt    uint32
	KickCt    uint32
	ReserveCt uint32

	// reservedBy is the connection currently holding this job's reservation,
	// nil unless State == JobStateReserved.
	reservedBy *connection

	// heapIndex is maintained by container/heap for O(log n) removal; -1
	// when the job isn't in a heap.
	heapIndex int
}

// Urgent reports whether this job's priority is below UrgentThreshold.
func (j *Job) Urgent() bool {
	return j.Priority < UrgentThreshold
}

// Age is how long ago the job was created.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.Creation)
}

// TimeLeft is how long until Deadline, floored at zero. Only meaningful for
// JobStateDelayed and JobStateReserved.
func (j *Job) TimeLeft(now time.Time) time.Duration {
	d := j.Deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// copy returns a copy of the job record j suitable for a peek reply: the dispatcher
// hands this out instead of the live job so that a concurrent delete/bury
// can't race with the reply being written to the wire. Body is a byte slice
// that is never mutated after put, so it's safe to share rather than clone.
func (j *Job) copy() *Job {
	cp := *j
	cp.reservedBy = nil
	cp.heapIndex = -1
	return &cp
}
