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

package jobqueue

import (
	"sync"
	"time"

	"github.com/VertebrateResequencing/beanstalkd/internal/logger"
)

// Version is reported in stats output and logged at startup.
const Version = "1.0.0"

// DefaultHeapSize is the shared capacity of the ready and delay queues
// combined. 16 Mi entries, matching historical beanstalkd defaults.
const DefaultHeapSize = 16 * 1024 * 1024

// Server is the job lifecycle engine: the priority queues, the graveyard,
// the waiting-worker queue, per-connection reservation state, and the
// command handlers that drive transitions between them. Every field below
// mu is only ever touched while mu is held; this is the single mutex that
// serializes the whole core, standing in for the single-threaded event
// loop the design calls for on a runtime with real OS threads.
type Server struct {
	mu sync.Mutex

	nextID uint64

	ready *pqueue
	delay *pqueue
	// heapCapacity bounds ready.used()+delay.used() combined, per the
	// shared-capacity rule: when one queue is full the other can still
	// take entries as long as the combined total has room.
	heapCapacity int

	graveyard *graveyard
	waiting   *waitingQueue

	// jobs indexes every live job by id regardless of which collection
	// currently holds it, so delete/release/bury/touch/peek-by-id
	// never need to scan more than one structure to find it.
	jobs map[uint64]*Job

	connections map[*connection]struct{}

	drain bool

	stats *stats

	log logger.Logger

	timerReset chan struct{}
	closeOnce  sync.Once
	closeCh    chan struct{}
}

// NewServer constructs a Server with empty queues and the given shared heap
// capacity. Pass 0 for heapCapacity to use DefaultHeapSize.
func NewServer(heapCapacity int, log logger.Logger) *Server {
	if heapCapacity <= 0 {
		heapCapacity = DefaultHeapSize
	}
	s := &Server{
		nextID:       1,
		ready:        newPQueue(0, readyLess),
		delay:        newPQueue(0, delayLess),
		heapCapacity: heapCapacity,
		graveyard:    newGraveyard(),
		waiting:      newWaitingQueue(),
		jobs:         make(map[uint64]*Job),
		connections:  make(map[*connection]struct{}),
		stats:        newStats(),
		log:          log,
		timerReset:   make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
	}
	go s.runTimer()
	return s
}

// Close stops the timer driver goroutine. Connections must be closed
// separately by the transport layer.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
}

// registerConnection adds c to the connection registry; call once per
// accepted connection before any command is dispatched for it.
func (s *Server) registerConnection(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c] = struct{}{}
	s.stats.currentConnections++
	s.stats.totalConnections++
	s.log.Debug("connection registered", "id", c.id)
}

// unregisterConnection implements connection-close cleanup: unlink from the
// waiting queue, and re-enqueue every job the connection held in reservation
// back to ready (burying on overflow), so no reserved job is ever lost.
func (s *Server) unregisterConnection(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waiting.remove(c)
	delete(s.connections, c)
	s.stats.currentConnections--
	if c.isProducer {
		s.stats.producers--
	}
	if c.isWorker {
		s.stats.workers--
	}

	for _, j := range c.reservations.all() {
		c.reservations.remove(j)
		s.requeueReserved(j)
	}
	s.runMatching()
	s.kickTimer()
	s.log.Debug("connection unregistered", "id", c.id)
}

// requeueReserved moves a job out of JobStateReserved back into ready,
// burying it if the shared heap is full. Caller holds mu.
func (s *Server) requeueReserved(j *Job) {
	j.reservedBy = nil
	j.State = JobStateReady
	if !s.giveReady(j) {
		s.buryJob(j)
	}
}

// giveReady and giveDelay enforce the combined ready+delay capacity: the
// two queues share one HEAP_SIZE budget rather than each getting their own.
// Caller holds mu.
func (s *Server) giveReady(j *Job) bool {
	if s.ready.used()+s.delay.used() >= s.heapCapacity {
		return false
	}
	return s.ready.give(j)
}

func (s *Server) giveDelay(j *Job) bool {
	if s.ready.used()+s.delay.used() >= s.heapCapacity {
		return false
	}
	return s.delay.give(j)
}

// buryJob moves j into the graveyard and marks its state. Caller holds mu.
func (s *Server) buryJob(j *Job) {
	j.State = JobStateBuried
	j.reservedBy = nil
	s.graveyard.bury(j)
}

// destroyJob removes j from the id index entirely. Caller holds mu.
func (s *Server) destroyJob(j *Job) {
	j.State = JobStateInvalid
	delete(s.jobs, j.ID)
}

// runMatching is the matching step: while both the ready queue and the
// waiting queue are non-empty, pair the highest-priority ready job with the
// head waiting connection. Caller holds mu.
func (s *Server) runMatching() {
	for s.ready.used() > 0 && s.waiting.len() > 0 {
		j := s.ready.take()
		c := s.waiting.dequeue()

		j.State = JobStateReserved
		j.reservedBy = c
		j.Deadline = time.Now().Add(j.TTR)
		j.ReserveCt++
		c.reservations.add(j)

		c.matched <- j
	}
}

// kickTimer nudges the timer driver to recompute its wakeup. Non-blocking:
// if a nudge is already pending the new one is redundant.
func (s *Server) kickTimer() {
	select {
	case s.timerReset <- struct{}{}:
	default:
	}
}

// --- command handlers ---

// Put creates a job, enqueues it to ready or delay depending on delay, and
// reports whether it was buried instead due to capacity.
func (s *Server) Put(c *connection, priority uint32, delay, ttr time.Duration, body []byte) (id uint64, buried bool, err error) {
	if len(body) > MaxBodySize {
		return 0, false, Error{Op: "put", Err: clientErrorMsg[clientErrJobTooBig]}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drain {
		return 0, false, Error{Op: "put", Err: serverErrorMsg[serverErrDraining]}
	}

	if !c.isProducer {
		c.isProducer = true
		s.stats.producers++
	}

	j := &Job{
		ID:        s.nextID,
		Priority:  priority,
		Delay:     delay,
		TTR:       ttr,
		Body:      body,
		Creation:  time.Now(),
		heapIndex: -1,
	}
	s.nextID++
	s.jobs[j.ID] = j
	s.stats.cmdPut++
	s.stats.totalJobs++

	if delay > 0 {
		j.State = JobStateDelayed
		j.Deadline = j.Creation.Add(delay)
		if !s.giveDelay(j) {
			s.buryJob(j)
			buried = true
		}
	} else {
		j.State = JobStateReady
		if !s.giveReady(j) {
			s.buryJob(j)
			buried = true
		}
	}

	if !buried {
		s.runMatching()
	}
	s.kickTimer()
	s.log.Debug("put", "id", j.ID, "priority", priority, "delay", delay, "ttr", ttr, "buried", buried)
	return j.ID, buried, nil
}

// Reserve marks c as a worker and enqueues it on the waiting queue, running
// the matching step immediately in case a ready job is already available.
// It returns a channel that receives exactly the one job c is matched with;
// the transport layer blocks on it (selecting against connection close).
func (s *Server) Reserve(c *connection) <-chan *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !c.isWorker {
		c.isWorker = true
		s.stats.workers++
	}
	s.stats.cmdReserve++
	s.waiting.enqueue(c)
	s.runMatching()
	s.kickTimer()
	s.log.Debug("reserve", "connection", c.id)
	return c.matched
}

// CancelReserve unlinks c from the waiting queue if it is still there. Used
// when a blocked reserve's connection closes before being matched.
func (s *Server) CancelReserve(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting.remove(c)
}

// Delete destroys the job with the given id in whatever state it is in:
// reserved (by this or any other connection, for administrative delete),
// buried, ready or delayed. Returns false if no live job has that id.
func (s *Server) Delete(c *connection, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}

	switch j.State {
	case JobStateReserved:
		if j.reservedBy != nil {
			j.reservedBy.reservations.remove(j)
		}
	case JobStateBuried:
		s.graveyard.remove(id)
	case JobStateReady:
		s.ready.remove(j)
	case JobStateDelayed:
		s.delay.remove(j)
	default:
		return false
	}

	s.stats.cmdDelete++
	s.destroyJob(j)
	s.log.Debug("delete", "id", id)
	return true
}

// Release returns a job this connection holds in reservation back to ready
// (or delay, if delay > 0), updating its priority. Returns (false, false)
// for not-found, (true, false) on success, (true, true) when it was buried
// on overflow.
func (s *Server) Release(c *connection, id uint64, priority uint32, delay time.Duration) (found, buried bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.State != JobStateReserved || j.reservedBy != c {
		return false, false
	}

	c.reservations.remove(j)
	j.Priority = priority
	j.ReleaseCt++
	s.stats.cmdRelease++

	if delay > 0 {
		j.State = JobStateDelayed
		j.Deadline = time.Now().Add(delay)
		if !s.giveDelay(j) {
			s.buryJob(j)
			buried = true
		}
	} else {
		j.State = JobStateReady
		if !s.giveReady(j) {
			s.buryJob(j)
			buried = true
		}
	}

	if !buried {
		s.runMatching()
	}
	s.kickTimer()
	s.log.Debug("release", "id", id, "priority", priority, "delay", delay, "buried", buried)
	return true, buried
}

// Bury moves a job this connection holds in reservation to the graveyard,
// updating its priority for eventual kick.
func (s *Server) Bury(c *connection, id uint64, priority uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.State != JobStateReserved || j.reservedBy != c {
		return false
	}

	c.reservations.remove(j)
	j.Priority = priority
	j.BuryCt++
	s.stats.cmdBury++
	s.buryJob(j)
	s.log.Debug("bury", "id", id, "priority", priority)
	return true
}

// Kick promotes up to n jobs back to ready: from the graveyard head if it's
// non-empty, else from the delay queue's earliest-deadline end regardless of
// whether their deadline has actually arrived. Returns the number moved.
func (s *Server) Kick(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	if s.graveyard.len() > 0 {
		// Each buried job is tried at most once; one that doesn't fit goes
		// back to the graveyard tail and is skipped.
		for tries := s.graveyard.len(); moved < n && tries > 0; tries-- {
			j := s.graveyard.kickOne()
			if j == nil {
				break
			}
			j.KickCt++
			j.State = JobStateReady
			if !s.giveReady(j) {
				s.buryJob(j)
				continue
			}
			moved++
		}
	} else {
		for moved < n {
			j := s.delay.take()
			if j == nil {
				break
			}
			j.KickCt++
			j.State = JobStateReady
			if !s.giveReady(j) {
				s.buryJob(j)
				continue
			}
			moved++
		}
	}

	s.stats.cmdKick++
	if moved > 0 {
		s.runMatching()
		s.kickTimer()
	}
	s.log.Debug("kick", "requested", n, "moved", moved)
	return moved
}

// Touch resets a reserved job's TTR deadline, extending the reservation.
func (s *Server) Touch(c *connection, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.State != JobStateReserved || j.reservedBy != c {
		return false
	}

	c.reservations.remove(j)
	j.Deadline = time.Now().Add(j.TTR)
	c.reservations.add(j)
	s.stats.cmdTouch++
	s.kickTimer()
	s.log.Debug("touch", "id", id)
	return true
}

// Peek copies the head buried job, or if none exists, the next-to-fire
// delayed job. Returns nil if both are empty. The caller sends back a
// snapshot so a concurrent delete/bury can't corrupt the reply in flight.
func (s *Server) Peek() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.cmdPeek++
	s.log.Debug("peek")
	if j := s.graveyard.peek(); j != nil {
		return j.copy()
	}
	if j := s.delay.peek(); j != nil {
		return j.copy()
	}
	return nil
}

// PeekID copies and returns the job with the given id regardless of state,
// or nil if it does not exist.
func (s *Server) PeekID(id uint64) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.cmdPeek++
	s.log.Debug("peek-id", "id", id)
	if j, ok := s.jobs[id]; ok {
		return j.copy()
	}
	return nil
}

// PeekReady copies the head ready job, or nil.
func (s *Server) PeekReady() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.cmdPeek++
	s.log.Debug("peek-ready")
	if j := s.ready.peek(); j != nil {
		return j.copy()
	}
	return nil
}

// PeekDelayed copies the next-to-fire delayed job, or nil.
func (s *Server) PeekDelayed() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.cmdPeek++
	s.log.Debug("peek-delayed")
	if j := s.delay.peek(); j != nil {
		return j.copy()
	}
	return nil
}

// PeekBuried copies the head buried job, or nil.
func (s *Server) PeekBuried() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.cmdPeek++
	s.log.Debug("peek-buried")
	if j := s.graveyard.peek(); j != nil {
		return j.copy()
	}
	return nil
}

// Drain irreversibly enters drain mode: subsequent put calls are rejected.
func (s *Server) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drain {
		s.drain = true
		s.log.Info("entering drain mode")
	}
}

// Draining reports whether the server is in drain mode.
func (s *Server) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drain
}

// Stats renders the server-wide stats body.
func (s *Server) Stats() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.cmdStats++
	reserved, urgent := 0, 0
	for _, j := range s.jobs {
		if j.State == JobStateReserved {
			reserved++
		}
		if j.State == JobStateReady && j.Urgent() {
			urgent++
		}
	}
	s.log.Debug("stats")
	return s.stats.serverStatsBody(urgent, s.ready.used(), s.delay.used(), reserved, s.graveyard.len(), s.waiting.len(), s.heapCapacity)
}

// StatsJob renders the per-job stats body, or ("", false) if id is unknown.
func (s *Server) StatsJob(id uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return "", false
	}
	s.stats.cmdStats++
	s.log.Debug("stats-job", "id", id)
	return statsJobBody(j, time.Now()), true
}
