package jobqueue

import (
	"time"

	"github.com/VertebrateResequencing/beanstalkd/internal/panics"
)

// runTimer is the single earliest-deadline timer driver: one goroutine that
// wakes at the soonest of (a) the next delay-queue deadline and (b) the
// soonest reservation deadline across every connection, and on each wakeup
// drains whatever has expired. It is nudged early by kickTimer whenever a
// deadline might have moved closer.
func (s *Server) runTimer() {
	defer panics.Recover(s.log, "timer")
	t := time.NewTimer(time.Hour)
	defer t.Stop()

	for {
		select {
		case <-s.closeCh:
			return

		case <-t.C:
			s.mu.Lock()
			s.fireExpired(time.Now())
			next := s.nextWakeup()
			s.mu.Unlock()
			resetTimer(t, next)

		case <-s.timerReset:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			s.mu.Lock()
			next := s.nextWakeup()
			s.mu.Unlock()
			resetTimer(t, next)
		}
	}
}

// fireExpired drains every delayed job whose deadline has passed into ready,
// then expires every connection's overdue reservations back into ready
// (bury on overflow either way), running the matching step after each
// batch. Caller holds mu.
func (s *Server) fireExpired(now time.Time) {
	promoted := 0
	for {
		j := s.delay.peek()
		if j == nil || j.Deadline.After(now) {
			break
		}
		s.delay.take()
		j.State = JobStateReady
		if !s.giveReady(j) {
			s.buryJob(j)
		}
		promoted++
	}
	if promoted > 0 {
		s.log.Debug("delay deadlines fired", "count", promoted)
		s.runMatching()
	}

	expired := 0
	for c := range s.connections {
		for _, j := range c.reservations.expired(now) {
			j.TimeoutCt++
			s.stats.jobTimeouts++
			s.requeueReserved(j)
			s.log.Info("reservation timed out", "id", j.ID, "connection", c.id)
			expired++
		}
	}
	if expired > 0 {
		s.runMatching()
	}
}

// nextWakeup returns the duration until the soonest pending deadline across
// the delay queue and every connection's earliest reservation, or a long
// duration if nothing is pending. Caller holds mu.
func (s *Server) nextWakeup() time.Duration {
	now := time.Now()
	var soonest time.Time
	have := false

	if j := s.delay.peek(); j != nil {
		soonest = j.Deadline
		have = true
	}
	for c := range s.connections {
		if j := c.reservations.soonest(); j != nil {
			if !have || j.Deadline.Before(soonest) {
				soonest = j.Deadline
				have = true
			}
		}
	}

	if !have {
		return time.Hour
	}
	d := soonest.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func resetTimer(t *time.Timer, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	t.Reset(d)
}
