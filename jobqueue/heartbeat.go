package jobqueue

import (
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/VertebrateResequencing/beanstalkd/internal/panics"
)

// Heartbeat periodically logs a one-line stats snapshot, independent of any
// client issuing a `stats` command. It never changes the job lifecycle; each
// snapshot is taken through Server.Stats, so it does count toward cmd-stats.
type Heartbeat struct {
	srv *Server
	c   *cron.Cron
}

// NewHeartbeat schedules a stats snapshot log line according to schedule (a
// standard 5-field cron expression, or one of cron's "@every 30s" style
// descriptors). Call Start to begin, Stop to cancel.
func NewHeartbeat(srv *Server, schedule string) (*Heartbeat, error) {
	c := cron.New()
	h := &Heartbeat{srv: srv, c: c}
	_, err := c.AddFunc(schedule, h.log)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Heartbeat) log() {
	defer panics.Recover(h.srv.log, "stats heartbeat")
	body := h.srv.Stats()
	fields := make([]interface{}, 0, 8)
	for _, line := range strings.Split(body, "\n") {
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch k {
		case "current-jobs-ready", "current-jobs-reserved", "current-jobs-delayed", "current-jobs-buried", "current-connections":
			fields = append(fields, k, v)
		}
	}
	h.srv.log.Info("stats heartbeat", fields...)
}

// Start begins running the heartbeat on its own goroutine, managed by the
// cron scheduler.
func (h *Heartbeat) Start() { h.c.Start() }

// Stop cancels future runs; it does not interrupt one already executing.
func (h *Heartbeat) Stop() { h.c.Stop() }
