package jobqueue

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// stats is the running counters the aggregator maintains.
// All fields are only ever touched while the server's mutex is held, so no
// further synchronization is needed here.
type stats struct {
	cmdPut      uint64
	cmdPeek     uint64
	cmdReserve  uint64
	cmdDelete   uint64
	cmdRelease  uint64
	cmdBury     uint64
	cmdKick     uint64
	cmdStats    uint64
	cmdTouch    uint64
	jobTimeouts uint64
	totalJobs   uint64

	currentConnections int64
	totalConnections   int64
	producers          int64
	workers            int64

	startTime time.Time
}

func newStats() *stats {
	return &stats{startTime: time.Now()}
}

// serverStatsBody renders the YAML-style block the `stats` command returns.
// heapSize is the shared ready/delay queue capacity.
func (s *stats) serverStatsBody(urgent, ready, delayed, reserved, buried, waiting int, heapSize int) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "current-jobs-urgent: %d\n", urgent)
	fmt.Fprintf(&b, "current-jobs-ready: %d\n", ready)
	fmt.Fprintf(&b, "current-jobs-reserved: %d\n", reserved)
	fmt.Fprintf(&b, "current-jobs-delayed: %d\n", delayed)
	fmt.Fprintf(&b, "current-jobs-buried: %d\n", buried)
	fmt.Fprintf(&b, "cmd-put: %d\n", s.cmdPut)
	fmt.Fprintf(&b, "cmd-peek: %d\n", s.cmdPeek)
	fmt.Fprintf(&b, "cmd-reserve: %d\n", s.cmdReserve)
	fmt.Fprintf(&b, "cmd-delete: %d\n", s.cmdDelete)
	fmt.Fprintf(&b, "cmd-release: %d\n", s.cmdRelease)
	fmt.Fprintf(&b, "cmd-bury: %d\n", s.cmdBury)
	fmt.Fprintf(&b, "cmd-kick: %d\n", s.cmdKick)
	fmt.Fprintf(&b, "cmd-stats: %d\n", s.cmdStats)
	fmt.Fprintf(&b, "cmd-touch: %d\n", s.cmdTouch)
	fmt.Fprintf(&b, "job-timeouts: %d\n", s.jobTimeouts)
	fmt.Fprintf(&b, "total-jobs: %d\n", s.totalJobs)
	fmt.Fprintf(&b, "current-connections: %d\n", s.currentConnections)
	fmt.Fprintf(&b, "current-producers: %d\n", s.producers)
	fmt.Fprintf(&b, "current-workers: %d\n", s.workers)
	fmt.Fprintf(&b, "current-waiting: %d\n", waiting)
	fmt.Fprintf(&b, "total-connections: %d\n", s.totalConnections)
	fmt.Fprintf(&b, "pid: %d\n", os.Getpid())
	fmt.Fprintf(&b, "version: %s\n", Version)
	fmt.Fprintf(&b, "rusage-utime: %s\n", cpuTimeString(userCPUTime()))
	fmt.Fprintf(&b, "rusage-stime: %s\n", cpuTimeString(systemCPUTime()))
	fmt.Fprintf(&b, "uptime: %d\n", int64(time.Since(s.startTime).Seconds()))
	fmt.Fprintf(&b, "heap-size: %d\n", heapSize)
	return b.String()
}

// statsJobBody renders the `stats-job <id>` / `stats <id>` reply body.
func statsJobBody(j *Job, now time.Time) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %d\n", j.ID)
	fmt.Fprintf(&b, "state: %s\n", j.State)
	fmt.Fprintf(&b, "pri: %d\n", j.Priority)
	fmt.Fprintf(&b, "age: %d\n", int64(j.Age(now).Seconds()))
	fmt.Fprintf(&b, "delay: %d\n", int64(j.Delay.Seconds()))
	fmt.Fprintf(&b, "ttr: %d\n", int64(j.TTR.Seconds()))
	fmt.Fprintf(&b, "time-left: %d\n", int64(j.TimeLeft(now).Seconds()))
	fmt.Fprintf(&b, "timeouts: %d\n", j.TimeoutCt)
	fmt.Fprintf(&b, "releases: %d\n", j.ReleaseCt)
	fmt.Fprintf(&b, "buries: %d\n", j.BuryCt)
	fmt.Fprintf(&b, "kicks: %d\n", j.KickCt)
	fmt.Fprintf(&b, "reserves: %d\n", j.ReserveCt)
	return b.String()
}

func cpuTimeString(d time.Duration) string {
	return fmt.Sprintf("%.6f", d.Seconds())
}
