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

// This file contains the TCP transport: accepting connections, reading and
// writing the wire protocol, and translating parsed commands into calls on
// Server. The core in dispatcher.go never touches a net.Conn directly.

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/VertebrateResequencing/beanstalkd/internal/panics"
)

// Listener owns the TCP socket and the set of connection goroutines it has
// spawned, so Shutdown can wait for them to finish.
type Listener struct {
	srv *Server
	ln  net.Listener
	wg  sync.WaitGroup
}

// Listen binds addr and returns a Listener ready to Serve. addr is a
// "host:port" pair, e.g. ":11300".
func Listen(addr string, srv *Server) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{srv: srv, ln: ln}, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until Shutdown is called, blocking the caller.
// Each accepted connection is handled on its own goroutine.
func (l *Listener) Serve() error {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(nc)
		}()
	}
}

// Shutdown closes the listening socket and waits for in-flight connection
// handlers to finish (they observe the close via their reads failing).
func (l *Listener) Shutdown() {
	l.ln.Close()
	l.wg.Wait()
}

// handleConn owns one client's entire session: read a command, dispatch it,
// write a reply, repeat until the client disconnects or sends something the
// parser can't resynchronize after.
func (l *Listener) handleConn(nc net.Conn) {
	defer panics.Recover(l.srv.log, "connection handler")

	c := newConnection()
	r := bufio.NewReader(nc)
	w := bufio.NewWriter(nc)

	l.srv.registerConnection(c)
	defer func() {
		l.srv.unregisterConnection(c)
		nc.Close()
	}()

	for {
		cmd, err := readCommand(r)
		if err != nil {
			var pe protoError
			if errors.As(err, &pe) {
				replyClientError(w, pe.code)
			}
			return
		}

		if !l.dispatch(nc, r, w, c, cmd) {
			return
		}
	}
}

// dispatch runs one parsed command and writes its reply. It returns false
// when the connection should be closed (quit, or a write failure).
func (l *Listener) dispatch(nc net.Conn, r *bufio.Reader, w *bufio.Writer, c *connection, cmd *command) bool {
	s := l.srv

	switch cmd.name {
	case "put":
		return l.handlePut(w, c, cmd)
	case "reserve":
		return l.handleReserve(nc, w, c)
	case "delete":
		return l.handleDelete(w, c, cmd)
	case "release":
		return l.handleRelease(w, c, cmd)
	case "bury":
		return l.handleBury(w, c, cmd)
	case "kick":
		return l.handleKick(w, cmd)
	case "touch":
		return l.handleTouch(w, c, cmd)
	case "peek":
		return replyPeek(w, s.Peek()) == nil
	case "peek-ready":
		return replyPeek(w, s.PeekReady()) == nil
	case "peek-delayed":
		return replyPeek(w, s.PeekDelayed()) == nil
	case "peek-buried":
		return replyPeek(w, s.PeekBuried()) == nil
	case "stats":
		return l.handleStats(w, cmd)
	case "stats-job":
		return l.handleStatsJob(w, cmd)
	case "quit":
		return false
	default:
		replyClientError(w, clientErrUnknownCommand)
		return true
	}
}

func (l *Listener) handlePut(w *bufio.Writer, c *connection, cmd *command) bool {
	if len(cmd.args) < 3 {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	pri, err1 := parseUint32(cmd.args[0])
	delay, err2 := parseSeconds(cmd.args[1])
	ttr, err3 := parseSeconds(cmd.args[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return replyClientError(w, clientErrBadFormat) == nil
	}

	id, buried, err := l.srv.Put(c, pri, delay, ttr, cmd.body)
	if err != nil {
		if jerr, ok := err.(Error); ok {
			if jerr.Err == serverErrorMsg[serverErrDraining] {
				return replyServerError(w, serverErrDraining) == nil
			}
			if jerr.Err == clientErrorMsg[clientErrJobTooBig] {
				return replyClientError(w, clientErrJobTooBig) == nil
			}
		}
		return replyServerError(w, serverErrInternal) == nil
	}
	if buried {
		return replyLine(w, formatID("BURIED", id)) == nil
	}
	return replyLine(w, formatID("INSERTED", id)) == nil
}

// handleReserve blocks the connection's own goroutine until the dispatcher
// matches it with a job, or until the underlying connection is closed by
// the client. Only one goroutine ever reads from nc at a time: the watcher
// below performs a single best-effort Read purely to detect close, and is
// canceled by forcing its read to return via SetReadDeadline before this
// goroutine resumes using nc/r itself.
func (l *Listener) handleReserve(nc net.Conn, w *bufio.Writer, c *connection) bool {
	matched := l.srv.Reserve(c)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		one := make([]byte, 1)
		nc.Read(one) //nolint:errcheck // only used to detect close/readability
	}()

	var job *Job
	select {
	case job = <-matched:
	case <-closed:
		l.srv.CancelReserve(c)
		// The watcher's Read returning means the peer closed (or sent
		// unexpected bytes); either way this session is done.
		return false
	}

	// Cancel the watcher goroutine: force its pending Read to return, wait
	// for it to finish, then clear the deadline before resuming normal I/O.
	nc.SetReadDeadline(time.Now())
	<-closed
	nc.SetReadDeadline(time.Time{})

	return replyJob(w, "RESERVED", job) == nil
}

func (l *Listener) handleDelete(w *bufio.Writer, c *connection, cmd *command) bool {
	if len(cmd.args) < 1 {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	id, err := parseUint64(cmd.args[0])
	if err != nil {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	if l.srv.Delete(c, id) {
		return replyLine(w, "DELETED") == nil
	}
	return replyLine(w, "NOT_FOUND") == nil
}

func (l *Listener) handleRelease(w *bufio.Writer, c *connection, cmd *command) bool {
	if len(cmd.args) < 3 {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	id, err1 := parseUint64(cmd.args[0])
	pri, err2 := parseUint32(cmd.args[1])
	delay, err3 := parseSeconds(cmd.args[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return replyClientError(w, clientErrBadFormat) == nil
	}

	found, buried := l.srv.Release(c, id, pri, delay)
	if !found {
		return replyLine(w, "NOT_FOUND") == nil
	}
	if buried {
		return replyLine(w, "BURIED") == nil
	}
	return replyLine(w, "RELEASED") == nil
}

func (l *Listener) handleBury(w *bufio.Writer, c *connection, cmd *command) bool {
	if len(cmd.args) < 2 {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	id, err1 := parseUint64(cmd.args[0])
	pri, err2 := parseUint32(cmd.args[1])
	if err1 != nil || err2 != nil {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	if l.srv.Bury(c, id, pri) {
		return replyLine(w, "BURIED") == nil
	}
	return replyLine(w, "NOT_FOUND") == nil
}

func (l *Listener) handleKick(w *bufio.Writer, cmd *command) bool {
	if len(cmd.args) < 1 {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	n, err := parseUint64(cmd.args[0])
	if err != nil {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	moved := l.srv.Kick(int(n))
	return replyLine(w, formatCount("KICKED", moved)) == nil
}

func (l *Listener) handleTouch(w *bufio.Writer, c *connection, cmd *command) bool {
	if len(cmd.args) < 1 {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	id, err := parseUint64(cmd.args[0])
	if err != nil {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	if l.srv.Touch(c, id) {
		return replyLine(w, "TOUCHED") == nil
	}
	return replyLine(w, "NOT_FOUND") == nil
}

func (l *Listener) handleStats(w *bufio.Writer, cmd *command) bool {
	if len(cmd.args) == 0 {
		return replyBody(w, "OK", l.srv.Stats()) == nil
	}
	return l.handleStatsJob(w, cmd)
}

// handleStatsJob serves both `stats <id>` and the dedicated `stats-job <id>`
// command name.
func (l *Listener) handleStatsJob(w *bufio.Writer, cmd *command) bool {
	if len(cmd.args) != 1 {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	id, err := parseUint64(cmd.args[0])
	if err != nil {
		return replyClientError(w, clientErrBadFormat) == nil
	}
	body, ok := l.srv.StatsJob(id)
	if !ok {
		return replyLine(w, "NOT_FOUND") == nil
	}
	return replyBody(w, "OK", body) == nil
}

func replyPeek(w *bufio.Writer, j *Job) error {
	if j == nil {
		return replyLine(w, "NOT_FOUND")
	}
	return replyJob(w, "FOUND", j)
}

func formatID(verb string, id uint64) string {
	return verb + " " + strconv.FormatUint(id, 10)
}

func formatCount(verb string, n int) string {
	return verb + " " + strconv.Itoa(n)
}
