package jobqueue

import (
	"time"

	"github.com/google/uuid"
)

// connection is a client's state in the core engine: its reservations, its
// producer/worker role flags (set the first time it issues a put or
// reserve), and the channel the matching step uses to hand it a job when
// reserve() is blocked. The transport layer (server.go) owns the net.Conn
// and its I/O buffers separately, as locals in its per-connection handler;
// the core itself never touches the network.
type connection struct {
	id uuid.UUID

	reservations reservationSet
	isProducer   bool
	isWorker     bool

	// matched is sent to by the matching step exactly once per reserve call;
	// buffered so the send from under the server lock never blocks.
	matched chan *Job

	connectedAt time.Time
}

func newConnection() *connection {
	return &connection{
		id:          uuid.New(),
		matched:     make(chan *Job, 1),
		connectedAt: time.Now(),
	}
}
