package jobqueue

import "container/list"

// waitingQueue is the process-wide FIFO of connections blocked in reserve
// container/list gives O(1) removal given the element, which
// is needed when a waiting connection closes before being matched.
type waitingQueue struct {
	l *list.List
	// elems maps a connection to its list element so remove() can unlink it
	// in O(1) without scanning.
	elems map[*connection]*list.Element
}

func newWaitingQueue() *waitingQueue {
	return &waitingQueue{l: list.New(), elems: make(map[*connection]*list.Element)}
}

// enqueue appends c to the tail.
func (w *waitingQueue) enqueue(c *connection) {
	w.elems[c] = w.l.PushBack(c)
}

// dequeue removes and returns the head connection, or nil if empty.
func (w *waitingQueue) dequeue() *connection {
	e := w.l.Front()
	if e == nil {
		return nil
	}
	w.l.Remove(e)
	c := e.Value.(*connection)
	delete(w.elems, c)
	return c
}

// remove unlinks c if it is currently waiting; a no-op otherwise. Used on
// connection close.
func (w *waitingQueue) remove(c *connection) {
	e, ok := w.elems[c]
	if !ok {
		return
	}
	w.l.Remove(e)
	delete(w.elems, c)
}

func (w *waitingQueue) len() int { return w.l.Len() }
