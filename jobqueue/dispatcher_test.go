package jobqueue

import (
	"testing"
	"time"

	"github.com/VertebrateResequencing/beanstalkd/internal/logger"
)

// discardLogger swallows everything; used so tests don't spam output.
type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{})   {}
func (discardLogger) Info(string, ...interface{})    {}
func (discardLogger) Warn(string, ...interface{})    {}
func (discardLogger) Error(string, ...interface{})   {}
func (d discardLogger) WithComponent(string) logger.Logger { return d }
func (discardLogger) Close() error                   { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(4, discardLogger{})
	t.Cleanup(s.Close)
	return s
}

func TestProduceConsumeDelete(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	worker := newConnection()

	id, buried, err := s.Put(producer, 0, 0, 60*time.Second, []byte("hello"))
	if err != nil || buried {
		t.Fatalf("Put() = (%d, %v, %v)", id, buried, err)
	}
	if id != 1 {
		t.Fatalf("first job id = %d, want 1", id)
	}

	ch := s.Reserve(worker)
	select {
	case j := <-ch:
		if j.ID != id || string(j.Body) != "hello" {
			t.Fatalf("reserved job = %+v, want id %d body hello", j, id)
		}
	case <-time.After(time.Second):
		t.Fatal("reserve did not match an already-ready job")
	}

	if !s.Delete(worker, id) {
		t.Fatalf("Delete() = false, want true")
	}
	if s.Delete(worker, id) {
		t.Fatalf("second Delete() = true, want false")
	}
}

func TestPriorityOrdering(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	worker := newConnection()

	id1, _, _ := s.Put(producer, 10, 0, 60*time.Second, []byte("a"))
	id2, _, _ := s.Put(producer, 1, 0, 60*time.Second, []byte("b"))
	id3, _, _ := s.Put(producer, 10, 0, 60*time.Second, []byte("c"))

	want := []uint64{id2, id1, id3}
	for _, w := range want {
		ch := s.Reserve(worker)
		j := <-ch
		if j.ID != w {
			t.Fatalf("reserved id = %d, want %d", j.ID, w)
		}
		s.Delete(worker, j.ID)
	}
}

func TestReserveBlocksUntilMatch(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	worker := newConnection()

	ch := s.Reserve(worker)
	select {
	case <-ch:
		t.Fatal("reserve matched before any job was put")
	case <-time.After(20 * time.Millisecond):
	}

	id, _, _ := s.Put(producer, 0, 0, 60*time.Second, []byte("x"))
	select {
	case j := <-ch:
		if j.ID != id {
			t.Fatalf("matched id = %d, want %d", j.ID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("reserve never matched after put")
	}
}

func TestReleaseReturnsJobToReady(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	w1 := newConnection()
	w2 := newConnection()

	id, _, _ := s.Put(producer, 5, 0, 60*time.Second, []byte("x"))
	j := <-s.Reserve(w1)
	if j.ID != id {
		t.Fatalf("unexpected reserve")
	}

	found, buried := s.Release(w1, id, 5, 0)
	if !found || buried {
		t.Fatalf("Release() = (%v, %v), want (true, false)", found, buried)
	}

	j2 := <-s.Reserve(w2)
	if j2.ID != id {
		t.Fatalf("released job not redelivered, got %d want %d", j2.ID, id)
	}
}

func TestBuryPeekKick(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	worker := newConnection()

	id, _, _ := s.Put(producer, 0, 0, 60*time.Second, []byte("y"))
	j := <-s.Reserve(worker)
	if j.ID != id {
		t.Fatalf("unexpected reserve")
	}

	if !s.Bury(worker, id, 5) {
		t.Fatalf("Bury() = false, want true")
	}

	peeked := s.Peek()
	if peeked == nil || peeked.ID != id {
		t.Fatalf("Peek() = %v, want id %d", peeked, id)
	}

	if moved := s.Kick(1); moved != 1 {
		t.Fatalf("Kick(1) = %d, want 1", moved)
	}

	j2 := <-s.Reserve(worker)
	if j2.ID != id {
		t.Fatalf("kicked job not re-reservable, got %d want %d", j2.ID, id)
	}
	if j2.KickCt != 1 {
		t.Fatalf("KickCt = %d, want 1", j2.KickCt)
	}
}

func TestDelayThenKick(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	worker := newConnection()

	id, _, _ := s.Put(producer, 0, time.Minute, 30*time.Second, []byte("x"))
	ch := s.Reserve(worker)

	if moved := s.Kick(1); moved != 1 {
		t.Fatalf("Kick(1) = %d, want 1", moved)
	}

	select {
	case j := <-ch:
		if j.ID != id {
			t.Fatalf("kicked delayed job id = %d, want %d", j.ID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("kicked delayed job was never matched")
	}
}

func TestTTRExpiryRedeliversJob(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	w1 := newConnection()
	w2 := newConnection()

	s.registerConnection(w1)
	id, _, _ := s.Put(producer, 0, 0, 30*time.Millisecond, []byte("y"))
	j := <-s.Reserve(w1)
	if j.ID != id {
		t.Fatalf("unexpected reserve")
	}

	ch := s.Reserve(w2)
	select {
	case j2 := <-ch:
		if j2.ID != id {
			t.Fatalf("redelivered id = %d, want %d", j2.ID, id)
		}
		if j2.TimeoutCt != 1 {
			t.Fatalf("TimeoutCt = %d, want 1", j2.TimeoutCt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("TTR expiry never redelivered the job")
	}
}

func TestHeapCapacityBuriesOverflow(t *testing.T) {
	s := newTestServer(t) // capacity 4
	producer := newConnection()

	var buriedCount int
	for i := 0; i < 5; i++ {
		_, buried, err := s.Put(producer, 0, 0, 60*time.Second, []byte("x"))
		if err != nil {
			t.Fatalf("Put() err = %v", err)
		}
		if buried {
			buriedCount++
		}
	}
	if buriedCount != 1 {
		t.Fatalf("buried count = %d, want 1 (only the 5th put overflows)", buriedCount)
	}
}

func TestDrainRejectsPutButNotOtherCommands(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	worker := newConnection()

	id, _, _ := s.Put(producer, 0, 0, 60*time.Second, []byte("z"))
	s.Drain()

	if _, _, err := s.Put(producer, 0, 0, 60*time.Second, []byte("w")); err == nil {
		t.Fatalf("Put() during drain should fail")
	}

	j := <-s.Reserve(worker)
	if j.ID != id {
		t.Fatalf("reserve during drain should still work")
	}
	if !s.Delete(worker, id) {
		t.Fatalf("delete during drain should still work")
	}
}

func TestConnectionCloseRequeuesReservations(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	worker := newConnection()

	id, _, _ := s.Put(producer, 0, 0, 60*time.Second, []byte("x"))
	s.registerConnection(worker)
	j := <-s.Reserve(worker)
	if j.ID != id {
		t.Fatalf("unexpected reserve")
	}

	s.unregisterConnection(worker)

	w2 := newConnection()
	j2 := <-s.Reserve(w2)
	if j2.ID != id {
		t.Fatalf("job not requeued after owning connection closed: got %d want %d", j2.ID, id)
	}
}

func TestPutRejectsOversizedBody(t *testing.T) {
	s := newTestServer(t)
	producer := newConnection()
	body := make([]byte, MaxBodySize+1)
	if _, _, err := s.Put(producer, 0, 0, 60*time.Second, body); err == nil {
		t.Fatalf("Put() with oversized body should fail")
	}
}
