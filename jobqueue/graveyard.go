package jobqueue

import "container/list"

// graveyard is the FIFO list of buried jobs. container/list is
// a doubly linked list with its own sentinel element already built in, so
// there's no separate sentinel to manage here.
type graveyard struct {
	l *list.List
	// byID lets delete/kick locate a specific buried job without a linear
	// scan of the list; container/list's Remove is O(1) given the element.
	byID map[uint64]*list.Element
}

func newGraveyard() *graveyard {
	return &graveyard{l: list.New(), byID: make(map[uint64]*list.Element)}
}

// bury appends j to the tail.
func (g *graveyard) bury(j *Job) {
	e := g.l.PushBack(j)
	g.byID[j.ID] = e
}

// kickOne removes and returns the head (earliest-buried) job, or nil.
func (g *graveyard) kickOne() *Job {
	e := g.l.Front()
	if e == nil {
		return nil
	}
	g.l.Remove(e)
	j := e.Value.(*Job)
	delete(g.byID, j.ID)
	return j
}

// peek returns the head job without removing it, or nil.
func (g *graveyard) peek() *Job {
	e := g.l.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Job)
}

// remove takes a specific job out of the graveyard by id, e.g. for delete.
func (g *graveyard) remove(id uint64) *Job {
	e, ok := g.byID[id]
	if !ok {
		return nil
	}
	g.l.Remove(e)
	delete(g.byID, id)
	return e.Value.(*Job)
}

// find looks up a buried job by id without removing it.
func (g *graveyard) find(id uint64) *Job {
	e, ok := g.byID[id]
	if !ok {
		return nil
	}
	return e.Value.(*Job)
}

func (g *graveyard) len() int { return g.l.Len() }

// all returns every buried job, head first, without removing any of them.
func (g *graveyard) all() []*Job {
	jobs := make([]*Job, 0, g.l.Len())
	for e := g.l.Front(); e != nil; e = e.Next() {
		jobs = append(jobs, e.Value.(*Job))
	}
	return jobs
}
