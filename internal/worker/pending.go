package worker

import "sync"

// pendingSet is the registry of in-flight calls of one subprocess instance.
// Entries are added before the request is queued and removed by whichever of
// response, timeout or exit comes first.
type pendingSet struct {
	mu     sync.Mutex
	calls  map[int64]*Call
	closed bool
}

func newPendingSet() *pendingSet {
	return &pendingSet{calls: make(map[int64]*Call)}
}

// add registers c. It fails once the set has been drained.
func (s *pendingSet) add(c *Call) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.calls[c.ID] = c
	return true
}

func (s *pendingSet) remove(id int64) *Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil
	}
	delete(s.calls, id)
	return c
}

func (s *pendingSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// drain empties and closes the set, returning what was still pending.
func (s *pendingSet) drain() []*Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Call, 0, len(s.calls))
	for id, c := range s.calls {
		out = append(out, c)
		delete(s.calls, id)
	}
	s.closed = true
	return out
}
