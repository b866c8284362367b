package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

// Call is an in-flight request. It completes exactly once: with the correlated
// response, a timeout, or a subprocess exit.
type Call struct {
	ID       int64
	Op       protocol.Op
	Payload  protocol.Payload
	Created  time.Time
	Deadline time.Time

	mu       sync.Mutex
	finished bool
	timer    *time.Timer
	resp     *protocol.Response
	err      error
	done     chan struct{}
	written  atomic.Bool
}

func newCall(op protocol.Op, p protocol.Payload, timeout time.Duration) *Call {
	now := time.Now()
	return &Call{
		Op:       op,
		Payload:  p,
		Created:  now,
		Deadline: now.Add(timeout),
		done:     make(chan struct{}),
	}
}

// Resolved returns a call that has already completed with resp or err.
func Resolved(op protocol.Op, p protocol.Payload, resp *protocol.Response, err error) *Call {
	c := newCall(op, p, 0)
	c.finish(resp, err)
	return c
}

// Done is closed when the call completes.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result returns the outcome. Only meaningful after Done is closed.
func (c *Call) Result() (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resp, c.err
}

// Wait blocks until the call completes or ctx ends. Giving up on ctx does not
// cancel the call; its own deadline still cleans it up.
func (c *Call) Wait(ctx context.Context) (*protocol.Response, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// arm starts the deadline timer unless the call already completed.
func (c *Call) arm(onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.timer = time.AfterFunc(time.Until(c.Deadline), onExpire)
}

func (c *Call) finish(resp *protocol.Response, err error) bool {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return false
	}
	c.finished = true
	c.resp = resp
	c.err = err
	t := c.timer
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	close(c.done)
	return true
}

func (c *Call) isFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}
