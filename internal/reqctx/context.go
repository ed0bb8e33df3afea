// Package reqctx holds per-request output state shared between the engine
// callback (producer) and the stream translator (consumer).
package reqctx

import "sync"

// State is the lifecycle state of a request as reported by the engine callback.
type State int32

const (
	Running State = iota
	Waiting
	Finished
	Error
	HiddenLayer
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Finished:
		return "finished"
	case Error:
		return "error"
	case HiddenLayer:
		return "hidden_layer"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further output is expected for the current message.
func (s State) Terminal() bool { return s == Finished || s == Error }

// Context is the mutable output of one chat request. Fragments are appended
// by a single producer and drained FIFO by a single consumer.
type Context struct {
	ID string

	mu      sync.Mutex
	buf     []string
	state   State
	pending []byte
}

func newContext(id string) *Context { return &Context{ID: id, state: Running} }

// Append enqueues fragments in order. Empty strings are skipped.
func (c *Context) Append(frags ...string) {
	c.mu.Lock()
	c.appendLocked(frags)
	c.mu.Unlock()
}

func (c *Context) appendLocked(frags []string) {
	for _, f := range frags {
		if f != "" {
			c.buf = append(c.buf, f)
		}
	}
}

// DrainState removes and returns every buffered fragment together with the
// state observed under the same lock. A terminal state paired with the drain
// means no fragment can follow for the current message.
func (c *Context) DrainState() ([]string, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.buf
	c.buf = nil
	return out, c.state
}

// Len returns the number of buffered fragments.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState moves the context to s. Once terminal, only Rearm leaves the state.
func (c *Context) SetState(s State) {
	c.mu.Lock()
	if !c.state.Terminal() {
		c.state = s
	}
	c.mu.Unlock()
}

// Rearm resets the state to Running ahead of the next message. Buffered
// fragments and pending bytes are left untouched.
func (c *Context) Rearm() {
	c.mu.Lock()
	c.state = Running
	c.mu.Unlock()
}

// Finish appends trailing fragments and marks the message finished atomically.
func (c *Context) Finish(frags ...string) { c.terminate(Finished, frags) }

// Fail appends diagnostic fragments and marks the message failed atomically.
// It is a no-op if the message already reached a terminal state.
func (c *Context) Fail(frags ...string) bool { return c.terminate(Error, frags) }

func (c *Context) terminate(s State, frags []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return false
	}
	c.appendLocked(frags)
	c.state = s
	return true
}

// Pending returns a copy of the held UTF-8 tail.
func (c *Context) Pending() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.pending...)
}

// Update runs fn with the pending tail under the context lock. fn returns the
// new tail and the fragments to enqueue; this keeps tail handling and append
// ordered with respect to concurrent drains.
func (c *Context) Update(fn func(pending []byte) (rest []byte, frags []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rest, frags := fn(c.pending)
	c.pending = rest
	c.appendLocked(frags)
}

// TakePending returns and clears the held tail.
func (c *Context) TakePending() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}
