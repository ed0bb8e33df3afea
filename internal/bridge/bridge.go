// Package bridge routes engine callbacks to per-request contexts.
//
// The engine invokes one callback for every request. Each Run is bound to a
// request id and the resulting correlation token travels through the
// engine's user-data pointer; when the engine does not echo it back, the
// single active binding is used, and finally the "global" id.
package bridge

import (
	"sync"

	"github.com/rs/zerolog"

	"rkllmd/internal/engine"
	"rkllmd/internal/reqctx"
)

// GlobalID is the fallback request id used when no binding can be resolved.
const GlobalID = "global"

// DiagRunError is appended when the engine reports ERROR.
const DiagRunError = "[engine error] inference failed"

type Bridge struct {
	store     *reqctx.Store
	log       zerolog.Logger
	hiddenDir string

	mu     sync.Mutex
	next   uintptr
	tokens map[uintptr]string
	active uintptr
}

type Option func(*Bridge)

func WithLogger(l zerolog.Logger) Option { return func(b *Bridge) { b.log = l } }

// WithHiddenDir sets where hidden layer files are written (default ".").
func WithHiddenDir(dir string) Option { return func(b *Bridge) { b.hiddenDir = dir } }

func New(store *reqctx.Store, opts ...Option) *Bridge {
	b := &Bridge{
		store:     store,
		log:       zerolog.Nop(),
		hiddenDir: ".",
		tokens:    make(map[uintptr]string),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Bind associates a new correlation token with id and makes it the active
// binding. The returned func is idempotent.
func (b *Bridge) Bind(id string) (uintptr, func()) {
	b.mu.Lock()
	b.next++
	tok := b.next
	b.tokens[tok] = id
	b.active = tok
	b.mu.Unlock()
	var once sync.Once
	return tok, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.tokens, tok)
			if b.active == tok {
				b.active = 0
			}
			b.mu.Unlock()
		})
	}
}

// resolve maps a callback's user data to a request id.
func (b *Bridge) resolve(userData uintptr) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.tokens[userData]; ok {
		return id
	}
	if id, ok := b.tokens[b.active]; ok {
		return id
	}
	return GlobalID
}

// Callback is registered with the engine. It only touches in-memory state,
// apart from the hidden layer side file.
func (b *Bridge) Callback(res *engine.Result, userData uintptr, state engine.CallState) {
	id := b.resolve(userData)
	c, ok := b.store.Get(id)
	if !ok {
		b.log.Debug().Str("request_id", id).Stringer("state", state).Msg("callback for unknown request dropped")
		return
	}
	switch state {
	case engine.StateFinish:
		if tail := c.TakePending(); len(tail) > 0 {
			b.log.Warn().Str("request_id", id).Int("bytes", len(tail)).Msg("stream ended mid-character")
			c.Finish(flushPending(tail))
			return
		}
		c.Finish()
	case engine.StateError:
		b.log.Error().Str("request_id", id).Msg("engine run error")
		c.Fail(flushPending(c.TakePending()), DiagRunError)
	case engine.StateLastHiddenLayer:
		var h *engine.HiddenLayer
		if res != nil {
			h = res.HiddenLayer
		}
		c.Append(b.hiddenLayerFragments(id, h)...)
		c.SetState(reqctx.HiddenLayer)
	default:
		var text []byte
		if res != nil {
			text = res.Text
		}
		c.Update(func(pending []byte) ([]byte, []string) {
			s, rest := splitComplete(append(pending, text...))
			return rest, []string{s}
		})
		if state == engine.StateWaiting {
			c.SetState(reqctx.Waiting)
		} else {
			c.SetState(reqctx.Running)
		}
	}
}

// Fail records a run error reported outside the callback, e.g. a non-zero
// return from Run. It does nothing if the message already terminated.
func (b *Bridge) Fail(id string, err error) {
	c, ok := b.store.Get(id)
	if !ok {
		return
	}
	msg := "[engine error] " + err.Error()
	if c.Fail(flushPending(c.TakePending()), msg) {
		b.log.Error().Err(err).Str("request_id", id).Msg("engine run failed")
	}
}

// Flush moves any held UTF-8 tail of id into its buffer. Used when a run
// ended without a FINISH delivery.
func (b *Bridge) Flush(id string) {
	c, ok := b.store.Get(id)
	if !ok {
		return
	}
	if tail := c.TakePending(); len(tail) > 0 {
		c.Append(flushPending(tail))
	}
}
