package manager

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-contrib/sse"

	"rkllmd/internal/engine"
	"rkllmd/pkg/types"
)

// script drives one fake Run.
type script func(in engine.Input, ud uintptr, cb engine.Callback) error

// echoChunks replays the prompt in n-byte chunks and finishes.
func echoChunks(n int) script {
	return func(in engine.Input, ud uintptr, cb engine.Callback) error {
		b := []byte(in.Prompt)
		for len(b) > 0 {
			k := min(n, len(b))
			cb(&engine.Result{Text: b[:k]}, ud, engine.StateNormal)
			b = b[k:]
		}
		cb(&engine.Result{}, ud, engine.StateFinish)
		return nil
	}
}

// fakeEngine is a lightweight in-memory engine used for tests.
type fakeEngine struct {
	cb engine.Callback

	mu      sync.Mutex
	run     script
	prompts []string

	inRun    atomic.Int32
	maxInRun atomic.Int32
	aborted  atomic.Bool
	closed   atomic.Bool
}

func (f *fakeEngine) setScript(s script) {
	f.mu.Lock()
	f.run = s
	f.mu.Unlock()
}

func (f *fakeEngine) seenPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeEngine) Run(in engine.Input, ud uintptr) error {
	n := f.inRun.Add(1)
	defer f.inRun.Add(-1)
	for {
		cur := f.maxInRun.Load()
		if n <= cur || f.maxInRun.CompareAndSwap(cur, n) {
			break
		}
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, in.Prompt)
	s := f.run
	f.mu.Unlock()
	if s == nil {
		s = echoChunks(2)
	}
	return s(in, ud, f.cb)
}

func (f *fakeEngine) Abort() error {
	f.aborted.Store(true)
	return nil
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestManager(t *testing.T, fe *fakeEngine, mutate ...func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := ManagerConfig{
		Open: func(cb engine.Callback) (engine.Engine, error) {
			fe.cb = cb
			return fe, nil
		},
		PollInterval: time.Millisecond,
		FinishGrace:  50 * time.Millisecond,
		Backend:      "fake",
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	return m
}

func chatReq(contents ...string) types.ChatRequest {
	req := types.ChatRequest{}
	for _, c := range contents {
		req.Messages = append(req.Messages, types.Message{Role: "user", Content: c})
	}
	return req
}

// decodeFrames returns the data payload of every SSE event in body.
func decodeFrames(t *testing.T, body string) []string {
	t.Helper()
	evs, err := sse.Decode(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode sse: %v", err)
	}
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		s, ok := ev.Data.(string)
		if !ok {
			t.Fatalf("unexpected event data %T", ev.Data)
		}
		out = append(out, s)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// lockedBuffer is a bytes.Buffer safe for one writer and a polling reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
