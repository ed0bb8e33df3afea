package bridge

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"os"
	"strings"
	"testing"

	"rkllmd/internal/engine"
	"rkllmd/internal/reqctx"
)

const sample = "héllo, 世界! 🙂 ünïcødé ✓"

func deliver(b *Bridge, ud uintptr, chunks [][]byte) {
	for _, ch := range chunks {
		b.Callback(&engine.Result{Text: ch}, ud, engine.StateNormal)
	}
	b.Callback(&engine.Result{}, ud, engine.StateFinish)
}

func collect(c *reqctx.Context) (string, reqctx.State) {
	frags, st := c.DrainState()
	return strings.Join(frags, ""), st
}

func TestCallback_ReassemblesEverySplitPoint(t *testing.T) {
	raw := []byte(sample)
	for i := 0; i <= len(raw); i++ {
		for j := i; j <= len(raw); j++ {
			store := reqctx.NewStore()
			c := store.Create("r")
			b := New(store)
			tok, unbind := b.Bind("r")
			deliver(b, tok, [][]byte{raw[:i], raw[i:j], raw[j:]})
			unbind()
			got, st := collect(c)
			if got != sample || st != reqctx.Finished {
				t.Fatalf("split %d/%d: got %q state %v", i, j, got, st)
			}
		}
	}
}

func TestCallback_RandomChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	raw := []byte(strings.Repeat(sample, 20))
	for iter := 0; iter < 200; iter++ {
		var chunks [][]byte
		for rest := raw; len(rest) > 0; {
			n := 1 + rng.Intn(5)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		store := reqctx.NewStore()
		c := store.Create("r")
		b := New(store)
		tok, unbind := b.Bind("r")
		deliver(b, tok, chunks)
		unbind()
		if got, _ := collect(c); got != string(raw) {
			t.Fatalf("iter %d: reassembly mismatch", iter)
		}
	}
}

func TestSplitComplete(t *testing.T) {
	s, rest := splitComplete([]byte{'a', 0xe4, 0xb8})
	if s != "a" || len(rest) != 2 {
		t.Fatalf("got %q %v", s, rest)
	}
	s, rest = splitComplete([]byte{0xff, 'b'})
	if s != "�b" || len(rest) != 0 {
		t.Fatalf("invalid byte should be replaced, got %q %v", s, rest)
	}
	s, rest = splitComplete([]byte{0xe4, 'x'})
	if s != "�x" || len(rest) != 0 {
		t.Fatalf("broken sequence should be replaced, got %q %v", s, rest)
	}
	if flushPending([]byte{0xe4, 0xb8}) != "�" {
		t.Fatalf("flush should replace incomplete tail")
	}
}

func TestCallback_FinishFlushesIncompleteTail(t *testing.T) {
	store := reqctx.NewStore()
	c := store.Create("r")
	b := New(store)
	tok, _ := b.Bind("r")
	deliver(b, tok, [][]byte{[]byte("ok"), {0xe4, 0xb8}})
	got, st := collect(c)
	if got != "ok�" || st != reqctx.Finished {
		t.Fatalf("got %q %v", got, st)
	}
}

func TestCallback_Routing(t *testing.T) {
	store := reqctx.NewStore()
	a := store.Create("a")
	g := store.Create(GlobalID)
	b := New(store)

	tok, unbind := b.Bind("a")
	b.Callback(&engine.Result{Text: []byte("1")}, tok, engine.StateNormal)
	// engines that do not echo user data route to the active binding
	b.Callback(&engine.Result{Text: []byte("2")}, 0, engine.StateNormal)
	unbind()
	unbind()
	b.Callback(&engine.Result{Text: []byte("3")}, tok, engine.StateNormal)

	if got, _ := collect(a); got != "12" {
		t.Fatalf("bound request got %q", got)
	}
	if got, _ := collect(g); got != "3" {
		t.Fatalf("global fallback got %q", got)
	}

	store.Delete(GlobalID)
	b.Callback(&engine.Result{Text: []byte("4")}, 0, engine.StateNormal)
	if a.Len() != 0 {
		t.Fatalf("unresolved callback must be dropped")
	}
}

func TestCallback_WaitingAndError(t *testing.T) {
	store := reqctx.NewStore()
	c := store.Create("r")
	b := New(store)
	tok, _ := b.Bind("r")
	b.Callback(&engine.Result{Text: []byte("par")}, tok, engine.StateWaiting)
	if c.State() != reqctx.Waiting {
		t.Fatalf("want waiting, got %v", c.State())
	}
	b.Callback(nil, tok, engine.StateError)
	got, st := collect(c)
	if st != reqctx.Error || !strings.HasSuffix(got, DiagRunError) || !strings.HasPrefix(got, "par") {
		t.Fatalf("got %q %v", got, st)
	}
	b.Fail("r", errors.New("late"))
	if c.Len() != 0 {
		t.Fatalf("fail after terminal state must not append")
	}
}

func TestFail_AppendsDiagnostic(t *testing.T) {
	store := reqctx.NewStore()
	c := store.Create("r")
	b := New(store)
	b.Fail("r", errors.New("rkllm_run returned -1"))
	got, st := collect(c)
	if st != reqctx.Error || got != "[engine error] rkllm_run returned -1" {
		t.Fatalf("got %q %v", got, st)
	}
	b.Fail("missing", errors.New("x"))
}

func TestCallback_HiddenLayerWritesFile(t *testing.T) {
	dir := t.TempDir()
	store := reqctx.NewStore()
	c := store.Create("h1")
	b := New(store, WithHiddenDir(dir))
	tok, _ := b.Bind("h1")
	vals := []float32{0.5, -1, 2, 3}
	b.Callback(&engine.Result{HiddenLayer: &engine.HiddenLayer{Values: vals, EmbdSize: 2, NumTokens: 2}}, tok, engine.StateLastHiddenLayer)
	if c.State() != reqctx.HiddenLayer {
		t.Fatalf("want hidden_layer state, got %v", c.State())
	}
	b.Callback(&engine.Result{}, tok, engine.StateFinish)
	got, _ := collect(c)
	path := HiddenLayerPath(dir, "h1")
	if !strings.HasPrefix(got, "data_size: 16\n") || !strings.Contains(got, "Data saved to "+path+" successfully!") {
		t.Fatalf("unexpected status text %q", got)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) != 16 {
		t.Fatalf("read %s: %v len=%d", path, err, len(data))
	}
	if v := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])); v != 0.5 {
		t.Fatalf("first value %v", v)
	}
}

func TestCallback_HiddenLayerInvalid(t *testing.T) {
	store := reqctx.NewStore()
	c := store.Create("h2")
	b := New(store, WithHiddenDir(t.TempDir()))
	tok, _ := b.Bind("h2")
	b.Callback(&engine.Result{HiddenLayer: &engine.HiddenLayer{EmbdSize: 0, NumTokens: 3}}, tok, engine.StateLastHiddenLayer)
	b.Callback(nil, tok, engine.StateLastHiddenLayer)
	got, _ := collect(c)
	if got != invalidHiddenLayer+invalidHiddenLayer {
		t.Fatalf("got %q", got)
	}
}

func TestFlush_MovesTailToBuffer(t *testing.T) {
	store := reqctx.NewStore()
	c := store.Create("r")
	b := New(store)
	tok, _ := b.Bind("r")
	b.Callback(&engine.Result{Text: []byte{'a', 0xe4}}, tok, engine.StateNormal)
	b.Flush("r")
	b.Flush("missing")
	if got, st := collect(c); got != "a�" || st != reqctx.Running {
		t.Fatalf("got %q %v", got, st)
	}
}
