package engine

import (
	"errors"
	"sync/atomic"
	"time"
)

// Echo is a development engine that replays the prompt bytes through the
// callback in fixed-size chunks. Small chunks split multi-byte characters,
// which makes it useful for exercising UTF-8 reassembly end to end.
type Echo struct {
	chunk   int
	delay   time.Duration
	cb      Callback
	running atomic.Bool
	aborted atomic.Bool
	closed  atomic.Bool
}

func NewEcho(chunkBytes int, delay time.Duration, cb Callback) *Echo {
	if chunkBytes <= 0 {
		chunkBytes = 3
	}
	return &Echo{chunk: chunkBytes, delay: delay, cb: cb}
}

func (e *Echo) Run(in Input, userData uintptr) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("echo: concurrent run")
	}
	defer e.running.Store(false)
	e.aborted.Store(false)

	if in.Mode == InferLastHiddenLayer {
		vals := make([]float32, len(in.Prompt))
		for i := 0; i < len(in.Prompt); i++ {
			vals[i] = float32(in.Prompt[i]) / 255
		}
		e.cb(&Result{HiddenLayer: &HiddenLayer{Values: vals, EmbdSize: 1, NumTokens: len(vals)}}, userData, StateLastHiddenLayer)
		e.cb(&Result{}, userData, StateFinish)
		return nil
	}

	b := []byte(in.Prompt)
	for len(b) > 0 {
		if e.aborted.Load() {
			break
		}
		n := min(e.chunk, len(b))
		e.cb(&Result{Text: b[:n]}, userData, StateNormal)
		b = b[n:]
		if e.delay > 0 && len(b) > 0 {
			time.Sleep(e.delay)
		}
	}
	e.cb(&Result{}, userData, StateFinish)
	return nil
}

// Abort stops the current Run after the chunk being delivered.
func (e *Echo) Abort() error {
	e.aborted.Store(true)
	return nil
}

func (e *Echo) Close() error {
	e.closed.Store(true)
	return nil
}
