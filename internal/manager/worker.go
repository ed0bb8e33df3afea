package manager

import (
	"fmt"

	"rkllmd/internal/engine"
	"rkllmd/internal/reqctx"
)

// worker tracks one blocking engine call.
type worker struct {
	done   chan struct{}
	unbind func()
}

func (w *worker) finished() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// startWorker re-arms rc, binds it for callback routing and runs the prompt
// on a new goroutine. The binding stays until the caller unbinds, so late
// callbacks still reach rc.
func (m *Manager) startWorker(rc *reqctx.Context, content string) *worker {
	rc.Rearm()
	tok, unbind := m.bridge.Bind(rc.ID)
	w := &worker{done: make(chan struct{}), unbind: unbind}
	in := engine.Input{Prompt: m.promptPrefix + content + m.promptPostfix, Mode: m.inferMode}
	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().Str("request_id", rc.ID).Interface("panic", r).Msg("engine run panicked")
				m.bridge.Fail(rc.ID, fmt.Errorf("panic: %v", r))
			}
		}()
		if err := m.eng.Run(in, tok); err != nil {
			m.bridge.Fail(rc.ID, err)
		}
	}()
	return w
}

// abort asks the engine to stop the current run if it supports it.
func (m *Manager) abort(id string) {
	a, ok := m.eng.(engine.Aborter)
	if !ok {
		return
	}
	if err := a.Abort(); err != nil {
		m.log.Warn().Err(err).Str("request_id", id).Msg("engine abort failed")
		return
	}
	m.log.Info().Str("request_id", id).Msg("engine run aborted")
}
