package manager

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-contrib/sse"

	"rkllmd/internal/reqctx"
	"rkllmd/pkg/types"
)

// sink receives translated output for one request.
type sink interface {
	// fragment delivers one drained fragment of message index. stop marks the
	// final fragment of the message.
	fragment(index int, text string, stop bool) error
	// messageDone is called once per message after all of its fragments.
	messageDone(index int, stopped bool) error
}

// translate polls rc until the worker has returned and the drained state is
// terminal, forwarding every fragment to s in order.
func (m *Manager) translate(ctx context.Context, rc *reqctx.Context, w *worker, index int, s sink) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	var grace <-chan time.Time
	stopped := false
	start := time.Now()
	for {
		// read worker state before draining so a run that returned is never
		// observed after a drain that missed its last fragments
		workerDone := w.finished()
		frags, st := rc.DrainState()
		for i, f := range frags {
			last := st.Terminal() && i == len(frags)-1
			if err := s.fragment(index, f, last); err != nil {
				return err
			}
			stopped = last
		}
		fragmentsTotal.Add(float64(len(frags)))
		if workerDone && st.Terminal() {
			if st == reqctx.Error {
				runErrorsTotal.Inc()
				m.runErrorsTotal.Add(1)
			}
			messageDuration.Observe(time.Since(start).Seconds())
			return s.messageDone(index, stopped)
		}
		if workerDone && grace == nil {
			grace = time.After(m.finishGrace)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-grace:
			m.log.Warn().Str("request_id", rc.ID).Int("index", index).Stringer("state", st).Msg("engine returned without a terminal state")
			m.bridge.Flush(rc.ID)
			rc.Finish()
		}
	}
}

// streamSink writes SSE frames: one chunk per fragment and a [DONE] marker
// after every message.
type streamSink struct {
	id      string
	created int64
	w       io.Writer
	flush   func()
}

func (s *streamSink) fragment(index int, text string, stop bool) error {
	var reason *string
	if stop {
		r := types.FinishStop
		reason = &r
	}
	chunk := types.ChatChunk{
		ID:      s.id,
		Object:  types.ChatObject,
		Created: s.created,
		Choices: []types.ChunkChoice{{
			Index:        index,
			Delta:        types.Delta{Role: types.RoleAssistant, Content: text},
			FinishReason: reason,
		}},
	}
	if err := sse.Encode(s.w, sse.Event{Data: chunk}); err != nil {
		return err
	}
	s.flushNow()
	return nil
}

func (s *streamSink) messageDone(index int, stopped bool) error {
	if !stopped {
		if err := s.fragment(index, "", true); err != nil {
			return err
		}
	}
	if err := sse.Encode(s.w, sse.Event{Data: types.DoneMarker}); err != nil {
		return err
	}
	s.flushNow()
	return nil
}

func (s *streamSink) flushNow() {
	if s.flush != nil {
		s.flush()
	}
}

// aggregateSink concatenates fragments into one choice per message.
type aggregateSink struct {
	cur     strings.Builder
	choices []types.CompletionChoice
}

func (a *aggregateSink) fragment(_ int, text string, _ bool) error {
	a.cur.WriteString(text)
	return nil
}

func (a *aggregateSink) messageDone(index int, _ bool) error {
	a.choices = append(a.choices, types.CompletionChoice{
		Index:        index,
		Message:      types.Message{Role: types.RoleAssistant, Content: a.cur.String()},
		FinishReason: types.FinishStop,
	})
	a.cur.Reset()
	return nil
}
