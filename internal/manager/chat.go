package manager

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"rkllmd/pkg/types"
)

// ValidateRequest checks a chat request before admission.
func ValidateRequest(req types.ChatRequest) error {
	if len(req.Messages) == 0 {
		return ErrBadRequest("messages must not be empty")
	}
	for i, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			return ErrBadRequest(fmt.Sprintf("messages[%d].content must not be empty", i))
		}
	}
	return nil
}

// Stream runs every message of req in order and writes SSE frames to w,
// calling flush after each frame. It returns a busy error without writing
// anything if another request holds the engine.
func (m *Manager) Stream(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error {
	return m.chat(ctx, req, func(id string, created int64) sink {
		return &streamSink{id: id, created: created, w: w, flush: flush}
	})
}

// Complete runs every message of req and returns one aggregated choice per
// message.
func (m *Manager) Complete(ctx context.Context, req types.ChatRequest) (types.ChatCompletion, error) {
	var agg *aggregateSink
	var out types.ChatCompletion
	err := m.chat(ctx, req, func(id string, created int64) sink {
		out = types.ChatCompletion{ID: id, Object: types.ChatObject, Created: created}
		agg = &aggregateSink{}
		return agg
	})
	if err != nil {
		return types.ChatCompletion{}, err
	}
	out.Choices = agg.choices
	return out, nil
}

func (m *Manager) chat(ctx context.Context, req types.ChatRequest, newSink func(id string, created int64) sink) error {
	if err := ValidateRequest(req); err != nil {
		return err
	}
	if !m.Ready() {
		return ErrEngineUnavailable("engine is not available")
	}
	release, ok := m.gate.TryAcquire()
	if !ok {
		m.rejectedTotal.Add(1)
		m.publish(EventAdmissionReject, "", nil)
		return ErrBusy
	}
	m.requestsTotal.Add(1)
	rc := m.life.Begin()
	m.setActive(rc.ID)
	start := time.Now()
	m.publish(EventRequestBegin, rc.ID, map[string]any{"messages": len(req.Messages)})
	log := m.log.With().Str("request_id", rc.ID).Logger()
	log.Debug().Int("messages", len(req.Messages)).Msg("request admitted")

	var inflight *worker
	defer func() {
		cleanup := func() {
			m.setActive("")
			m.life.End(rc.ID)
			release()
			m.publish(EventRequestEnd, rc.ID, map[string]any{"dur_ms": int(time.Since(start) / time.Millisecond)})
			log.Debug().Msg("request released")
		}
		if inflight != nil && !inflight.finished() {
			// the engine cannot be preempted; keep the gate until the run returns
			m.abort(rc.ID)
			go func(w *worker) {
				<-w.done
				w.unbind()
				cleanup()
			}(inflight)
			return
		}
		if inflight != nil {
			inflight.unbind()
		}
		cleanup()
	}()

	s := newSink(rc.ID, start.Unix())
	for i, msg := range req.Messages {
		inflight = m.startWorker(rc, msg.Content)
		if err := m.translate(ctx, rc, inflight, i, s); err != nil {
			log.Info().Err(err).Int("index", i).Msg("request stopped before completion")
			return err
		}
		inflight.unbind()
		m.publish(EventMessageDone, rc.ID, map[string]any{"index": i, "state": rc.State().String()})
	}
	return nil
}
