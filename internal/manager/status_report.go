package manager

import (
	"time"

	"rkllmd/pkg/types"
)

// Status builds a status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	state := "ready"
	switch {
	case !m.Ready():
		state = "closed"
	case m.gate.Busy():
		state = "busy"
	}
	now := time.Now()
	return types.StatusResponse{
		State:          state,
		Backend:        m.backend,
		Model:          m.modelPath,
		Busy:           m.gate.Busy(),
		ActiveRequest:  active,
		Contexts:       m.store.Len(),
		RequestsTotal:  m.requestsTotal.Load(),
		RejectedTotal:  m.rejectedTotal.Load(),
		RunErrorsTotal: m.runErrorsTotal.Load(),
		UptimeSeconds:  int64(now.Sub(m.startTime) / time.Second),
		ServerTimeUnix: now.Unix(),
	}
}
