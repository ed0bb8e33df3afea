package manager

// Event represents a request lifecycle event.
// Minimal and stable: name + request ID and optional fields via key/values.
type Event struct {
	Name      string
	RequestID string
	Fields    map[string]any
}

// Names of the events published by the manager.
const (
	EventAdmissionReject = "admission_reject"
	EventRequestBegin    = "request_begin"
	EventMessageDone     = "message_done"
	EventRequestEnd      = "request_end"
)

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

func (m *Manager) publish(name, requestID string, fields map[string]any) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if fields == nil {
		fields = map[string]any{}
	}
	p.Publish(Event{Name: name, RequestID: requestID, Fields: fields})
}
