// Package manager coordinates a single native inference engine across HTTP
// requests. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters, Close.
//   - config.go: ManagerConfig and package defaults.
//   - errors.go: error types and helpers (IsBusy, IsBadRequest, IsEngineUnavailable).
//   - admission.go: the single-flight gate guarding the engine.
//   - lifecycle.go: request context registration and guaranteed removal.
//   - worker.go: runs the blocking engine call for one message off the caller.
//   - translate.go: polls a request context and feeds a sink (SSE or aggregate).
//   - chat.go: Stream/Complete entry points tying the above together.
//   - status_report.go: Status reporting for /status.
//   - metrics.go: Prometheus collectors for admission and engine runs.
//   - events.go: EventPublisher and the events emitted per request.
//   - eventpub_memory.go, eventpub_log.go: in-memory and zerolog publishers.
//
// Admission never queues: a request arriving while another holds the engine
// fails immediately with a busy error.
package manager
