package types

// Object tag carried by every chat response, kept for client compatibility.
const ChatObject = "rkllm_chat"

// RoleAssistant is the role of every generated message.
const RoleAssistant = "assistant"

// FinishStop is the only finish reason the engine reports.
const FinishStop = "stop"

// DoneMarker is the data of the terminal SSE frame sent after each message.
const DoneMarker = "[DONE]"

// Message is one role/content pair of a chat request.
type Message struct {
	// example: user
	Role string `json:"role" example:"user"`
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// ChatRequest is the payload of POST /rkllm_chat.
// Every message is run through the engine on its own, in order.
type ChatRequest struct {
	// Messages to run, in order.
	Messages []Message `json:"messages"`
	// If true, stream results as server-sent events. Otherwise one JSON object is returned.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
}

// Delta is the incremental content of a streamed chunk.
type Delta struct {
	// example: assistant
	Role string `json:"role" example:"assistant"`
	// example: The tide
	Content string `json:"content" example:"The tide"`
}

// ChunkChoice is a single streamed fragment for one message index.
type ChunkChoice struct {
	// Index of the request message this fragment belongs to.
	// example: 0
	Index int   `json:"index" example:"0"`
	Delta Delta `json:"delta"`
	// Null until the fragment that completes the message.
	FinishReason *string `json:"finish_reason"`
}

// ChatChunk is the JSON body of one SSE data frame.
type ChatChunk struct {
	// example: 6f1c0e1e-7d0c-4a53-8b1e-2f7c1e9f0a11
	ID string `json:"id" example:"6f1c0e1e-7d0c-4a53-8b1e-2f7c1e9f0a11"`
	// example: rkllm_chat
	Object string `json:"object" example:"rkllm_chat"`
	// Unix seconds at request start.
	// example: 1700000000
	Created int64         `json:"created" example:"1700000000"`
	Choices []ChunkChoice `json:"choices"`
}

// CompletionChoice is the aggregated output for one request message.
type CompletionChoice struct {
	// example: 0
	Index   int     `json:"index" example:"0"`
	Message Message `json:"message"`
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
}

// ChatCompletion is returned by POST /rkllm_chat when stream is false.
type ChatCompletion struct {
	// example: 6f1c0e1e-7d0c-4a53-8b1e-2f7c1e9f0a11
	ID string `json:"id" example:"6f1c0e1e-7d0c-4a53-8b1e-2f7c1e9f0a11"`
	// example: rkllm_chat
	Object string `json:"object" example:"rkllm_chat"`
	// example: 1700000000
	Created int64              `json:"created" example:"1700000000"`
	Choices []CompletionChoice `json:"choices"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: resource busy, please retry later
	Error string `json:"error" example:"resource busy, please retry later"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state: ready, busy or closed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Engine backend in use.
	// example: rkllm
	Backend string `json:"backend" example:"rkllm"`
	// Path of the loaded model.
	Model string `json:"model,omitempty"`
	// True while a request holds the engine.
	// example: false
	Busy bool `json:"busy" example:"false"`
	// Id of the request currently holding the engine, if any.
	ActiveRequest string `json:"active_request,omitempty"`
	// Number of registered request contexts.
	// example: 0
	Contexts int `json:"contexts" example:"0"`
	// Admitted requests since start.
	// example: 12
	RequestsTotal uint64 `json:"requests_total" example:"12"`
	// Requests rejected because the engine was busy.
	// example: 3
	RejectedTotal uint64 `json:"rejected_total" example:"3"`
	// Messages whose engine run reported an error.
	// example: 0
	RunErrorsTotal uint64 `json:"run_errors_total" example:"0"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
