package types

// Model represents a model file found next to the configured engine model.
type Model struct {
	// Stable identifier for the model (file name).
	// example: qwen2.5-1.5b-w8a8-rk3588.rkllm
	ID string `json:"id" example:"qwen2.5-1.5b-w8a8-rk3588.rkllm"`
	// Human-friendly name.
	// example: qwen2.5-1.5b-w8a8-rk3588
	Name string `json:"name" example:"qwen2.5-1.5b-w8a8-rk3588"`
	// Absolute path to the model file on disk.
	// example: /opt/models/qwen2.5-1.5b-w8a8-rk3588.rkllm
	Path string `json:"path" example:"/opt/models/qwen2.5-1.5b-w8a8-rk3588.rkllm"`
	// Engine backend able to load this file (rkllm, llama).
	// example: rkllm
	Backend string `json:"backend,omitempty" example:"rkllm"`
	// True for the model currently held by the engine.
	// example: true
	Loaded bool `json:"loaded" example:"true"`
}
