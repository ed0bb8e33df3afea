// Package engine is the boundary to the native inference runtime. An Engine
// is created once, runs one prompt at a time and reports output through a
// single callback registered at Open.
package engine

import (
	"errors"
	"fmt"
	"time"
)

// CallState mirrors the runtime's LLMCallState codes.
type CallState int32

const (
	StateNormal CallState = iota
	StateWaiting
	StateFinish
	StateError
	StateLastHiddenLayer
)

func (s CallState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateWaiting:
		return "waiting"
	case StateFinish:
		return "finish"
	case StateError:
		return "error"
	case StateLastHiddenLayer:
		return "last_hidden_layer"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// InferMode selects what Run produces.
type InferMode int32

const (
	InferGenerate InferMode = iota
	InferLastHiddenLayer
)

// ParseInferMode maps the config spelling to an InferMode.
func ParseInferMode(s string) (InferMode, error) {
	switch s {
	case "", "generate":
		return InferGenerate, nil
	case "hidden_layer":
		return InferLastHiddenLayer, nil
	}
	return InferGenerate, fmt.Errorf("unknown infer mode %q", s)
}

// Result is one callback payload. Text and HiddenLayer alias native memory
// and are only valid for the duration of the callback.
type Result struct {
	Text        []byte
	HiddenLayer *HiddenLayer
}

type HiddenLayer struct {
	Values    []float32
	EmbdSize  int
	NumTokens int
}

// Callback receives every result the engine emits. userData is the value
// passed to Run and is used for routing.
type Callback func(res *Result, userData uintptr, state CallState)

type Input struct {
	Prompt string
	Mode   InferMode
}

// Engine is a single-slot runtime. Run blocks until the prompt is done and
// must not be called while another Run is outstanding.
type Engine interface {
	Run(in Input, userData uintptr) error
	Close() error
}

// Aborter is implemented by engines that can interrupt an in-flight Run.
type Aborter interface {
	Abort() error
}

var (
	// ErrInit wraps native initialization failures.
	ErrInit = errors.New("engine init failed")
	// ErrUnavailable marks a backend that was not compiled into this binary.
	ErrUnavailable = errors.New("engine backend unavailable")
	ErrClosed      = errors.New("engine closed")
)

// Params configures Open. Zero sampling values are passed through; callers
// apply defaults via config.
type Params struct {
	Backend         string
	LibraryPath     string
	ModelPath       string
	TargetPlatform  string
	LoraModelPath   string
	LoraName        string
	PromptCachePath string

	MaxContextLen    int
	MaxNewTokens     int
	TopK             int
	TopP             float32
	Temperature      float32
	RepeatPenalty    float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Mirostat         int
	MirostatTau      float32
	MirostatEta      float32
	SkipSpecialToken bool
	Threads          int

	EchoChunkBytes int
	EchoDelay      time.Duration
}

// DefaultLoraName is the adapter name registered when a LoRA model is loaded.
const DefaultLoraName = "test"

// Open initializes the backend named by p.Backend and registers cb.
func Open(p Params, cb Callback) (Engine, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInit)
	}
	switch p.Backend {
	case "rkllm":
		return openRKLLM(p, cb)
	case "llama":
		return openLlama(p, cb)
	case "echo":
		return NewEcho(p.EchoChunkBytes, p.EchoDelay, cb), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrUnavailable, p.Backend)
	}
}
