//go:build linux || darwin

package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// C layouts of the librkllmrt structures (64-bit).

type rkllmExtendParam struct {
	BaseDomainID int32
	Reserved     [112]uint8
}

type rkllmParam struct {
	ModelPath        *byte
	MaxContextLen    int32
	MaxNewTokens     int32
	TopK             int32
	TopP             float32
	Temperature      float32
	RepeatPenalty    float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Mirostat         int32
	MirostatTau      float32
	MirostatEta      float32
	SkipSpecialToken bool
	IsAsync          bool
	ImgStart         *byte
	ImgEnd           *byte
	ImgContent       *byte
	ExtendParam      rkllmExtendParam
}

// rkllmInput carries a prompt in the first word of the input union.
type rkllmInput struct {
	InputMode int32
	_         [4]byte
	Prompt    *byte
	_         [16]byte
}

type rkllmLoraParam struct {
	LoraAdapterName *byte
}

type rkllmPromptCacheParam struct {
	SavePromptCache int32
	PromptCachePath *byte
}

type rkllmInferParam struct {
	Mode              int32
	LoraParams        *rkllmLoraParam
	PromptCacheParams *rkllmPromptCacheParam
}

type rkllmLoraAdapter struct {
	LoraAdapterPath *byte
	LoraAdapterName *byte
	Scale           float32
}

type rkllmResult struct {
	Text         *byte
	Size         int32
	HiddenStates *float32
	EmbdSize     int32
	NumTokens    int32
}

const rkllmInputPrompt = 0

// librkllmrt exposes one callback slot per handle but purego callbacks are a
// finite process resource, so a single trampoline forwards to the active
// engine's Go callback.
var (
	trampolineOnce sync.Once
	trampoline     uintptr
	activeCallback atomic.Pointer[Callback]
)

func rkllmTrampoline(res unsafe.Pointer, userData uintptr, state int32) {
	cbp := activeCallback.Load()
	if cbp == nil {
		return
	}
	(*cbp)(convertResult((*rkllmResult)(res)), userData, CallState(state))
}

func convertResult(r *rkllmResult) *Result {
	out := &Result{}
	if r == nil {
		return out
	}
	if r.Text != nil {
		out.Text = cBytes(r.Text)
	}
	if r.HiddenStates != nil && r.EmbdSize > 0 && r.NumTokens > 0 {
		n := int(r.EmbdSize) * int(r.NumTokens)
		out.HiddenLayer = &HiddenLayer{
			Values:    unsafe.Slice(r.HiddenStates, n),
			EmbdSize:  int(r.EmbdSize),
			NumTokens: int(r.NumTokens),
		}
	} else if r.EmbdSize != 0 || r.NumTokens != 0 {
		out.HiddenLayer = &HiddenLayer{EmbdSize: int(r.EmbdSize), NumTokens: int(r.NumTokens)}
	}
	return out
}

// cBytes views a NUL-terminated C string without copying.
func cBytes(p *byte) []byte {
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return unsafe.Slice(p, n)
}

func cString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

type rkllmEngine struct {
	handle uintptr
	mu     sync.Mutex

	run     func(handle uintptr, in *rkllmInput, infer *rkllmInferParam, userData uintptr) int32
	destroy func(handle uintptr) int32
	abort   func(handle uintptr) int32
	loraName *byte
}

func openRKLLM(p Params, cb Callback) (Engine, error) {
	if p.LibraryPath == "" || p.ModelPath == "" {
		return nil, fmt.Errorf("%w: library and model paths are required", ErrInit)
	}
	lib, err := purego.Dlopen(p.LibraryPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: dlopen %s: %v", ErrInit, p.LibraryPath, err)
	}
	for _, sym := range []string{"rkllm_init", "rkllm_run", "rkllm_destroy"} {
		if _, err := purego.Dlsym(lib, sym); err != nil {
			return nil, fmt.Errorf("%w: missing symbol %s: %v", ErrInit, sym, err)
		}
	}

	var initFn func(handle *uintptr, param *rkllmParam, cb uintptr) int32
	e := &rkllmEngine{}
	purego.RegisterLibFunc(&initFn, lib, "rkllm_init")
	purego.RegisterLibFunc(&e.run, lib, "rkllm_run")
	purego.RegisterLibFunc(&e.destroy, lib, "rkllm_destroy")
	if _, err := purego.Dlsym(lib, "rkllm_abort"); err == nil {
		purego.RegisterLibFunc(&e.abort, lib, "rkllm_abort")
	}

	trampolineOnce.Do(func() { trampoline = purego.NewCallback(rkllmTrampoline) })
	activeCallback.Store(&cb)

	empty := cString("")
	param := rkllmParam{
		ModelPath:        cString(p.ModelPath),
		MaxContextLen:    int32(p.MaxContextLen),
		MaxNewTokens:     int32(p.MaxNewTokens),
		TopK:             int32(p.TopK),
		TopP:             p.TopP,
		Temperature:      p.Temperature,
		RepeatPenalty:    p.RepeatPenalty,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		Mirostat:         int32(p.Mirostat),
		MirostatTau:      p.MirostatTau,
		MirostatEta:      p.MirostatEta,
		SkipSpecialToken: p.SkipSpecialToken,
		ImgStart:         empty,
		ImgEnd:           empty,
		ImgContent:       empty,
	}
	ret := initFn(&e.handle, &param, trampoline)
	runtime.KeepAlive(param.ModelPath)
	runtime.KeepAlive(empty)
	if ret != 0 {
		activeCallback.Store(nil)
		return nil, fmt.Errorf("%w: rkllm_init returned %d", ErrInit, ret)
	}

	if p.LoraModelPath != "" {
		if err := e.loadLora(lib, p); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	if p.PromptCachePath != "" {
		if err := e.loadPromptCache(lib, p.PromptCachePath); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *rkllmEngine) loadLora(lib uintptr, p Params) error {
	if _, err := purego.Dlsym(lib, "rkllm_load_lora"); err != nil {
		return fmt.Errorf("%w: lora requested but rkllm_load_lora is missing", ErrInit)
	}
	var load func(handle uintptr, adapter *rkllmLoraAdapter) int32
	purego.RegisterLibFunc(&load, lib, "rkllm_load_lora")
	name := p.LoraName
	if name == "" {
		name = DefaultLoraName
	}
	adapter := rkllmLoraAdapter{
		LoraAdapterPath: cString(p.LoraModelPath),
		LoraAdapterName: cString(name),
		Scale:           1.0,
	}
	ret := load(e.handle, &adapter)
	runtime.KeepAlive(adapter.LoraAdapterPath)
	if ret != 0 {
		return fmt.Errorf("%w: rkllm_load_lora returned %d", ErrInit, ret)
	}
	e.loraName = cString(name)
	return nil
}

func (e *rkllmEngine) loadPromptCache(lib uintptr, path string) error {
	if _, err := purego.Dlsym(lib, "rkllm_load_prompt_cache"); err != nil {
		return fmt.Errorf("%w: prompt cache requested but rkllm_load_prompt_cache is missing", ErrInit)
	}
	var load func(handle uintptr, path string) int32
	purego.RegisterLibFunc(&load, lib, "rkllm_load_prompt_cache")
	if ret := load(e.handle, path); ret != 0 {
		return fmt.Errorf("%w: rkllm_load_prompt_cache returned %d", ErrInit, ret)
	}
	return nil
}

func (e *rkllmEngine) Run(in Input, userData uintptr) error {
	e.mu.Lock()
	h := e.handle
	e.mu.Unlock()
	if h == 0 {
		return ErrClosed
	}
	input := rkllmInput{InputMode: rkllmInputPrompt, Prompt: cString(in.Prompt)}
	infer := rkllmInferParam{Mode: int32(in.Mode)}
	if e.loraName != nil {
		infer.LoraParams = &rkllmLoraParam{LoraAdapterName: e.loraName}
	}
	ret := e.run(h, &input, &infer, userData)
	runtime.KeepAlive(input.Prompt)
	if ret != 0 {
		return fmt.Errorf("rkllm_run returned %d", ret)
	}
	return nil
}

func (e *rkllmEngine) Abort() error {
	if e.abort == nil {
		return errors.New("rkllm_abort not available")
	}
	e.mu.Lock()
	h := e.handle
	e.mu.Unlock()
	if h == 0 {
		return ErrClosed
	}
	if ret := e.abort(h); ret != 0 {
		return fmt.Errorf("rkllm_abort returned %d", ret)
	}
	return nil
}

func (e *rkllmEngine) Close() error {
	e.mu.Lock()
	h := e.handle
	e.handle = 0
	e.mu.Unlock()
	if h == 0 {
		return nil
	}
	activeCallback.Store(nil)
	if ret := e.destroy(h); ret != 0 {
		return fmt.Errorf("rkllm_destroy returned %d", ret)
	}
	return nil
}
