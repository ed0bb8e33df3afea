//go:build llama

package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaEngine runs a GGUF model in-process through go-llama.cpp.
type llamaEngine struct {
	model   *llama.LLama
	cb      Callback
	p       Params
	aborted atomic.Bool
}

func openLlama(p Params, cb Callback) (Engine, error) {
	if strings.TrimSpace(p.ModelPath) == "" {
		return nil, fmt.Errorf("%w: model path is empty", ErrInit)
	}
	m, err := llama.New(p.ModelPath, llama.SetContext(p.MaxContextLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	return &llamaEngine{model: m, cb: cb, p: p}, nil
}

func (e *llamaEngine) Run(in Input, userData uintptr) error {
	if e.model == nil {
		return ErrClosed
	}
	if in.Mode != InferGenerate {
		return errors.New("llama: hidden layer mode not supported")
	}
	e.aborted.Store(false)
	e.model.SetTokenCallback(func(tok string) bool {
		if e.aborted.Load() {
			return false
		}
		e.cb(&Result{Text: []byte(tok)}, userData, StateNormal)
		return true
	})
	if _, err := e.model.Predict(in.Prompt, predictOptions(e.p)...); err != nil {
		return err
	}
	e.cb(&Result{}, userData, StateFinish)
	return nil
}

func (e *llamaEngine) Abort() error {
	e.aborted.Store(true)
	return nil
}

func (e *llamaEngine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts engine params into go-llama.cpp options.
func predictOptions(p Params) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetThreads(zn(p.Threads, 1)),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(p.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(p.RepeatPenalty, llama.DefaultOptions.Penalty)),
		llama.SetFrequencyPenalty(p.FrequencyPenalty),
		llama.SetPresencePenalty(p.PresencePenalty),
	}
	if p.MaxNewTokens > 0 {
		po = append(po, llama.SetTokens(p.MaxNewTokens))
	}
	if p.Mirostat > 0 {
		po = append(po, llama.SetMirostat(p.Mirostat), llama.SetMirostatTAU(p.MirostatTau), llama.SetMirostatETA(p.MirostatEta))
	}
	return po
}
