//go:build !(linux || darwin)

package engine

import "fmt"

func openRKLLM(Params, Callback) (Engine, error) {
	return nil, fmt.Errorf("%w: rkllm requires linux or darwin", ErrUnavailable)
}
