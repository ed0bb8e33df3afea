//go:build !llama

package engine

import "fmt"

// openLlama refuses to start without the 'llama' build tag so default
// builds stay CGO-free.
func openLlama(Params, Callback) (Engine, error) {
	return nil, fmt.Errorf("%w: llama support not built (missing 'llama' build tag)", ErrUnavailable)
}
