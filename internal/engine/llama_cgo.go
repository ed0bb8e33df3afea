//go:build llama

package engine

// cgo link directives for the in-process llama backend.
// - rpath of $ORIGIN so libllama.so and libggml*.so are found next to the binary (./bin).
// - -L${SRCDIR}/../../bin so the linker finds libllama.so when building with -tags=llama.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
