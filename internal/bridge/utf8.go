package bridge

import (
	"strings"
	"unicode/utf8"
)

// splitComplete returns the longest prefix of b that ends on a character
// boundary, decoded, and the incomplete trailing sequence that may still be
// completed by a later delivery. Bytes that can never form a valid sequence
// are replaced with U+FFFD rather than dropped.
func splitComplete(b []byte) (string, []byte) {
	cut := len(b)
	// A rune is at most utf8.UTFMax bytes, so only the last few bytes can be
	// the start of an unfinished sequence.
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			cut = i
		}
		break
	}
	head, tail := b[:cut], b[cut:]
	if len(tail) > 0 {
		tail = append([]byte(nil), tail...)
	}
	return strings.ToValidUTF8(string(head), string(utf8.RuneError)), tail
}

// flushPending decodes whatever is held at end of stream.
func flushPending(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
