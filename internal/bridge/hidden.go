package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"rkllmd/internal/common/fsutil"
	"rkllmd/internal/engine"
)

const invalidHiddenLayer = "Invalid hidden layer data."

// HiddenLayerPath is the side file written for a request's last hidden layer.
func HiddenLayerPath(dir, id string) string {
	return filepath.Join(dir, fmt.Sprintf("last_hidden_layer_%s.bin", id))
}

// hiddenLayerFragments persists h and returns the status text for the client.
// The float payload itself never enters the response stream.
func (b *Bridge) hiddenLayerFragments(id string, h *engine.HiddenLayer) []string {
	if h == nil || h.EmbdSize == 0 || h.NumTokens == 0 {
		return []string{invalidHiddenLayer}
	}
	n := h.EmbdSize * h.NumTokens
	size := n * 4
	frags := []string{fmt.Sprintf("data_size: %d\n", size)}
	if len(h.Values) < n {
		b.log.Error().Str("request_id", id).Int("values", len(h.Values)).Int("want", n).Msg("hidden layer payload truncated")
		return append(frags, invalidHiddenLayer)
	}
	var buf bytes.Buffer
	buf.Grow(size)
	if err := binary.Write(&buf, binary.LittleEndian, h.Values[:n]); err != nil {
		return append(frags, "Failed to encode hidden layer data: "+err.Error())
	}
	path := HiddenLayerPath(b.hiddenDir, id)
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		b.log.Error().Err(err).Str("request_id", id).Str("path", path).Msg("hidden layer write failed")
		return append(frags, fmt.Sprintf("Failed to save data to %s: %v", path, err))
	}
	b.log.Info().Str("request_id", id).Str("path", path).Int("bytes", size).Msg("hidden layer saved")
	return append(frags, fmt.Sprintf("Data saved to %s successfully!", path))
}
