package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sse"

	"rkllmd/internal/engine"
	"rkllmd/internal/httpapi"
	"rkllmd/internal/manager"
	"rkllmd/pkg/types"
)

type echoOpts struct {
	chunk  int
	delay  time.Duration
	mode   engine.InferMode
	hidden string
}

// newEchoServer serves the real HTTP stack over a manager driving the echo
// engine with no prompt template, so output equals the message content.
func newEchoServer(t *testing.T, o echoOpts) (*httptest.Server, *manager.Manager) {
	t.Helper()
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		Open: func(cb engine.Callback) (engine.Engine, error) {
			return engine.Open(engine.Params{Backend: "echo", EchoChunkBytes: o.chunk, EchoDelay: o.delay}, cb)
		},
		PollInterval: time.Millisecond,
		FinishGrace:  200 * time.Millisecond,
		InferMode:    o.mode,
		HiddenDir:    o.hidden,
		Backend:      "echo",
		Models:       []types.Model{{ID: "echo", Backend: "echo", Loaded: true}},
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close(context.Background())
	})
	return srv, mgr
}

func chatBody(stream bool, contents ...string) []byte {
	req := types.ChatRequest{Stream: stream}
	for _, c := range contents {
		req.Messages = append(req.Messages, types.Message{Role: "user", Content: c})
	}
	b, _ := json.Marshal(req)
	return b
}

func postChat(ctx context.Context, t *testing.T, base string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/rkllm_chat", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

// frame is one decoded SSE data line: either a chunk or the done marker.
type frame struct {
	done  bool
	chunk types.ChatChunk
}

func decodeFrames(t *testing.T, body []byte) []frame {
	t.Helper()
	evs, err := sse.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("sse decode: %v", err)
	}
	out := make([]frame, 0, len(evs))
	for _, ev := range evs {
		data, _ := ev.Data.(string)
		if data == types.DoneMarker {
			out = append(out, frame{done: true})
			continue
		}
		var c types.ChatChunk
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			t.Fatalf("chunk json %q: %v", data, err)
		}
		out = append(out, frame{chunk: c})
	}
	return out
}

// contentByIndex concatenates streamed deltas per message index.
func contentByIndex(frames []frame) map[int]string {
	out := map[int]string{}
	for _, f := range frames {
		if f.done {
			continue
		}
		for _, c := range f.chunk.Choices {
			out[c.Index] += c.Delta.Content
		}
	}
	return out
}

// readFirstFrame blocks until one complete SSE frame arrived on r.
func readFirstFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !strings.HasPrefix(line, "data:") {
		t.Fatalf("unexpected line %q", line)
	}
	return line
}
