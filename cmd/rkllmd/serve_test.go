package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"rkllmd/internal/config"
	"rkllmd/internal/httpapi"
	"rkllmd/pkg/types"
)

func echoConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{}
	cfg.Engine.Backend = "echo"
	cfg.Engine.RawPrompt = true
	cfg.Engine.HiddenDir = t.TempDir()
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func TestNewServer_EchoChat(t *testing.T) {
	srv, mgr, err := newServer(echoConfig(t), zerolog.Nop(), context.Background())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer func() { _ = mgr.Close(context.Background()) }()
	defer httpapi.SetBaseContext(nil)

	req := httptest.NewRequest(http.MethodPost, "/rkllm_chat", strings.NewReader(`{"messages":[{"role":"user","content":"hello echo"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out types.ChatCompletion
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Choices) != 1 || out.Choices[0].Message.Content != "hello echo" {
		t.Fatalf("unexpected completion %+v", out)
	}

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models", nil))
	var models types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &models); err != nil {
		t.Fatalf("models json: %v", err)
	}
	if len(models.Models) != 1 || models.Models[0].ID != "echo" {
		t.Fatalf("models=%+v", models.Models)
	}
}

func TestNewServer_BadInferMode(t *testing.T) {
	cfg := echoConfig(t)
	cfg.Engine.InferMode = "sideways"
	if _, _, err := newServer(cfg, zerolog.Nop(), context.Background()); err == nil {
		t.Fatalf("expected infer mode error")
	}
}

func TestEngineParams(t *testing.T) {
	e := config.EngineConfig{Backend: "rkllm", LoraModelPath: "/x/lora.rkllm", KeepSpecialTokens: false, EchoDelayMS: 20}
	p := engineParams(e)
	if p.LoraName != "test" {
		t.Fatalf("lora name=%q", p.LoraName)
	}
	if !p.SkipSpecialToken {
		t.Fatalf("special tokens should be skipped by default")
	}
	if p.EchoDelay.Milliseconds() != 20 {
		t.Fatalf("echo delay=%v", p.EchoDelay)
	}
	if engineParams(config.EngineConfig{}).LoraName != "" {
		t.Fatalf("lora name set without adapter")
	}
}
