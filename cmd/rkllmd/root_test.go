package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func serveCmdWith(t *testing.T, args ...string) (*cobra.Command, *serveFlags) {
	t.Helper()
	f := &serveFlags{}
	cmd := newServeCmdWith(f)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd, f
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "rkllmd "+version {
		t.Fatalf("version output %q", got)
	}
}

func TestServeFlagsRegistered(t *testing.T) {
	cmd := newServeCmd()
	for _, name := range []string{"config", "addr", "backend", "lib", "model", "platform", "lora", "prompt-cache", "hidden-dir", "infer-mode", "log-level", "log-format", "poll-interval-ms", "finish-grace-ms"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag --%s", name)
		}
	}
}

func TestResolveConfig_EchoDefaults(t *testing.T) {
	cmd, f := serveCmdWith(t, "--backend", "echo")
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Engine.Backend != "echo" || cfg.Server.Addr != ":8080" || cfg.Engine.MaxContextLen != 512 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rkllmd.yaml")
	yaml := "server:\n  addr: \":9000\"\nengine:\n  backend: echo\n  max_context_len: 1024\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd, f := serveCmdWith(t, "--config", path, "--max-context-len", "2048", "--cors", "--cors-origins", "http://a, http://b")
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("file addr lost: %q", cfg.Server.Addr)
	}
	if cfg.Engine.MaxContextLen != 2048 {
		t.Fatalf("flag did not override: %d", cfg.Engine.MaxContextLen)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unset flag overrode file: %q", cfg.Log.Level)
	}
	if !cfg.Server.CORSEnabled || len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b" {
		t.Fatalf("cors=%v %v", cfg.Server.CORSEnabled, cfg.Server.CORSOrigins)
	}
}

func TestResolveConfig_AddrFromEnv(t *testing.T) {
	t.Setenv("RKLLMD_ADDR", "127.0.0.1:7777")
	cmd, f := serveCmdWith(t, "--backend", "echo")
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7777" {
		t.Fatalf("addr=%q", cfg.Server.Addr)
	}
}

func TestResolveConfig_InvalidRKLLM(t *testing.T) {
	cmd, f := serveCmdWith(t, "--model", "/nonexistent/model.rkllm")
	if _, err := resolveConfig(cmd, f); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveConfig_BadConfigFile(t *testing.T) {
	cmd, f := serveCmdWith(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := resolveConfig(cmd, f); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load error, got %v", err)
	}
}
