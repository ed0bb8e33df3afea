package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"rkllmd/internal/common/fsutil"
)

// Defaults applied by (*Config).Defaults when a field is unset.
const (
	DefaultAddr           = ":8080"
	DefaultBackend        = "rkllm"
	DefaultTargetPlatform = "rk3588"
	DefaultPollInterval   = 5 * time.Millisecond
	DefaultFinishGrace    = time.Second
	DefaultMaxContextLen  = 512
	DefaultPromptPrefix   = "<|im_start|>system You are a helpful assistant. <|im_end|> <|im_start|>user"
	DefaultPromptPostfix  = "<|im_end|><|im_start|>assistant"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`
	Engine EngineConfig `json:"engine" yaml:"engine" toml:"engine"`
	Stream StreamConfig `json:"stream" yaml:"stream" toml:"stream"`
	Log    LogConfig    `json:"log" yaml:"log" toml:"log"`
}

type ServerConfig struct {
	Addr                string   `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes        int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int64    `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`
	CORSEnabled         bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods         []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders         []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`
}

// EngineConfig selects and parameterizes the native engine.
type EngineConfig struct {
	// Backend is one of rkllm, llama, echo.
	Backend         string `json:"backend" yaml:"backend" toml:"backend"`
	LibraryPath     string `json:"library_path" yaml:"library_path" toml:"library_path"`
	ModelPath       string `json:"model_path" yaml:"model_path" toml:"model_path"`
	TargetPlatform  string `json:"target_platform" yaml:"target_platform" toml:"target_platform"`
	LoraModelPath   string `json:"lora_model_path" yaml:"lora_model_path" toml:"lora_model_path"`
	PromptCachePath string `json:"prompt_cache_path" yaml:"prompt_cache_path" toml:"prompt_cache_path"`
	// HiddenDir receives last_hidden_layer_<id>.bin files. Defaults to the working directory.
	HiddenDir string `json:"hidden_dir" yaml:"hidden_dir" toml:"hidden_dir"`
	// InferMode is generate or hidden_layer.
	InferMode string `json:"infer_mode" yaml:"infer_mode" toml:"infer_mode"`

	MaxContextLen     int     `json:"max_context_len" yaml:"max_context_len" toml:"max_context_len"`
	MaxNewTokens      int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	TopK              int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP              float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	Temperature       float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	RepeatPenalty     float32 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	FrequencyPenalty  float32 `json:"frequency_penalty" yaml:"frequency_penalty" toml:"frequency_penalty"`
	PresencePenalty   float32 `json:"presence_penalty" yaml:"presence_penalty" toml:"presence_penalty"`
	Mirostat          int     `json:"mirostat" yaml:"mirostat" toml:"mirostat"`
	MirostatTau       float32 `json:"mirostat_tau" yaml:"mirostat_tau" toml:"mirostat_tau"`
	MirostatEta       float32 `json:"mirostat_eta" yaml:"mirostat_eta" toml:"mirostat_eta"`
	KeepSpecialTokens bool    `json:"keep_special_tokens" yaml:"keep_special_tokens" toml:"keep_special_tokens"`
	Threads           int     `json:"threads" yaml:"threads" toml:"threads"`

	// Prompt template wrapped around each message content.
	PromptPrefix  string `json:"prompt_prefix" yaml:"prompt_prefix" toml:"prompt_prefix"`
	PromptPostfix string `json:"prompt_postfix" yaml:"prompt_postfix" toml:"prompt_postfix"`
	RawPrompt     bool   `json:"raw_prompt" yaml:"raw_prompt" toml:"raw_prompt"`

	// echo backend only
	EchoChunkBytes int `json:"echo_chunk_bytes" yaml:"echo_chunk_bytes" toml:"echo_chunk_bytes"`
	EchoDelayMS    int `json:"echo_delay_ms" yaml:"echo_delay_ms" toml:"echo_delay_ms"`
}

// StreamConfig tunes the poll-and-translate loop.
type StreamConfig struct {
	PollIntervalMS int `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	FinishGraceMS  int `json:"finish_grace_ms" yaml:"finish_grace_ms" toml:"finish_grace_ms"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Defaults fills unset fields. Prompt template defaults are skipped when RawPrompt is set.
func (c *Config) Defaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	e := &c.Engine
	if e.Backend == "" {
		e.Backend = DefaultBackend
	}
	if e.TargetPlatform == "" {
		e.TargetPlatform = DefaultTargetPlatform
	}
	if e.InferMode == "" {
		e.InferMode = "generate"
	}
	if e.MaxContextLen <= 0 {
		e.MaxContextLen = DefaultMaxContextLen
	}
	if e.MaxNewTokens == 0 {
		e.MaxNewTokens = -1
	}
	if e.TopK <= 0 {
		e.TopK = 1
	}
	if e.TopP <= 0 {
		e.TopP = 0.9
	}
	if e.Temperature <= 0 {
		e.Temperature = 0.8
	}
	if e.RepeatPenalty <= 0 {
		e.RepeatPenalty = 1.1
	}
	if e.MirostatTau <= 0 {
		e.MirostatTau = 5.0
	}
	if e.MirostatEta <= 0 {
		e.MirostatEta = 0.1
	}
	if !e.RawPrompt {
		if e.PromptPrefix == "" {
			e.PromptPrefix = DefaultPromptPrefix
		}
		if e.PromptPostfix == "" {
			e.PromptPostfix = DefaultPromptPostfix
		}
	}
	if c.Stream.PollIntervalMS <= 0 {
		c.Stream.PollIntervalMS = int(DefaultPollInterval / time.Millisecond)
	}
	if c.Stream.FinishGraceMS <= 0 {
		c.Stream.FinishGraceMS = int(DefaultFinishGrace / time.Millisecond)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// PollInterval returns the stream poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Stream.PollIntervalMS) * time.Millisecond
}

// FinishGrace returns how long to wait for a terminal engine state after the run returned.
func (c Config) FinishGrace() time.Duration {
	return time.Duration(c.Stream.FinishGraceMS) * time.Millisecond
}

// Validate checks the engine section against the filesystem. Call after Defaults.
func (c Config) Validate() error {
	var errs []error
	e := c.Engine
	switch e.Backend {
	case "rkllm":
		if e.LibraryPath == "" || !fsutil.IsRegularFile(e.LibraryPath) {
			errs = append(errs, fmt.Errorf("library path %q: provide the absolute path of librkllmrt.so", e.LibraryPath))
		}
		if e.TargetPlatform != "rk3588" && e.TargetPlatform != "rk3576" {
			errs = append(errs, fmt.Errorf("target platform %q: expected rk3588 or rk3576", e.TargetPlatform))
		}
		fallthrough
	case "llama":
		if e.ModelPath == "" || !fsutil.IsRegularFile(e.ModelPath) {
			errs = append(errs, fmt.Errorf("model path %q: provide the absolute path of the model file", e.ModelPath))
		}
	case "echo":
	default:
		errs = append(errs, fmt.Errorf("unknown engine backend %q (rkllm|llama|echo)", e.Backend))
	}
	if e.LoraModelPath != "" && !fsutil.PathExists(e.LoraModelPath) {
		errs = append(errs, fmt.Errorf("lora model path %q does not exist", e.LoraModelPath))
	}
	if e.PromptCachePath != "" && !fsutil.PathExists(e.PromptCachePath) {
		errs = append(errs, fmt.Errorf("prompt cache path %q does not exist", e.PromptCachePath))
	}
	if e.HiddenDir != "" && !fsutil.PathExists(e.HiddenDir) {
		errs = append(errs, fmt.Errorf("hidden dir %q does not exist", e.HiddenDir))
	}
	if e.InferMode != "generate" && e.InferMode != "hidden_layer" {
		errs = append(errs, fmt.Errorf("infer mode %q: expected generate or hidden_layer", e.InferMode))
	}
	return errors.Join(errs...)
}
