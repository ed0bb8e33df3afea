package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rkllmd/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rkllmd",
		Short:         "HTTP chat server for a single RKLLM engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "rkllmd", version)
		},
	}
}

// serveFlags mirrors the config file keys that are commonly overridden.
type serveFlags struct {
	configPath string

	addr         string
	maxBodyBytes int64
	inferTimeout int64
	cors         bool
	corsOrigins  string

	backend        string
	libraryPath    string
	modelPath      string
	platform       string
	loraPath       string
	promptCache    string
	hiddenDir      string
	inferMode      string
	maxContextLen  int
	maxNewTokens   int
	rawPrompt      bool
	echoChunkBytes int
	echoDelayMS    int

	pollIntervalMS int
	finishGraceMS  int

	logLevel  string
	logFormat string
}

func newServeCmd() *cobra.Command { return newServeCmdWith(&serveFlags{}) }

func newServeCmdWith(f *serveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Initialize the engine and serve the chat API",
		Example: "  rkllmd serve --lib /usr/lib/librkllmrt.so --model ./qwen.rkllm --platform rk3588\n" +
			"  rkllmd serve --config rkllmd.yaml\n" +
			"  rkllmd serve --backend echo --addr :8080",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml)")

	fl.StringVar(&f.addr, "addr", os.Getenv("RKLLMD_ADDR"), "HTTP listen address, e.g. :8080 (defaults RKLLMD_ADDR or :8080)")
	fl.Int64Var(&f.maxBodyBytes, "max-body-bytes", 0, "Maximum chat request body size in bytes (0 = 1 MiB)")
	fl.Int64Var(&f.inferTimeout, "infer-timeout", 0, "Per-request inference timeout in seconds (0 = none)")
	fl.BoolVar(&f.cors, "cors", false, "Enable CORS")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins")

	fl.StringVar(&f.backend, "backend", "", "Engine backend: rkllm|llama|echo (default rkllm)")
	fl.StringVar(&f.libraryPath, "lib", "", "Path to librkllmrt.so")
	fl.StringVar(&f.modelPath, "model", "", "Path to the model file")
	fl.StringVar(&f.platform, "platform", "", "Target platform: rk3588|rk3576 (default rk3588)")
	fl.StringVar(&f.loraPath, "lora", "", "Optional LoRA adapter model path")
	fl.StringVar(&f.promptCache, "prompt-cache", "", "Optional prompt cache file to load at init")
	fl.StringVar(&f.hiddenDir, "hidden-dir", "", "Directory for last_hidden_layer_<id>.bin files")
	fl.StringVar(&f.inferMode, "infer-mode", "", "Inference mode: generate|hidden_layer")
	fl.IntVar(&f.maxContextLen, "max-context-len", 0, "Maximum context length (default 512)")
	fl.IntVar(&f.maxNewTokens, "max-new-tokens", 0, "Maximum new tokens (-1 = unlimited)")
	fl.BoolVar(&f.rawPrompt, "raw-prompt", false, "Send message content without the prompt template")
	fl.IntVar(&f.echoChunkBytes, "echo-chunk-bytes", 0, "echo backend: bytes per callback")
	fl.IntVar(&f.echoDelayMS, "echo-delay-ms", 0, "echo backend: delay between callbacks in ms")

	fl.IntVar(&f.pollIntervalMS, "poll-interval-ms", 0, "Stream poll interval in ms (default 5)")
	fl.IntVar(&f.finishGraceMS, "finish-grace-ms", 0, "Wait for a terminal engine state after run returns, in ms (default 1000)")

	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error (default info)")
	fl.StringVar(&f.logFormat, "log-format", "", "Log format: console|json (default console)")
	return cmd
}

// resolveConfig loads the optional config file, applies explicitly set flags
// on top, fills defaults and validates the result.
func resolveConfig(cmd *cobra.Command, f *serveFlags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	applyFlags(cmd, f, &cfg)
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, f *serveFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	s, e := &cfg.Server, &cfg.Engine

	// env-provided default applies only when neither flag nor file set it
	if changed("addr") || (s.Addr == "" && f.addr != "") {
		s.Addr = f.addr
	}
	if changed("max-body-bytes") {
		s.MaxBodyBytes = f.maxBodyBytes
	}
	if changed("infer-timeout") {
		s.InferTimeoutSeconds = f.inferTimeout
	}
	if changed("cors") {
		s.CORSEnabled = f.cors
	}
	if changed("cors-origins") {
		s.CORSOrigins = splitCSV(f.corsOrigins)
	}

	if changed("backend") {
		e.Backend = f.backend
	}
	if changed("lib") {
		e.LibraryPath = f.libraryPath
	}
	if changed("model") {
		e.ModelPath = f.modelPath
	}
	if changed("platform") {
		e.TargetPlatform = f.platform
	}
	if changed("lora") {
		e.LoraModelPath = f.loraPath
	}
	if changed("prompt-cache") {
		e.PromptCachePath = f.promptCache
	}
	if changed("hidden-dir") {
		e.HiddenDir = f.hiddenDir
	}
	if changed("infer-mode") {
		e.InferMode = f.inferMode
	}
	if changed("max-context-len") {
		e.MaxContextLen = f.maxContextLen
	}
	if changed("max-new-tokens") {
		e.MaxNewTokens = f.maxNewTokens
	}
	if changed("raw-prompt") {
		e.RawPrompt = f.rawPrompt
	}
	if changed("echo-chunk-bytes") {
		e.EchoChunkBytes = f.echoChunkBytes
	}
	if changed("echo-delay-ms") {
		e.EchoDelayMS = f.echoDelayMS
	}

	if changed("poll-interval-ms") {
		cfg.Stream.PollIntervalMS = f.pollIntervalMS
	}
	if changed("finish-grace-ms") {
		cfg.Stream.FinishGraceMS = f.finishGraceMS
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
