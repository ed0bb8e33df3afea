package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rkllmd/internal/config"
	"rkllmd/internal/engine"
	"rkllmd/internal/httpapi"
	"rkllmd/internal/logging"
	"rkllmd/internal/manager"
	"rkllmd/internal/registry"
	"rkllmd/pkg/types"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// canceled before Shutdown so streaming handlers stop promptly
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv, mgr, err := newServer(cfg, log, base)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("backend", cfg.Engine.Backend).Msg("rkllmd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = mgr.Close(context.Background())
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	log.Info().Msg("shutting down")
	cancelBase()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	if err := mgr.Close(sctx); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	log.Info().Msg("engine released")
	return nil
}

// newServer opens the engine and returns an http.Server routed to it. The
// caller owns both and must Close the manager after shutting the server down.
func newServer(cfg config.Config, log zerolog.Logger, base context.Context) (*http.Server, *manager.Manager, error) {
	mode, err := engine.ParseInferMode(cfg.Engine.InferMode)
	if err != nil {
		return nil, nil, err
	}
	params := engineParams(cfg.Engine)
	mlog := log.With().Str("component", "manager").Logger()
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		Open: func(cb engine.Callback) (engine.Engine, error) {
			return engine.Open(params, cb)
		},
		PollInterval:  cfg.PollInterval(),
		FinishGrace:   cfg.FinishGrace(),
		PromptPrefix:  cfg.Engine.PromptPrefix,
		PromptPostfix: cfg.Engine.PromptPostfix,
		InferMode:     mode,
		HiddenDir:     cfg.Engine.HiddenDir,
		Backend:       cfg.Engine.Backend,
		ModelPath:     cfg.Engine.ModelPath,
		Models:        modelsFor(cfg.Engine),
		Logger:        &mlog,
		Publisher:     manager.NewLogPublisher(log),
	})
	if err != nil {
		return nil, nil, err
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.Server.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(cfg.Server.InferTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.Server.CORSEnabled, cfg.Server.CORSOrigins, cfg.Server.CORSMethods, cfg.Server.CORSHeaders)
	httpapi.SetBaseContext(base)
	if os.Getenv("RKLLMD_LOG_LEVEL") == "" {
		httpapi.SetDefaultLogLevel(cfg.Log.Level)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return base },
	}
	return srv, mgr, nil
}

func engineParams(e config.EngineConfig) engine.Params {
	p := engine.Params{
		Backend:          e.Backend,
		LibraryPath:      e.LibraryPath,
		ModelPath:        e.ModelPath,
		TargetPlatform:   e.TargetPlatform,
		LoraModelPath:    e.LoraModelPath,
		PromptCachePath:  e.PromptCachePath,
		MaxContextLen:    e.MaxContextLen,
		MaxNewTokens:     e.MaxNewTokens,
		TopK:             e.TopK,
		TopP:             e.TopP,
		Temperature:      e.Temperature,
		RepeatPenalty:    e.RepeatPenalty,
		FrequencyPenalty: e.FrequencyPenalty,
		PresencePenalty:  e.PresencePenalty,
		Mirostat:         e.Mirostat,
		MirostatTau:      e.MirostatTau,
		MirostatEta:      e.MirostatEta,
		SkipSpecialToken: !e.KeepSpecialTokens,
		Threads:          e.Threads,
		EchoChunkBytes:   e.EchoChunkBytes,
		EchoDelay:        time.Duration(e.EchoDelayMS) * time.Millisecond,
	}
	if e.LoraModelPath != "" {
		p.LoraName = engine.DefaultLoraName
	}
	return p
}

// modelsFor lists the files next to the configured model. The echo backend
// has no model file and reports a single synthetic entry.
func modelsFor(e config.EngineConfig) []types.Model {
	if e.Backend == "echo" && e.ModelPath == "" {
		return []types.Model{{ID: "echo", Name: "echo", Backend: "echo", Loaded: true}}
	}
	return registry.ForModel(e.ModelPath, e.Backend)
}
