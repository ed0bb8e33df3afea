package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rkllmd/internal/bridge"
	"rkllmd/internal/engine"
	"rkllmd/internal/reqctx"
	"rkllmd/pkg/types"
)

type Manager struct {
	mu        sync.RWMutex
	publisher EventPublisher
	active    string

	log    zerolog.Logger
	eng    engine.Engine
	store  *reqctx.Store
	bridge *bridge.Bridge
	gate   *gate
	life   *lifecycle

	pollInterval  time.Duration
	finishGrace   time.Duration
	promptPrefix  string
	promptPostfix string
	inferMode     engine.InferMode
	backend       string
	modelPath     string
	registry      []types.Model

	closed    atomic.Bool
	startTime time.Time

	requestsTotal  atomic.Uint64
	rejectedTotal  atomic.Uint64
	runErrorsTotal atomic.Uint64
}

// NewWithConfig wires the request store, callback bridge and admission gate,
// then opens the engine with the bridge callback. Open failures are returned
// wrapped; the caller should treat them as fatal.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	if cfg.Open == nil {
		return nil, fmt.Errorf("manager: no engine opener configured")
	}
	m := &Manager{
		publisher:     noopPublisher{},
		log:           zerolog.Nop(),
		store:         reqctx.NewStore(),
		gate:          newGate(),
		pollInterval:  cfg.PollInterval,
		finishGrace:   cfg.FinishGrace,
		promptPrefix:  cfg.PromptPrefix,
		promptPostfix: cfg.PromptPostfix,
		inferMode:     cfg.InferMode,
		backend:       cfg.Backend,
		modelPath:     cfg.ModelPath,
		registry:      cfg.Models,
		startTime:     time.Now(),
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	}
	if m.pollInterval <= 0 {
		m.pollInterval = defaultPollInterval
	}
	if m.finishGrace <= 0 {
		m.finishGrace = defaultFinishGrace
	}
	hiddenDir := cfg.HiddenDir
	if hiddenDir == "" {
		hiddenDir = "."
	}
	m.life = newLifecycle(m.store)
	m.bridge = bridge.New(m.store, bridge.WithLogger(m.log.With().Str("component", "bridge").Logger()), bridge.WithHiddenDir(hiddenDir))

	eng, err := cfg.Open(m.bridge.Callback)
	if err != nil {
		return nil, fmt.Errorf("open %s engine: %w", cfg.Backend, err)
	}
	m.eng = eng
	m.log.Info().Str("backend", cfg.Backend).Str("model", cfg.ModelPath).Msg("engine initialized")
	return m, nil
}

// SetEventPublisher replaces the event sink. nil restores the no-op publisher.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher = p
}

// Ready reports whether the engine is open and accepting requests.
func (m *Manager) Ready() bool { return !m.closed.Load() && m.eng != nil }

// Busy reports whether a request currently holds the engine.
func (m *Manager) Busy() bool { return m.gate.Busy() }

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

func (m *Manager) setActive(id string) {
	m.mu.Lock()
	m.active = id
	m.mu.Unlock()
}

// Close stops admitting requests, waits for the in-flight request to release
// the engine (bounded by ctx) and destroys the engine. Safe to call twice.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := m.gate.Wait(ctx); err != nil {
		m.log.Warn().Err(err).Msg("closing engine while a request is still running")
	} else {
		defer m.gate.Release()
	}
	if err := m.eng.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	m.log.Info().Msg("engine released")
	return nil
}
