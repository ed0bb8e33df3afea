package manager

import (
	"time"

	"github.com/rs/zerolog"

	"rkllmd/internal/engine"
	"rkllmd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultPollInterval = 5 * time.Millisecond
	defaultFinishGrace  = time.Second
)

// OpenFunc creates the engine and registers cb as its only callback.
type OpenFunc func(cb engine.Callback) (engine.Engine, error)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Open OpenFunc
	// PollInterval is how often a request context is drained.
	PollInterval time.Duration
	// FinishGrace bounds the wait for a terminal state after Run returned.
	FinishGrace   time.Duration
	PromptPrefix  string
	PromptPostfix string
	InferMode     engine.InferMode
	HiddenDir     string
	// Informational, reported by Status and ListModels.
	Backend   string
	ModelPath string
	Models    []types.Model
	Logger    *zerolog.Logger
	Publisher EventPublisher
}
