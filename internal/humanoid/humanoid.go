// internal/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/internal/config"
)

// Humanoid synthesizes human-like pointer, keyboard and scroll input and
// feeds the resulting events to a Dispatcher. One instance models one
// "operator" for the lifetime of a session; its randomized persona is fixed
// at construction.
type Humanoid struct {
	cfg        config.HumanoidConfig
	dispatcher Dispatcher
	logger     *zap.Logger

	mu         sync.Mutex
	currentPos Vector2D
	rng        *rand.Rand
	noiseX     *perlin.Perlin
	noiseY     *perlin.Perlin
}

// Option customizes a Humanoid at construction.
type Option func(*Humanoid)

// WithRand fixes the random source; tests use this for determinism.
func WithRand(rng *rand.Rand) Option {
	return func(h *Humanoid) { h.rng = rng }
}

// WithStartPosition sets the initial pointer position.
func WithStartPosition(pos Vector2D) Option {
	return func(h *Humanoid) { h.currentPos = pos }
}

// New creates a Humanoid bound to the given dispatcher.
func New(cfg config.HumanoidConfig, dispatcher Dispatcher, logger *zap.Logger, opts ...Option) *Humanoid {
	seed := time.Now().UnixNano()
	h := &Humanoid{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger.Named("humanoid"),
		rng:        rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(h)
	}
	// Standard Perlin parameters; offset seed keeps X and Y drift independent.
	const alpha, beta = 2.0, 2.0
	h.noiseX = perlin.NewPerlin(alpha, beta, 3, seed)
	h.noiseY = perlin.NewPerlin(alpha, beta, 3, seed+1)
	return h
}

// Position returns the current pointer position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// randDurationMs draws a normally-distributed duration, floored at min.
func (h *Humanoid) randDurationMs(mean, stdDev, min float64) time.Duration {
	h.mu.Lock()
	n := h.rng.NormFloat64()
	h.mu.Unlock()
	ms := mean + n*stdDev
	if ms < min {
		ms = min
	}
	return time.Duration(ms) * time.Millisecond
}

var _ Controller = (*Humanoid)(nil)
