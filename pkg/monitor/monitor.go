// Package monitor polls a model backend for availability. It reports
// Connected with the advertised models, or Disconnected with the reason,
// and never touches conversation state.
package monitor

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/logger"
)

const (
	defaultInterval = 10 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Status is the backend availability.
type Status int

const (
	StatusUnknown Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// State is the result of one probe.
type State struct {
	Status    Status
	Models    []llm.Model
	Error     string
	CheckedAt time.Time
}

// ModelNames returns the names of the advertised models.
func (s State) ModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for _, m := range s.Models {
		names = append(names, m.Name)
	}
	return names
}

func (s State) equivalent(o State) bool {
	return s.Status == o.Status && s.Error == o.Error && slices.Equal(s.ModelNames(), o.ModelNames())
}

// Lister is the backend capability the monitor probes.
type Lister interface {
	ListModels(ctx context.Context) ([]llm.Model, error)
}

// Config configures a Monitor.
type Config struct {
	Backend Lister

	// Interval between probes; defaults to 10s.
	Interval time.Duration

	// Timeout bounds a single probe; defaults to 5s.
	Timeout time.Duration

	Logger *slog.Logger
}

// Monitor periodically probes a backend.
type Monitor struct {
	backend  Lister
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	updates chan State
	last    State
}

// New creates a Monitor. Call Run to start probing.
func New(c *Config) *Monitor {
	interval := c.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Monitor{
		backend:  c.Backend,
		interval: interval,
		timeout:  timeout,
		logger:   logger.OrNop(c.Logger).With("component", "monitor"),
		updates:  make(chan State, 1),
	}
}

// Updates delivers a State whenever availability or the model list
// changes. Only the latest undelivered state is kept.
func (m *Monitor) Updates() <-chan State {
	return m.updates
}

// Check probes the backend once.
func (m *Monitor) Check(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	models, err := m.backend.ListModels(ctx)
	state := State{CheckedAt: time.Now()}
	if err != nil {
		state.Status = StatusDisconnected
		state.Error = err.Error()
	} else {
		state.Status = StatusConnected
		state.Models = models
	}
	return state
}

// Run probes immediately and then every interval until ctx is done.
// Run must not be called concurrently with itself.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.probe(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	state := m.Check(ctx)
	if ctx.Err() != nil {
		return
	}
	if state.equivalent(m.last) {
		return
	}

	if state.Status != m.last.Status {
		m.logger.Info("backend status changed",
			"status", state.Status,
			"models", len(state.Models),
			"error", state.Error,
		)
	}
	m.last = state

	// Replace any state the consumer has not picked up yet.
	select {
	case <-m.updates:
	default:
	}
	m.updates <- state
}
