package gateway

import (
	"context"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/types"
	"go.uber.org/zap"
)

// Pinger is satisfied by *Client.
type Pinger interface {
	Ping(ctx context.Context, path string) error
}

// HealthPoller checks the backend on a fixed interval and reports status changes.
type HealthPoller struct {
	pinger   Pinger
	path     string
	interval time.Duration
	timeout  time.Duration
	onChange func(types.HealthStatus, error)
	logger   *zap.Logger
}

// HealthConfig configures a HealthPoller.
type HealthConfig struct {
	Path     string
	Interval time.Duration
	OnChange func(types.HealthStatus, error)
	Logger   *zap.Logger
}

// NewHealthPoller creates a poller. A zero interval defaults to 30s.
func NewHealthPoller(p Pinger, cfg HealthConfig) *HealthPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = "/health"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func(types.HealthStatus, error) {}
	}
	timeout := cfg.Interval / 2
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &HealthPoller{
		pinger:   p,
		path:     cfg.Path,
		interval: cfg.Interval,
		timeout:  timeout,
		onChange: cfg.OnChange,
		logger:   cfg.Logger,
	}
}

// Check runs a single health check.
func (h *HealthPoller) Check(ctx context.Context) (types.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.pinger.Ping(ctx, h.path); err != nil {
		return types.HealthDown, err
	}
	return types.HealthUp, nil
}

// Run checks immediately and then on every tick until ctx is done.
func (h *HealthPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	last := types.HealthUnknown
	check := func() {
		status, err := h.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		if status != last {
			h.logger.Info("backend health changed",
				zap.Stringer("from", last),
				zap.Stringer("to", status),
				zap.Error(err))
			last = status
			h.onChange(status, err)
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
