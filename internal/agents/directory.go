// Package agents loads the available agents and tracks the selected one.
package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"go.uber.org/zap"
)

// Directory owns the agent list and the selection pointer.
type Directory struct {
	gw     gateway.Requester
	logger *zap.Logger

	mu         sync.RWMutex
	agents     []types.Agent
	selectedID string
}

// New creates an empty directory.
func New(gw gateway.Requester, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{gw: gw, logger: logger}
}

// Load fetches agents. If nothing is selected it selects the first active
// agent; an existing selection is never overridden. On failure the list is
// emptied, the selection is cleared with it and the error is returned.
func (d *Directory) Load(ctx context.Context) ([]types.Agent, error) {
	var agents []types.Agent
	if err := d.gw.Get(ctx, "/agents", nil, &agents); err != nil {
		d.mu.Lock()
		d.logger.Warn("failed to load agents",
			zap.String("dropped_selection", d.selectedID),
			zap.Error(err))
		d.agents = nil
		d.selectedID = ""
		d.mu.Unlock()
		return nil, fmt.Errorf("load agents: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.agents = agents
	if d.selectedID == "" {
		for _, a := range agents {
			if a.IsActive {
				d.selectedID = a.ID
				d.logger.Info("auto-selected agent",
					zap.String("agent_id", a.ID),
					zap.String("name", a.Name))
				break
			}
		}
	}

	return copyAgents(agents), nil
}

// Select makes id the active agent. It reports whether the selection changed.
func (d *Directory) Select(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := find(d.agents, id); !ok {
		return false, &types.ValidationError{Field: "agentId", Reason: fmt.Sprintf("unknown agent %q", id)}
	}
	if d.selectedID == id {
		return false, nil
	}
	d.selectedID = id
	return true, nil
}

// Selected returns the active agent.
func (d *Directory) Selected() (types.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return find(d.agents, d.selectedID)
}

// SelectedID returns the active agent id, or "".
func (d *Directory) SelectedID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectedID
}

// Agents returns a copy of the loaded list.
func (d *Directory) Agents() []types.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyAgents(d.agents)
}

func find(agents []types.Agent, id string) (types.Agent, bool) {
	if id == "" {
		return types.Agent{}, false
	}
	for _, a := range agents {
		if a.ID == id {
			return a, true
		}
	}
	return types.Agent{}, false
}

func copyAgents(in []types.Agent) []types.Agent {
	out := make([]types.Agent, len(in))
	copy(out, in)
	return out
}
