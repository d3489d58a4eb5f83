// Package tools provides the tool catalog of the active agent and the
// command runner.
package tools

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// commandCache maps a tool id to its fetched command list. A cache belongs
// to one tool list; refreshing the tools replaces it wholesale.
type commandCache struct {
	entries map[string][]types.ToolCommand
}

func newCommandCache() *commandCache {
	return &commandCache{entries: make(map[string][]types.ToolCommand)}
}

func (c *commandCache) get(toolID string) ([]types.ToolCommand, bool) {
	cmds, ok := c.entries[toolID]
	return cmds, ok
}

func (c *commandCache) put(toolID string, cmds []types.ToolCommand) {
	if cmds == nil {
		cmds = []types.ToolCommand{}
	}
	c.entries[toolID] = cmds
}

// Catalog holds the tools bound to one agent and lazily fetched command
// lists. Its lifetime is one open of the tool panel.
type Catalog struct {
	gw     gateway.Requester
	logger *zap.Logger
	group  singleflight.Group

	mu              sync.RWMutex
	agentID         string
	tools           []types.Tool
	cache           *commandCache
	expanded        map[string]bool
	loadingTools    bool
	loadingCommands map[string]bool
	generation      uint64
}

// NewCatalog creates an empty catalog.
func NewCatalog(gw gateway.Requester, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		gw:              gw,
		logger:          logger,
		cache:           newCommandCache(),
		expanded:        make(map[string]bool),
		loadingCommands: make(map[string]bool),
	}
}

// ListToolsForAgent always refetches the tools of agentID and resets the
// command cache and expansion state. On failure the list is empty.
func (c *Catalog) ListToolsForAgent(ctx context.Context, agentID string) ([]types.Tool, error) {
	if agentID == "" {
		return nil, &types.ValidationError{Field: "agentId", Reason: "select an agent first"}
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.agentID = agentID
	c.tools = nil
	c.cache = newCommandCache()
	c.expanded = make(map[string]bool)
	c.loadingCommands = make(map[string]bool)
	c.loadingTools = true
	c.mu.Unlock()

	var tools []types.Tool
	err := c.gw.Get(ctx, "/tools", url.Values{"agentId": {agentID}}, &tools)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Warn("discarding stale tool list", zap.String("agent_id", agentID))
		return copyTools(c.tools), nil
	}
	c.loadingTools = false
	if err != nil {
		c.logger.Warn("failed to load tools", zap.String("agent_id", agentID), zap.Error(err))
		return nil, fmt.Errorf("load tools: %w", err)
	}
	c.tools = tools
	return copyTools(tools), nil
}

// ListCommandsForTool returns the commands of toolID, fetching them at most
// once per tool list. Concurrent callers share one request. Failures are
// not cached.
func (c *Catalog) ListCommandsForTool(ctx context.Context, toolID string) ([]types.ToolCommand, error) {
	if toolID == "" {
		return nil, &types.ValidationError{Field: "toolId", Reason: "no tool selected"}
	}

	c.mu.Lock()
	if cmds, ok := c.cache.get(toolID); ok {
		c.mu.Unlock()
		return copyCommands(cmds), nil
	}
	cache, gen := c.cache, c.generation
	c.loadingCommands[toolID] = true
	c.mu.Unlock()

	key := fmt.Sprintf("%d/%s", gen, toolID)
	v, err, shared := c.group.Do(key, func() (any, error) {
		var cmds []types.ToolCommand
		if err := c.gw.Get(ctx, "/tool-commands", url.Values{"toolId": {toolID}}, &cmds); err != nil {
			return nil, err
		}
		return cmds, nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	current := cache == c.cache
	if current {
		delete(c.loadingCommands, toolID)
	}
	if err != nil {
		c.logger.Warn("failed to load tool commands",
			zap.String("tool_id", toolID),
			zap.Bool("shared", shared),
			zap.Error(err))
		return nil, fmt.Errorf("load commands for tool %s: %w", toolID, err)
	}

	cmds := v.([]types.ToolCommand)
	if !current {
		c.logger.Warn("discarding commands fetched for a replaced tool list", zap.String("tool_id", toolID))
		return copyCommands(cmds), nil
	}
	if _, ok := cache.get(toolID); !ok {
		cache.put(toolID, cmds)
	}
	got, _ := cache.get(toolID)
	return copyCommands(got), nil
}

// Toggle flips the expansion of toolID. Expanding a tool whose commands are
// not cached fetches them; collapsing never does.
func (c *Catalog) Toggle(ctx context.Context, toolID string) (bool, []types.ToolCommand, error) {
	c.mu.Lock()
	if _, ok := findTool(c.tools, toolID); !ok {
		c.mu.Unlock()
		return false, nil, &types.ValidationError{Field: "toolId", Reason: fmt.Sprintf("unknown tool %q", toolID)}
	}
	expanded := !c.expanded[toolID]
	c.expanded[toolID] = expanded
	c.mu.Unlock()

	if !expanded {
		return false, nil, nil
	}
	cmds, err := c.ListCommandsForTool(ctx, toolID)
	return true, cmds, err
}

// Reset forgets the agent, the tools and every cached command list.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.agentID = ""
	c.tools = nil
	c.cache = newCommandCache()
	c.expanded = make(map[string]bool)
	c.loadingCommands = make(map[string]bool)
	c.loadingTools = false
}

// Tools returns a copy of the tool list.
func (c *Catalog) Tools() []types.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyTools(c.tools)
}

// Tool looks up a tool by id.
func (c *Catalog) Tool(id string) (types.Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return findTool(c.tools, id)
}

// Command looks up a cached command by id.
func (c *Catalog) Command(id string) (types.ToolCommand, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cmds := range c.cache.entries {
		for _, cmd := range cmds {
			if cmd.ID == id {
				return cmd, true
			}
		}
	}
	return types.ToolCommand{}, false
}

// Cached returns the cached commands of toolID without fetching.
func (c *Catalog) Cached(toolID string) ([]types.ToolCommand, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cmds, ok := c.cache.get(toolID)
	return copyCommands(cmds), ok
}

func (c *Catalog) AgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentID
}

func (c *Catalog) Expanded(toolID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expanded[toolID]
}

func (c *Catalog) LoadingTools() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadingTools
}

func (c *Catalog) LoadingCommands(toolID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadingCommands[toolID]
}

func findTool(tools []types.Tool, id string) (types.Tool, bool) {
	for _, t := range tools {
		if t.ID == id {
			return t, true
		}
	}
	return types.Tool{}, false
}

func copyTools(in []types.Tool) []types.Tool {
	out := make([]types.Tool, len(in))
	copy(out, in)
	return out
}

func copyCommands(in []types.ToolCommand) []types.ToolCommand {
	out := make([]types.ToolCommand, len(in))
	copy(out, in)
	return out
}
