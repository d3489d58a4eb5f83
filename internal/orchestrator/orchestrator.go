// Package orchestrator wires the agent directory, conversation store,
// timeline, attachment buffer and tool pipeline together and enforces the
// selection cascade between them.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/ashutoshrp06/agentdesk/internal/agents"
	"github.com/ashutoshrp06/agentdesk/internal/attachments"
	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/ashutoshrp06/agentdesk/internal/conversation"
	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/timeline"
	"github.com/ashutoshrp06/agentdesk/internal/tools"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Desk is one operator session against the backend.
type Desk struct {
	cfg    *config.Config
	gw     gateway.Requester
	logger *zap.Logger

	agents        *agents.Directory
	conversations *conversation.Store
	timeline      *timeline.Timeline
	attachments   *attachments.Buffer
	catalog       *tools.Catalog
	runner        *tools.Runner
}

// Config holds desk configuration.
type Config struct {
	AppConfig *config.Config
	// Gateway overrides the client built from AppConfig.Gateway.
	Gateway gateway.Requester
	Logger  *zap.Logger
}

// New creates a desk with all components initialized.
func New(cfg Config) (*Desk, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AppConfig == nil {
		cfg.AppConfig = config.DefaultConfig()
	}
	if err := cfg.AppConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	gw := cfg.Gateway
	if gw == nil {
		gw = NewGateway(cfg.AppConfig, cfg.Logger)
	}
	logger := cfg.Logger

	return &Desk{
		cfg:           cfg.AppConfig,
		gw:            gw,
		logger:        logger,
		agents:        agents.New(gw, logger.Named("agents")),
		conversations: conversation.New(gw, logger.Named("conversations")),
		timeline:      timeline.New(gw, timeline.Config{Logger: logger.Named("timeline")}),
		attachments: attachments.New(attachments.Config{
			MaxTextBytes: cfg.AppConfig.Attachments.MaxTextBytes,
			Logger:       logger.Named("attachments"),
		}),
		catalog: tools.NewCatalog(gw, logger.Named("tools")),
		runner: tools.NewRunner(gw, tools.RunnerConfig{
			Logger:                     logger.Named("runner"),
			RequireExecuteConfirmation: cfg.AppConfig.Tools.RequireExecuteConfirmation,
		}),
	}, nil
}

// NewGateway builds the backend client from configuration.
func NewGateway(cfg *config.Config, logger *zap.Logger) *gateway.Client {
	return gateway.New(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		Token:          cfg.Gateway.Token,
		UserID:         cfg.Gateway.UserID,
		IdentityHeader: cfg.Gateway.IdentityHeader,
		Timeout:        cfg.Timeout(),
		Logger:         logger.Named("gateway"),
	})
}

// Snapshot is the selection an asynchronous operation was started under.
type Snapshot struct {
	AgentID        string
	ConversationID string
}

// Snapshot returns the current selection.
func (d *Desk) Snapshot() Snapshot {
	return Snapshot{
		AgentID:        d.agents.SelectedID(),
		ConversationID: d.conversations.SelectedID(),
	}
}

// Current reports whether s still matches the selection.
func (d *Desk) Current(s Snapshot) bool {
	return d.Snapshot() == s
}

// Start loads agents, then the conversations of the selected agent, then
// the timeline of the first conversation. Failures of the later steps are
// logged and leave the affected list empty.
func (d *Desk) Start(ctx context.Context) error {
	if _, err := d.agents.Load(ctx); err != nil {
		return err
	}
	agentID := d.agents.SelectedID()
	if agentID == "" {
		d.logger.Info("no active agent to select")
		return nil
	}

	convs, err := d.conversations.Load(ctx, agentID)
	if err != nil {
		d.logger.Warn("starting without conversations", zap.Error(err))
		return nil
	}
	if len(convs) == 0 || d.conversations.SelectedID() != "" {
		return nil
	}
	if _, err := d.SelectConversation(ctx, convs[0].ID); err != nil {
		d.logger.Warn("failed to open first conversation",
			zap.String("conversation_id", convs[0].ID),
			zap.Error(err))
	}
	return nil
}

// ReloadAgents refetches the agent list. A failure drops the selection, so
// everything downstream of it is reset as well.
func (d *Desk) ReloadAgents(ctx context.Context) ([]types.Agent, error) {
	before := d.agents.SelectedID()
	agents, err := d.agents.Load(ctx)
	if err != nil && before != "" {
		d.resetDownstream()
	}
	return agents, err
}

func (d *Desk) resetDownstream() {
	d.conversations.Reset()
	d.timeline.Reset()
	d.attachments.Clear()
	d.catalog.Reset()
}

// SelectAgent switches the active agent. A change resets everything
// downstream and loads the new agent's conversations.
func (d *Desk) SelectAgent(ctx context.Context, id string) ([]types.Conversation, error) {
	changed, err := d.agents.Select(id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return d.conversations.Conversations(), nil
	}

	d.resetDownstream()
	d.logger.Info("agent selected", zap.String("agent_id", id))

	return d.conversations.Load(ctx, id)
}

// ReloadConversations refetches the conversations of the active agent.
func (d *Desk) ReloadConversations(ctx context.Context) ([]types.Conversation, error) {
	return d.conversations.Load(ctx, d.agents.SelectedID())
}

// SelectConversation opens a conversation. Switching clears the attachment
// queue.
func (d *Desk) SelectConversation(ctx context.Context, id string) ([]types.Message, error) {
	changed, err := d.conversations.Select(id)
	if err != nil {
		return nil, err
	}
	if changed {
		d.attachments.Clear()
	}
	return d.timeline.Load(ctx, id, d.agents.SelectedID())
}

// ReloadTimeline refetches the open conversation.
func (d *Desk) ReloadTimeline(ctx context.Context) ([]types.Message, error) {
	snap := d.Snapshot()
	return d.timeline.Load(ctx, snap.ConversationID, snap.AgentID)
}

// CreateConversation creates a conversation for the active agent and opens
// it with an empty timeline.
func (d *Desk) CreateConversation(ctx context.Context, title string) (types.Conversation, error) {
	agentID := d.agents.SelectedID()
	if agentID == "" {
		return types.Conversation{}, &types.ValidationError{Field: "agentId", Reason: "select an agent first"}
	}

	conv, err := d.conversations.Create(ctx, agentID, title)
	if err != nil {
		return types.Conversation{}, err
	}
	if d.agents.SelectedID() != agentID {
		d.logger.Warn("agent changed while creating conversation",
			zap.String("agent_id", agentID),
			zap.String("conversation_id", conv.ID))
		return conv, nil
	}

	d.timeline.Open(conv.ID, agentID)
	d.attachments.Clear()
	return conv, nil
}

// BeginSend appends the optimistic message for content plus the queued
// attachments. The attachment queue is cleared once the send is started.
func (d *Desk) BeginSend(content string) (*timeline.Pending, error) {
	p, err := d.timeline.Begin(content, d.attachments.Files())
	if err != nil {
		return nil, err
	}
	d.attachments.Clear()
	return p, nil
}

// Send runs BeginSend and dispatches the message.
func (d *Desk) Send(ctx context.Context, content string) (timeline.Result, error) {
	p, err := d.BeginSend(content)
	if err != nil {
		return timeline.Result{State: d.timeline.State()}, err
	}
	return p.Dispatch(ctx)
}

// OpenToolPanel refetches the tools of the active agent, dropping any
// cached command lists.
func (d *Desk) OpenToolPanel(ctx context.Context) ([]types.Tool, error) {
	return d.catalog.ListToolsForAgent(ctx, d.agents.SelectedID())
}

// ToggleTool expands or collapses a tool in the panel.
func (d *Desk) ToggleTool(ctx context.Context, toolID string) (bool, []types.ToolCommand, error) {
	return d.catalog.Toggle(ctx, toolID)
}

// LoadCommands fetches the command lists of several tools concurrently.
// Each list is cached; the first error is returned after all fetches end.
func (d *Desk) LoadCommands(ctx context.Context, toolIDs ...string) (map[string][]types.ToolCommand, error) {
	lists := make([][]types.ToolCommand, len(toolIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range toolIDs {
		g.Go(func() error {
			cmds, err := d.catalog.ListCommandsForTool(gctx, id)
			if err != nil {
				return err
			}
			lists[i] = cmds
			return nil
		})
	}
	err := g.Wait()

	out := make(map[string][]types.ToolCommand, len(toolIDs))
	for i, id := range toolIDs {
		if lists[i] != nil {
			out[id] = lists[i]
		}
	}
	return out, err
}

// RunOutcome is a finished tool run ready for the composition surface.
type RunOutcome struct {
	Result types.ExecutionResult
	// Text is the formatted result for the operator to review before sending.
	Text string
	// Stale reports that the agent changed while the run was in flight.
	Stale bool
}

// RunRequest names a command by id; it is resolved from the catalog.
type RunRequest struct {
	CommandID string
	Mode      types.RunMode
	Type      types.CommandType
	Params    string
	Confirmed bool
}

// RunCommand runs a cached command against the active agent. Validation
// failures are returned as errors; backend failures produce an outcome
// whose Text describes the error. The timeline is never touched.
func (d *Desk) RunCommand(ctx context.Context, req RunRequest) (RunOutcome, error) {
	cmd, ok := d.catalog.Command(req.CommandID)
	if !ok {
		return RunOutcome{}, &types.ValidationError{
			Field:  "command",
			Reason: fmt.Sprintf("unknown command %q: expand its tool first", req.CommandID),
		}
	}
	return d.Run(ctx, tools.RunRequest{
		Command:   cmd,
		Mode:      req.Mode,
		AgentID:   d.agents.SelectedID(),
		Type:      req.Type,
		Params:    req.Params,
		Confirmed: req.Confirmed,
	})
}

// Run invokes a fully specified command.
func (d *Desk) Run(ctx context.Context, req tools.RunRequest) (RunOutcome, error) {
	agentID := d.agents.SelectedID()
	res, err := d.runner.Run(ctx, req)
	if err != nil && types.IsValidation(err) {
		return RunOutcome{}, err
	}

	out := RunOutcome{
		Result: res,
		Text:   tools.FormatResult(req.Command, req.Mode, res),
		Stale:  d.agents.SelectedID() != agentID,
	}
	if out.Stale {
		d.logger.Warn("agent changed during tool run",
			zap.String("command_id", req.Command.ID),
			zap.String("agent_id", agentID))
	}
	return out, nil
}

// Attach queues a file for the next message.
func (d *Desk) Attach(path string) (types.UploadedFile, error) {
	if d.conversations.SelectedID() == "" {
		return types.UploadedFile{}, &types.ValidationError{Field: "conversationId", Reason: "select a conversation first"}
	}
	return d.attachments.AddFile(path)
}

// Detach removes a queued file.
func (d *Desk) Detach(id string) bool {
	return d.attachments.Remove(id)
}

func (d *Desk) Agents() []types.Agent { return d.agents.Agents() }
func (d *Desk) Conversations() []types.Conversation { return d.conversations.Conversations() }
func (d *Desk) Messages() []types.Message { return d.timeline.Messages() }
func (d *Desk) Attachments() []types.UploadedFile { return d.attachments.Files() }
func (d *Desk) Tools() []types.Tool { return d.catalog.Tools() }
func (d *Desk) SendState() types.SendState { return d.timeline.State() }
func (d *Desk) Sending() bool { return d.timeline.Sending() }

// CachedCommands returns a tool's commands if they have been fetched.
func (d *Desk) CachedCommands(toolID string) ([]types.ToolCommand, bool) {
	return d.catalog.Cached(toolID)
}

// ToolExpanded reports whether a tool's command list is expanded.
func (d *Desk) ToolExpanded(toolID string) bool {
	return d.catalog.Expanded(toolID)
}

// SelectedAgent returns the active agent.
func (d *Desk) SelectedAgent() (types.Agent, bool) {
	return d.agents.Selected()
}

// SelectedConversation returns the open conversation.
func (d *Desk) SelectedConversation() (types.Conversation, bool) {
	return d.conversations.Selected()
}

// Config returns the application configuration.
func (d *Desk) Config() *config.Config {
	return d.cfg
}

// BaseURL describes the backend for display.
func (d *Desk) BaseURL() string {
	return d.cfg.Gateway.BaseURL
}

// Ping checks the backend health endpoint.
func (d *Desk) Ping(ctx context.Context) error {
	p, ok := d.gw.(gateway.Pinger)
	if !ok {
		return fmt.Errorf("gateway does not support health checks")
	}
	return p.Ping(ctx, d.cfg.Gateway.HealthPath)
}
