package ui

import (
	"context"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/ashutoshrp06/agentdesk/internal/orchestrator"
	"github.com/ashutoshrp06/agentdesk/internal/timeline"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

// requestTimeout bounds every command issued from the UI.
const requestTimeout = 120 * time.Second

// HealthMsg reports a backend health change. Send it with tea.Program.Send.
type HealthMsg struct {
	Status types.HealthStatus
	Err    error
}

// PrefsMsg replaces the presentation preferences, e.g. after the config
// file changed.
type PrefsMsg struct {
	UI config.UIConfig
}

type startedMsg struct{ err error }

type agentSelectedMsg struct {
	snap  orchestrator.Snapshot
	convs []types.Conversation
	err   error
}

type conversationsLoadedMsg struct {
	snap  orchestrator.Snapshot
	convs []types.Conversation
	err   error
}

type conversationOpenedMsg struct {
	snap orchestrator.Snapshot
	err  error
}

type conversationCreatedMsg struct {
	conv types.Conversation
	err  error
}

type sentMsg struct {
	res timeline.Result
	err error
}

type toolsLoadedMsg struct {
	snap  orchestrator.Snapshot
	tools []types.Tool
	err   error
}

type toolToggledMsg struct {
	snap     orchestrator.Snapshot
	toolID   string
	expanded bool
	cmds     []types.ToolCommand
	err      error
}

type runFinishedMsg struct {
	snap      orchestrator.Snapshot
	commandID string
	mode      types.RunMode
	out       orchestrator.RunOutcome
	err       error
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func startCmd(d *orchestrator.Desk) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		return startedMsg{err: d.Start(ctx)}
	}
}

func selectAgentCmd(d *orchestrator.Desk, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		convs, err := d.SelectAgent(ctx, id)
		return agentSelectedMsg{snap: d.Snapshot(), convs: convs, err: err}
	}
}

func loadConversationsCmd(d *orchestrator.Desk) tea.Cmd {
	snap := d.Snapshot()
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		convs, err := d.ReloadConversations(ctx)
		return conversationsLoadedMsg{snap: snap, convs: convs, err: err}
	}
}

func selectConversationCmd(d *orchestrator.Desk, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		_, err := d.SelectConversation(ctx, id)
		return conversationOpenedMsg{snap: d.Snapshot(), err: err}
	}
}

func createConversationCmd(d *orchestrator.Desk, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		conv, err := d.CreateConversation(ctx, title)
		return conversationCreatedMsg{conv: conv, err: err}
	}
}

// dispatchCmd sends a message whose optimistic entry is already visible.
func dispatchCmd(p *timeline.Pending) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		res, err := p.Dispatch(ctx)
		return sentMsg{res: res, err: err}
	}
}

func openToolsCmd(d *orchestrator.Desk) tea.Cmd {
	snap := d.Snapshot()
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		tools, err := d.OpenToolPanel(ctx)
		return toolsLoadedMsg{snap: snap, tools: tools, err: err}
	}
}

func toggleToolCmd(d *orchestrator.Desk, toolID string) tea.Cmd {
	snap := d.Snapshot()
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		expanded, cmds, err := d.ToggleTool(ctx, toolID)
		return toolToggledMsg{snap: snap, toolID: toolID, expanded: expanded, cmds: cmds, err: err}
	}
}

func runCmd(d *orchestrator.Desk, req orchestrator.RunRequest) tea.Cmd {
	snap := d.Snapshot()
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		out, err := d.RunCommand(ctx, req)
		return runFinishedMsg{snap: snap, commandID: req.CommandID, mode: req.Mode, out: out, err: err}
	}
}

func healthCmd(d *orchestrator.Desk) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.Ping(ctx); err != nil {
			return HealthMsg{Status: types.HealthDown, Err: err}
		}
		return HealthMsg{Status: types.HealthUp}
	}
}
