package orchestrator

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/ashutoshrp06/agentdesk/internal/gateway/gatewaytest"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDesk(t *testing.T, backend *gatewaytest.Backend) *Desk {
	t.Helper()
	d, err := New(Config{Gateway: backend.Client()})
	require.NoError(t, err)
	return d
}

func twoAgents(t *testing.T) *gatewaytest.Backend {
	backend := gatewaytest.New(t)
	backend.Agents = []types.Agent{
		{ID: "a0", Name: "Draft bot", IsActive: false},
		{ID: "a1", Name: "Support", IsActive: true},
		{ID: "a2", Name: "Billing", IsActive: true},
	}
	return backend
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.BaseURL = ""
	_, err := New(Config{AppConfig: cfg})
	assert.Error(t, err)
}

func TestScenario_CreateAndSend(t *testing.T) {
	backend := twoAgents(t)
	backend.SendFunc = func(id string, req gatewaytest.SendRequest) gatewaytest.Reply {
		user := types.Message{ID: "m1", Content: req.Content, Sender: types.SenderUser}
		reply := types.Message{ID: "m2", Content: "hello!", Sender: types.SenderAgent}
		backend.Messages[id] = append(backend.Messages[id], user, reply)
		return gatewaytest.Reply{Body: map[string]any{"userMessage": user, "aiMessage": reply}}
	}
	d := newDesk(t, backend)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	agent, ok := d.SelectedAgent()
	require.True(t, ok)
	assert.Equal(t, "a1", agent.ID, "first active agent is auto-selected")

	conv, err := d.CreateConversation(ctx, "")
	require.NoError(t, err)
	selected, ok := d.SelectedConversation()
	require.True(t, ok)
	assert.Equal(t, conv.ID, selected.ID)

	res, err := d.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, types.SendReconciled, res.State)

	msgs := d.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	for _, m := range msgs {
		assert.False(t, types.IsTemporaryID(m.ID))
	}
}

func TestScenario_ServerErrorReverts(t *testing.T) {
	backend := twoAgents(t)
	backend.Conversations = []types.Conversation{{ID: "c1", AgentID: "a1"}}
	backend.SetMessages("c1", []types.Message{{ID: "h1", Content: "hello", Sender: types.SenderUser}})
	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	require.Len(t, d.Messages(), 1, "first conversation is opened on start")

	backend.Fail(gatewaytest.RouteSendMessage, http.StatusInternalServerError)
	res, err := d.Send(ctx, "will fail")
	require.Error(t, err)
	assert.Equal(t, types.SendRolledBack, res.State)
	assert.Equal(t, "will fail", res.Draft)
	assert.Len(t, d.Messages(), 1)
}

func TestSelectAgent_ResetsDownstream(t *testing.T) {
	backend := twoAgents(t)
	backend.Conversations = []types.Conversation{
		{ID: "c1", AgentID: "a1"},
		{ID: "c2", AgentID: "a2"},
	}
	backend.SetMessages("c1", []types.Message{{ID: "h1", Content: "hello"}})
	backend.Tools["a1"] = []types.Tool{{ID: "t1", Name: "crm"}}
	backend.Commands["t1"] = []types.ToolCommand{{ID: "k1", ToolID: "t1", Name: "lookup"}}

	dir := t.TempDir()
	note := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(note, []byte("context"), 0o644))

	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	_, err := d.Attach(note)
	require.NoError(t, err)
	_, err = d.OpenToolPanel(ctx)
	require.NoError(t, err)
	_, _, err = d.ToggleTool(ctx, "t1")
	require.NoError(t, err)

	convs, err := d.SelectAgent(ctx, "a2")
	require.NoError(t, err)

	require.Len(t, convs, 1)
	assert.Equal(t, "c2", convs[0].ID)
	_, selected := d.SelectedConversation()
	assert.False(t, selected, "conversation selection is reset")
	assert.Empty(t, d.Messages())
	assert.Empty(t, d.Attachments())
	assert.Empty(t, d.Tools())
	_, cached := d.CachedCommands("t1")
	assert.False(t, cached)
}

func TestSelectAgent_SameAgentKeepsState(t *testing.T) {
	backend := twoAgents(t)
	backend.Conversations = []types.Conversation{{ID: "c1", AgentID: "a1"}}
	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	_, err := d.SelectAgent(ctx, "a1")
	require.NoError(t, err)
	_, selected := d.SelectedConversation()
	assert.True(t, selected)
	assert.Equal(t, 1, backend.Hits(gatewaytest.RouteConversations))
}

func TestSelectAgent_Unknown(t *testing.T) {
	backend := twoAgents(t)
	d := newDesk(t, backend)
	require.NoError(t, d.Start(context.Background()))

	_, err := d.SelectAgent(context.Background(), "nope")
	assert.True(t, types.IsValidation(err))
}

func TestSend_ClearsAttachmentsRegardlessOfOutcome(t *testing.T) {
	backend := twoAgents(t)
	backend.Conversations = []types.Conversation{{ID: "c1", AgentID: "a1"}}
	dir := t.TempDir()
	note := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(note, []byte("context"), 0o644))

	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	_, err := d.Attach(note)
	require.NoError(t, err)
	_, err = d.Send(ctx, "see attached")
	require.NoError(t, err)
	assert.Empty(t, d.Attachments())

	stored := backend.StoredMessages("c1")
	require.NotEmpty(t, stored)
	assert.Equal(t, "see attached\n\n\n--- File: note.txt (text/plain) ---\ncontext", stored[0].Content)

	_, err = d.Attach(note)
	require.NoError(t, err)
	backend.Fail(gatewaytest.RouteSendMessage, http.StatusBadGateway)
	_, err = d.Send(ctx, "again")
	require.Error(t, err)
	assert.Empty(t, d.Attachments())
}

func TestSend_RequiresConversation(t *testing.T) {
	backend := twoAgents(t)
	d := newDesk(t, backend)
	require.NoError(t, d.Start(context.Background()))

	_, err := d.Send(context.Background(), "hi")
	assert.True(t, types.IsValidation(err), "no conversation open")
	assert.Zero(t, backend.Hits(gatewaytest.RouteSendMessage))
}

func TestSelectConversation_ClearsAttachments(t *testing.T) {
	backend := twoAgents(t)
	backend.Conversations = []types.Conversation{
		{ID: "c1", AgentID: "a1"},
		{ID: "c2", AgentID: "a1"},
	}
	dir := t.TempDir()
	note := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(note, []byte("# context"), 0o644))

	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	_, err := d.Attach(note)
	require.NoError(t, err)

	_, err = d.SelectConversation(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, d.Attachments())
}

func TestRunCommand_ResultGoesToCompositionOnly(t *testing.T) {
	backend := twoAgents(t)
	backend.Conversations = []types.Conversation{{ID: "c1", AgentID: "a1"}}
	backend.Tools["a1"] = []types.Tool{{ID: "t1", Name: "crm"}}
	backend.Commands["t1"] = []types.ToolCommand{{ID: "k1", ToolID: "t1", Name: "lookup"}}

	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	_, err := d.RunCommand(ctx, RunRequest{CommandID: "k1", Mode: types.ModeTest, Type: types.CommandQuery})
	assert.True(t, types.IsValidation(err), "command unknown until its tool is expanded")

	_, err = d.OpenToolPanel(ctx)
	require.NoError(t, err)
	_, _, err = d.ToggleTool(ctx, "t1")
	require.NoError(t, err)

	out, err := d.RunCommand(ctx, RunRequest{
		CommandID: "k1",
		Mode:      types.ModeTest,
		Type:      types.CommandQuery,
		Params:    `{"id": 7}`,
	})
	require.NoError(t, err)
	assert.True(t, out.Result.Success)
	assert.False(t, out.Stale)
	assert.True(t, strings.HasPrefix(out.Text, `Tool command "lookup" (test): success`))
	assert.Empty(t, d.Messages(), "tool runs never touch the timeline")

	_, err = d.RunCommand(ctx, RunRequest{CommandID: "k1", Mode: types.ModeExecute, Type: types.CommandQuery})
	assert.True(t, types.IsValidation(err), "execute needs confirmation by default")

	backend.Fail(gatewaytest.RouteExecuteCommand, http.StatusInternalServerError)
	out, err = d.RunCommand(ctx, RunRequest{CommandID: "k1", Mode: types.ModeExecute, Type: types.CommandQuery, Confirmed: true})
	require.NoError(t, err, "backend failures are rendered, not returned")
	assert.False(t, out.Result.Success)
	assert.Contains(t, out.Text, "failed")
	assert.Contains(t, out.Text, "500")
}

func TestLoadCommands_FetchesConcurrently(t *testing.T) {
	backend := twoAgents(t)
	backend.Tools["a1"] = []types.Tool{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}
	backend.Commands["t1"] = []types.ToolCommand{{ID: "k1"}}
	backend.Commands["t2"] = []types.ToolCommand{{ID: "k2"}, {ID: "k3"}}

	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	_, err := d.OpenToolPanel(ctx)
	require.NoError(t, err)

	lists, err := d.LoadCommands(ctx, "t1", "t2", "t3")
	require.NoError(t, err)
	assert.Len(t, lists["t1"], 1)
	assert.Len(t, lists["t2"], 2)
	assert.Empty(t, lists["t3"])
	assert.Equal(t, 3, backend.Hits(gatewaytest.RouteToolCommands))

	_, err = d.LoadCommands(ctx, "t1", "t2")
	require.NoError(t, err)
	assert.Equal(t, 3, backend.Hits(gatewaytest.RouteToolCommands), "cached lists are not refetched")
}

func TestStart_AgentsFailure(t *testing.T) {
	backend := twoAgents(t)
	backend.Fail(gatewaytest.RouteAgents, http.StatusServiceUnavailable)
	d := newDesk(t, backend)

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Empty(t, d.Agents())
}

func TestReloadAgents_FailureDropsSelection(t *testing.T) {
	backend := twoAgents(t)
	backend.Conversations = []types.Conversation{{ID: "c1", AgentID: "a1"}}
	backend.SetMessages("c1", []types.Message{{ID: "h1", Content: "hello"}})
	backend.Tools["a1"] = []types.Tool{{ID: "t1", Name: "crm"}}

	note := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(note, []byte("context"), 0o644))

	d := newDesk(t, backend)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	_, err := d.SelectConversation(ctx, "c1")
	require.NoError(t, err)
	_, err = d.Attach(note)
	require.NoError(t, err)
	_, err = d.OpenToolPanel(ctx)
	require.NoError(t, err)

	backend.Fail(gatewaytest.RouteAgents, http.StatusBadGateway)
	_, err = d.ReloadAgents(ctx)
	require.Error(t, err)

	_, ok := d.SelectedAgent()
	assert.False(t, ok)
	_, ok = d.SelectedConversation()
	assert.False(t, ok)
	assert.Empty(t, d.Conversations())
	assert.Empty(t, d.Messages())
	assert.Empty(t, d.Attachments())
	assert.Empty(t, d.Tools())
}

func TestPing(t *testing.T) {
	backend := twoAgents(t)
	d := newDesk(t, backend)

	require.NoError(t, d.Ping(context.Background()))
	assert.Equal(t, 1, backend.Hits(gatewaytest.RouteHealth))
}
