package ui

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/ashutoshrp06/agentdesk/internal/gateway/gatewaytest"
	"github.com/ashutoshrp06/agentdesk/internal/orchestrator"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

func newTestModel(t *testing.T) (*gatewaytest.Backend, *orchestrator.Desk, Model) {
	t.Helper()
	backend := gatewaytest.New(t)
	backend.Agents = []types.Agent{{ID: "a1", Name: "Support", IsActive: true}}
	backend.Conversations = []types.Conversation{{ID: "c1", AgentID: "a1", Title: "Refunds"}}
	backend.Tools["a1"] = []types.Tool{{ID: "t1", Name: "crm", Enabled: true}}
	backend.Commands["t1"] = []types.ToolCommand{{ID: "k1", ToolID: "t1", Name: "lookup"}}

	desk, err := orchestrator.New(orchestrator.Config{Gateway: backend.Client()})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	if err := desk.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	m := NewModel(desk, Options{Prefs: config.UIConfig{Position: "bottom"}})
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return backend, desk, m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// submit types input and presses enter, returning the model and the
// command the key produced.
func submit(t *testing.T, m Model, input string) (Model, tea.Cmd) {
	t.Helper()
	m.textInput.SetValue(input)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestSend_OptimisticEntryBeforeDispatch(t *testing.T) {
	backend, desk, m := newTestModel(t)

	m, cmd := submit(t, m, "hello there")
	if cmd == nil {
		t.Fatal("expected a dispatch command")
	}
	msgs := desk.Messages()
	if len(msgs) != 1 || !msgs[0].Pending() {
		t.Fatalf("expected one pending message before dispatch, got %+v", msgs)
	}
	if backend.Hits(gatewaytest.RouteSendMessage) != 0 {
		t.Fatal("nothing should be sent before the command runs")
	}
	if m.textInput.Value() != "" {
		t.Fatal("input should be cleared on dispatch")
	}

	m = update(t, m, cmd())
	msgs = desk.Messages()
	if len(msgs) != 2 || msgs[0].Pending() {
		t.Fatalf("expected reconciled messages, got %+v", msgs)
	}
	if !strings.Contains(m.viewport.View(), "echo: hello there") {
		t.Error("agent reply should be rendered")
	}
}

func TestSend_FailureRestoresDraft(t *testing.T) {
	backend, desk, m := newTestModel(t)
	backend.Fail(gatewaytest.RouteSendMessage, http.StatusInternalServerError)

	m, cmd := submit(t, m, "keep me")
	m = update(t, m, cmd())

	if m.textInput.Value() != "keep me" {
		t.Fatalf("draft not restored, input = %q", m.textInput.Value())
	}
	if len(desk.Messages()) != 0 {
		t.Fatal("optimistic entry should be rolled back")
	}
	if !strings.Contains(m.viewport.View(), "Send failed") {
		t.Error("failure should be surfaced")
	}
}

func TestSend_EmptyIsIgnored(t *testing.T) {
	backend, _, m := newTestModel(t)

	_, cmd := submit(t, m, "   ")
	if cmd != nil {
		t.Fatal("empty input must not dispatch")
	}
	if backend.Hits(gatewaytest.RouteSendMessage) != 0 {
		t.Fatal("no request expected")
	}
}

func TestToolResultGoesToInput(t *testing.T) {
	_, desk, m := newTestModel(t)

	m, cmd := submit(t, m, "/tools")
	m = update(t, m, cmd())
	m, cmd = submit(t, m, "/cmds 1")
	m = update(t, m, cmd())
	if !desk.ToolExpanded("t1") {
		t.Fatal("tool should be expanded")
	}

	m, cmd = submit(t, m, `/test k1 query {"id": 1}`)
	if cmd == nil {
		t.Fatal("expected a run command")
	}
	if _, again := submit(t, m, "/test k1 query"); again != nil {
		t.Fatal("a second run of the same command should be refused while the first is pending")
	}
	m = update(t, m, cmd())

	if !strings.HasPrefix(m.textInput.Value(), `Tool command "lookup" (test): success`) {
		t.Fatalf("unexpected input %q", m.textInput.Value())
	}
	if len(desk.Messages()) != 0 {
		t.Fatal("tool results must not be sent automatically")
	}
	if _, busy := m.running["k1"]; busy {
		t.Fatal("run should be released")
	}
}

func TestExecuteRequiresConfirmation(t *testing.T) {
	backend, _, m := newTestModel(t)

	m, cmd := submit(t, m, "/tools")
	m = update(t, m, cmd())
	m, cmd = submit(t, m, "/cmds t1")
	m = update(t, m, cmd())

	m, cmd = submit(t, m, "/exec k1 update")
	m = update(t, m, cmd())
	if backend.Hits(gatewaytest.RouteExecuteCommand) != 0 {
		t.Fatal("unconfirmed execute must not reach the backend")
	}
	if m.textInput.Value() != "" {
		t.Fatal("refused run must not fill the input")
	}

	m, cmd = submit(t, m, "/exec! k1 update")
	m = update(t, m, cmd())
	if backend.Hits(gatewaytest.RouteExecuteCommand) != 1 {
		t.Fatal("confirmed execute should reach the backend")
	}
	if !strings.Contains(m.textInput.Value(), "(execute): success") {
		t.Fatalf("unexpected input %q", m.textInput.Value())
	}
}

func TestNewConversationAndSwitch(t *testing.T) {
	_, desk, m := newTestModel(t)

	m, cmd := submit(t, m, "/new Shipping")
	m = update(t, m, cmd())
	conv, ok := desk.SelectedConversation()
	if !ok || conv.Title != "Shipping" {
		t.Fatalf("expected new conversation selected, got %+v", conv)
	}

	m, cmd = submit(t, m, "/conv c1")
	update(t, m, cmd())
	if conv, _ := desk.SelectedConversation(); conv.ID != "c1" {
		t.Fatalf("expected c1, got %s", conv.ID)
	}
}

func TestPrefsAndHealth(t *testing.T) {
	_, _, m := newTestModel(t)

	m = update(t, m, HealthMsg{Status: types.HealthUp})
	if !strings.Contains(m.View(), "online") {
		t.Error("health indicator should show online")
	}

	m = update(t, m, PrefsMsg{UI: config.UIConfig{Collapsed: true}})
	if !strings.Contains(m.View(), "collapsed") {
		t.Error("collapsed preference should hide the timeline")
	}
}

// runInit executes every command Init batches and feeds the results back.
func runInit(t *testing.T, m Model) Model {
	t.Helper()
	batch, ok := m.Init()().(tea.BatchMsg)
	if !ok {
		t.Fatal("Init should batch its commands")
	}
	for _, cmd := range batch {
		if cmd == nil {
			continue
		}
		m = update(t, m, cmd())
	}
	return m
}

func TestInit_SkipsStartWhenAlreadyStarted(t *testing.T) {
	backend, desk, _ := newTestModel(t)
	before := backend.Hits(gatewaytest.RouteAgents)

	m := NewModel(desk, Options{Started: true})
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = runInit(t, m)

	if got := backend.Hits(gatewaytest.RouteAgents); got != before {
		t.Fatalf("agents fetched again: %d hits, want %d", got, before)
	}
	if n := len(m.notices); n == 0 || m.notices[n-1].text != "Agent: Support" {
		t.Errorf("started notice should still name the selected agent, got %+v", m.notices)
	}

	m = NewModel(desk, Options{})
	runInit(t, m)
	if got := backend.Hits(gatewaytest.RouteAgents); got != before+1 {
		t.Fatalf("fresh model should load agents: %d hits, want %d", got, before+1)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		input string
		name  string
		arg   string
	}{
		{"/help", "help", ""},
		{"/NEW  Quarterly review ", "new", "Quarterly review"},
		{`/test k1 query {"a": 1}`, "test", `k1 query {"a": 1}`},
	}
	for _, tt := range tests {
		name, arg := splitCommand(tt.input)
		if name != tt.name || arg != tt.arg {
			t.Errorf("splitCommand(%q) = %q, %q", tt.input, name, arg)
		}
	}
}

func TestResolve(t *testing.T) {
	ids := []string{"x", "y"}
	at := func(i int) string { return ids[i] }

	if id, ok := resolve("2", 2, at); !ok || id != "y" {
		t.Errorf("resolve index: %q %v", id, ok)
	}
	if _, ok := resolve("3", 2, at); ok {
		t.Error("out of range index should fail")
	}
	if id, ok := resolve("abc", 2, at); !ok || id != "abc" {
		t.Errorf("resolve id: %q %v", id, ok)
	}
	if _, ok := resolve("", 2, at); ok {
		t.Error("empty argument should fail")
	}
}
