package tools

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/ashutoshrp06/agentdesk/internal/gateway/gatewaytest"
	"github.com/ashutoshrp06/agentdesk/internal/types"
)

func catalogBackend(t *testing.T) *gatewaytest.Backend {
	backend := gatewaytest.New(t)
	backend.Tools["a1"] = []types.Tool{
		{ID: "t1", Name: "crm", Enabled: true, Type: "http"},
		{ID: "t2", Name: "billing", Enabled: true, Type: "http"},
	}
	backend.Commands["t1"] = []types.ToolCommand{
		{ID: "k1", ToolID: "t1", Name: "lookup-customer", Enabled: true},
		{ID: "k2", ToolID: "t1", Name: "update-customer", Enabled: true},
	}
	return backend
}

func TestCatalog_ListToolsForAgent(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)

	tools, err := c.ListToolsForAgent(context.Background(), "a1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if c.LoadingTools() {
		t.Fatal("loading flag should be cleared")
	}

	if _, err := c.ListToolsForAgent(context.Background(), "a1"); err != nil {
		t.Fatal(err)
	}
	if hits := backend.Hits(gatewaytest.RouteTools); hits != 2 {
		t.Fatalf("every call should refetch, got %d requests", hits)
	}
}

func TestCatalog_RequiresAgent(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)

	if _, err := c.ListToolsForAgent(context.Background(), ""); !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCatalog_CommandsFetchedOnce(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)
	c.ListToolsForAgent(context.Background(), "a1")

	first, err := c.ListCommandsForTool(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.ListCommandsForTool(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 commands twice, got %d and %d", len(first), len(second))
	}
	if hits := backend.Hits(gatewaytest.RouteToolCommands); hits != 1 {
		t.Fatalf("expected exactly one fetch, got %d", hits)
	}
}

func TestCatalog_ConcurrentCommandFetchShared(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)
	c.ListToolsForAgent(context.Background(), "a1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ListCommandsForTool(context.Background(), "t1"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if _, ok := c.Cached("t1"); !ok {
		t.Fatal("commands should be cached")
	}
	if c.LoadingCommands("t1") {
		t.Fatal("loading flag should be cleared")
	}
}

func TestCatalog_RefreshResetsCache(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)
	c.ListToolsForAgent(context.Background(), "a1")
	c.ListCommandsForTool(context.Background(), "t1")

	c.ListToolsForAgent(context.Background(), "a1")
	if _, ok := c.Cached("t1"); ok {
		t.Fatal("refresh must reset the command cache")
	}

	c.ListCommandsForTool(context.Background(), "t1")
	if hits := backend.Hits(gatewaytest.RouteToolCommands); hits != 2 {
		t.Fatalf("expected refetch after refresh, got %d", hits)
	}
}

func TestCatalog_FailureNotCached(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)
	c.ListToolsForAgent(context.Background(), "a1")
	backend.Fail(gatewaytest.RouteToolCommands, http.StatusBadGateway)

	if _, err := c.ListCommandsForTool(context.Background(), "t1"); err == nil {
		t.Fatal("expected error")
	}
	backend.Recover(gatewaytest.RouteToolCommands)

	cmds, err := c.ListCommandsForTool(context.Background(), "t1")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
}

func TestCatalog_ToolListFailureDegradesToEmpty(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)
	c.ListToolsForAgent(context.Background(), "a1")
	backend.Fail(gatewaytest.RouteTools, http.StatusInternalServerError)

	tools, err := c.ListToolsForAgent(context.Background(), "a1")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(tools) != 0 || len(c.Tools()) != 0 {
		t.Fatal("expected empty tool list")
	}
}

func TestCatalog_Toggle(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)
	c.ListToolsForAgent(context.Background(), "a1")

	expanded, cmds, err := c.Toggle(context.Background(), "t1")
	if err != nil || !expanded || len(cmds) != 2 {
		t.Fatalf("first toggle: expanded=%v cmds=%d err=%v", expanded, len(cmds), err)
	}

	expanded, _, err = c.Toggle(context.Background(), "t1")
	if err != nil || expanded {
		t.Fatalf("second toggle should collapse: expanded=%v err=%v", expanded, err)
	}

	c.Toggle(context.Background(), "t1")
	if hits := backend.Hits(gatewaytest.RouteToolCommands); hits != 1 {
		t.Fatalf("re-expanding must use the cache, got %d fetches", hits)
	}

	if _, _, err := c.Toggle(context.Background(), "missing"); !types.IsValidation(err) {
		t.Fatalf("expected validation error for unknown tool, got %v", err)
	}
}

func TestCatalog_CommandLookup(t *testing.T) {
	backend := catalogBackend(t)
	c := NewCatalog(backend.Client(), nil)
	c.ListToolsForAgent(context.Background(), "a1")

	if _, ok := c.Command("k2"); ok {
		t.Fatal("command should not be known before its tool is expanded")
	}
	c.ListCommandsForTool(context.Background(), "t1")

	cmd, ok := c.Command("k2")
	if !ok || cmd.Name != "update-customer" {
		t.Fatalf("unexpected lookup result %+v %v", cmd, ok)
	}

	c.Reset()
	if _, ok := c.Command("k2"); ok {
		t.Fatal("reset must clear the cache")
	}
	if c.AgentID() != "" || len(c.Tools()) != 0 {
		t.Fatal("reset must clear the agent and tools")
	}
}
