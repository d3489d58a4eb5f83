package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/gateway/gatewaytest"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lookup = types.ToolCommand{ID: "k1", ToolID: "t1", Name: "lookup-customer", Enabled: true}

func runRequest(mode types.RunMode) RunRequest {
	return RunRequest{
		Command:   lookup,
		Mode:      mode,
		AgentID:   "a1",
		Type:      types.CommandQuery,
		Params:    `{"email": "ada@example.com"}`,
		Confirmed: true,
	}
}

func TestRunner_ModesUseDistinctEndpoints(t *testing.T) {
	backend := gatewaytest.New(t)
	r := NewRunner(backend.Client(), RunnerConfig{RequireExecuteConfirmation: true})

	testRes, err := r.Run(context.Background(), runRequest(types.ModeTest))
	require.NoError(t, err)
	execRes, err := r.Run(context.Background(), runRequest(types.ModeExecute))
	require.NoError(t, err)

	assert.Equal(t, 1, backend.Hits(gatewaytest.RouteProcessCommand))
	assert.Equal(t, 1, backend.Hits(gatewaytest.RouteExecuteCommand))
	assert.True(t, testRes.Success)
	assert.True(t, execRes.Success)
	assert.Equal(t, int64(12), testRes.ResponseTime)
	assert.JSONEq(t, `{"mode":"test","request":{"commandId":"k1","toolId":"t1","agentId":"a1","type":"query","command":"lookup-customer","params":{"email":"ada@example.com"}}}`, string(testRes.Data))
	assert.JSONEq(t, `{"mode":"execute","request":{"agentId":"a1","type":"query","params":{"email":"ada@example.com"}}}`, string(execRes.Data))
}

func TestRunner_Preconditions(t *testing.T) {
	backend := gatewaytest.New(t)
	r := NewRunner(backend.Client(), RunnerConfig{RequireExecuteConfirmation: true})

	tests := []struct {
		name   string
		modify func(*RunRequest)
	}{
		{"missing agent", func(req *RunRequest) { req.AgentID = "" }},
		{"missing type", func(req *RunRequest) { req.Type = "" }},
		{"unknown type", func(req *RunRequest) { req.Type = "destroy" }},
		{"unknown mode", func(req *RunRequest) { req.Mode = "dry" }},
		{"missing command", func(req *RunRequest) { req.Command = types.ToolCommand{} }},
		{"params not an object", func(req *RunRequest) { req.Params = `[1,2]` }},
		{"params invalid", func(req *RunRequest) { req.Params = `{"a":` }},
		{"execute unconfirmed", func(req *RunRequest) { req.Mode = types.ModeExecute; req.Confirmed = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := runRequest(types.ModeTest)
			tt.modify(&req)
			_, err := r.Run(context.Background(), req)
			assert.True(t, types.IsValidation(err), "expected validation error, got %v", err)
		})
	}

	assert.Zero(t, backend.Hits(gatewaytest.RouteProcessCommand))
	assert.Zero(t, backend.Hits(gatewaytest.RouteExecuteCommand))
}

func TestRunner_ExecuteWithoutConfirmationPolicy(t *testing.T) {
	backend := gatewaytest.New(t)
	r := NewRunner(backend.Client(), RunnerConfig{RequireExecuteConfirmation: false})

	req := runRequest(types.ModeExecute)
	req.Confirmed = false
	_, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Hits(gatewaytest.RouteExecuteCommand))
}

func TestRunner_EmptyParamsDefaultToObject(t *testing.T) {
	backend := gatewaytest.New(t)
	r := NewRunner(backend.Client(), RunnerConfig{})

	req := runRequest(types.ModeTest)
	req.Params = ""
	_, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(backend.LastBody(gatewaytest.RouteProcessCommand), &body))
	assert.JSONEq(t, `{}`, string(body["params"]))
}

func TestRunner_ServerError(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.Fail(gatewaytest.RouteProcessCommand, http.StatusUnprocessableEntity)
	r := NewRunner(backend.Client(), RunnerConfig{})

	res, err := r.Run(context.Background(), runRequest(types.ModeTest))
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, types.StatusCode(err))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "422")

	_, busy := r.Busy(lookup.ID)
	assert.False(t, busy, "a failed run must release the command")
}

func TestRunner_ReportedFailure(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.RunFunc = func(route, commandID string, body map[string]any) gatewaytest.Reply {
		return gatewaytest.Reply{Body: map[string]any{
			"success": false,
			"error":   "customer not found",
		}}
	}
	r := NewRunner(backend.Client(), RunnerConfig{})

	res, err := r.Run(context.Background(), runRequest(types.ModeTest))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "customer not found", res.Error)
}

func TestRunner_UnwrappedFailureBody(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.RunFunc = func(route, commandID string, body map[string]any) gatewaytest.Reply {
		return gatewaytest.Reply{Raw: true, Body: map[string]any{
			"success":      false,
			"data":         nil,
			"error":        "permission denied",
			"responseTime": 9,
		}}
	}
	r := NewRunner(backend.Client(), RunnerConfig{})

	res, err := r.Run(context.Background(), runRequest(types.ModeExecute))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "permission denied", res.Error)
	assert.Equal(t, int64(9), res.ResponseTime)

	out := FormatResult(lookup, types.ModeExecute, res)
	assert.Contains(t, out, `Tool command "lookup-customer" (execute): failed`)
	assert.Contains(t, out, "Response time: 9ms")
}

func TestRunner_SameCommandIsExclusive(t *testing.T) {
	backend := gatewaytest.New(t)
	release := make(chan struct{})
	started := make(chan struct{})
	backend.RunFunc = func(route, commandID string, body map[string]any) gatewaytest.Reply {
		if route == gatewaytest.RouteProcessCommand {
			close(started)
			<-release
		}
		return gatewaytest.Reply{Body: map[string]any{"success": true}}
	}
	r := NewRunner(backend.Client(), RunnerConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), runRequest(types.ModeTest))
		done <- err
	}()
	<-started

	mode, busy := r.Busy(lookup.ID)
	assert.True(t, busy)
	assert.Equal(t, types.ModeTest, mode)

	_, err := r.Run(context.Background(), runRequest(types.ModeExecute))
	assert.True(t, types.IsValidation(err), "expected run to be refused, got %v", err)

	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, backend.Hits(gatewaytest.RouteExecuteCommand))
}

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want types.ExecutionResult
	}{
		{"empty", ``, types.ExecutionResult{Success: true}},
		{"no success field", `{"rows":3}`, types.ExecutionResult{Success: true, Data: json.RawMessage(`{"rows":3}`)}},
		{"array", `[1,2]`, types.ExecutionResult{Success: true, Data: json.RawMessage(`[1,2]`)}},
		{"result alias", `{"success":true,"result":{"a":1},"responseTime":4.7}`, types.ExecutionResult{Success: true, Data: json.RawMessage(`{"a":1}`), ResponseTime: 4}},
		{"error object", `{"success":false,"error":{"message":"boom"}}`, types.ExecutionResult{Error: "boom"}},
		{"message only", `{"success":false,"message":"denied"}`, types.ExecutionResult{Error: "denied"}},
		{"bare failure", `{"success":false}`, types.ExecutionResult{Error: "command failed"}},
		{"unwrapped failure with data", `{"success":false,"data":null,"error":"permission denied","responseTime":9}`, types.ExecutionResult{Error: "permission denied", ResponseTime: 9}},
		{"enveloped failure", `{"data":{"success":false,"error":"permission denied"}}`, types.ExecutionResult{Error: "permission denied"}},
		{"envelope without success", `{"data":{"rows":3}}`, types.ExecutionResult{Success: true, Data: json.RawMessage(`{"rows":3}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeResult(json.RawMessage(tt.raw)))
		})
	}
}

func TestFormatResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		got := FormatResult(lookup, types.ModeTest, types.ExecutionResult{
			Success:      true,
			Data:         json.RawMessage(`{"ok":true}`),
			ResponseTime: 12,
		})
		want := "Tool command \"lookup-customer\" (test): success\nResponse time: 12ms\n```json\n{\n  \"ok\": true\n}\n```"
		assert.Equal(t, want, got)
	})

	t.Run("failure", func(t *testing.T) {
		got := FormatResult(lookup, types.ModeExecute, types.ExecutionResult{
			Error:    "customer not found",
			Duration: 30 * time.Millisecond,
		})
		want := "Tool command \"lookup-customer\" (execute): failed\nResponse time: 30ms\nError: customer not found"
		assert.Equal(t, want, got)
	})

	t.Run("sub-millisecond round trip", func(t *testing.T) {
		got := FormatResult(lookup, types.ModeTest, types.ExecutionResult{
			Error:    "denied",
			Duration: 400 * time.Microsecond,
		})
		assert.Equal(t, "Tool command \"lookup-customer\" (test): failed\nError: denied", got)
	})

	t.Run("no payload", func(t *testing.T) {
		got := FormatResult(types.ToolCommand{ID: "k9"}, types.ModeTest, types.ExecutionResult{Success: true})
		assert.Equal(t, "Tool command \"k9\" (test): success", got)
	})
}
