package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/ashutoshrp06/agentdesk/internal/validator"
	"go.uber.org/zap"
)

// RunRequest is one invocation of a tool command.
type RunRequest struct {
	Command types.ToolCommand
	Mode    types.RunMode
	AgentID string
	Type    types.CommandType

	// Params is operator-supplied JSON. Empty means {}.
	Params string

	// Confirmed acknowledges that an execute run may have side effects.
	Confirmed bool
}

// RunnerConfig holds runner configuration.
type RunnerConfig struct {
	Logger                     *zap.Logger
	RequireExecuteConfirmation bool
}

// Runner invokes tool commands in test or execute mode. Runs of the same
// command are mutually exclusive; different commands may run concurrently.
type Runner struct {
	gw             gateway.Requester
	logger         *zap.Logger
	requireConfirm bool
	now            func() time.Time

	mu   sync.Mutex
	busy map[string]types.RunMode
}

// NewRunner creates a runner.
func NewRunner(gw gateway.Requester, cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		gw:             gw,
		logger:         cfg.Logger,
		requireConfirm: cfg.RequireExecuteConfirmation,
		now:            time.Now,
		busy:           make(map[string]types.RunMode),
	}
}

type processRequest struct {
	CommandID string            `json:"commandId"`
	ToolID    string            `json:"toolId,omitempty"`
	AgentID   string            `json:"agentId"`
	Type      types.CommandType `json:"type"`
	Command   string            `json:"command,omitempty"`
	Params    json.RawMessage   `json:"params"`
}

type executeRequest struct {
	AgentID string            `json:"agentId"`
	Type    types.CommandType `json:"type"`
	Params  json.RawMessage   `json:"params"`
}

// Run validates req and invokes the command. A *types.ValidationError means
// nothing was sent. Transport and server failures are returned as errors
// together with a failed result carrying the message.
func (r *Runner) Run(ctx context.Context, req RunRequest) (types.ExecutionResult, error) {
	params, err := validator.ValidateRun(validator.RunInput{
		CommandID: req.Command.ID,
		AgentID:   req.AgentID,
		Type:      req.Type,
		Mode:      req.Mode,
		Params:    req.Params,
	})
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if req.Mode == types.ModeExecute && r.requireConfirm && !req.Confirmed {
		return types.ExecutionResult{}, &types.ValidationError{
			Field:  "mode",
			Reason: "execute may have side effects and must be confirmed",
		}
	}

	if err := r.acquire(req.Command.ID, req.Mode); err != nil {
		return types.ExecutionResult{}, err
	}
	defer r.release(req.Command.ID)

	var path string
	var body any
	switch req.Mode {
	case types.ModeTest:
		path = "/tool-commands/process"
		body = processRequest{
			CommandID: req.Command.ID,
			ToolID:    req.Command.ToolID,
			AgentID:   req.AgentID,
			Type:      req.Type,
			Command:   req.Command.Name,
			Params:    params,
		}
	case types.ModeExecute:
		path = "/tool-commands/" + url.PathEscape(req.Command.ID) + "/execute"
		body = executeRequest{AgentID: req.AgentID, Type: req.Type, Params: params}
	}

	start := r.now()
	var raw gateway.RawBody
	err = r.gw.Post(ctx, path, body, &raw)
	elapsed := r.now().Sub(start)

	if err != nil {
		r.logger.Warn("tool command failed",
			zap.String("command_id", req.Command.ID),
			zap.String("mode", string(req.Mode)),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return types.ExecutionResult{Success: false, Error: err.Error(), Duration: elapsed}, fmt.Errorf("run %s: %w", req.Mode, err)
	}

	res := decodeResult(json.RawMessage(raw))
	res.Duration = elapsed
	r.logger.Info("tool command finished",
		zap.String("command_id", req.Command.ID),
		zap.String("mode", string(req.Mode)),
		zap.Bool("success", res.Success),
		zap.Duration("duration", elapsed))
	return res, nil
}

// Busy reports whether a run of commandID is in flight, and in which mode.
func (r *Runner) Busy(commandID string) (types.RunMode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mode, ok := r.busy[commandID]
	return mode, ok
}

func (r *Runner) acquire(commandID string, mode types.RunMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if running, ok := r.busy[commandID]; ok {
		return &types.ValidationError{
			Field:  "command",
			Reason: fmt.Sprintf("command %s is already running in %s mode", commandID, running),
		}
	}
	r.busy[commandID] = mode
	return nil
}

func (r *Runner) release(commandID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.busy, commandID)
}

// decodeResult reads {success, data, error, responseTime}, bare or inside the
// {data: ...} envelope. A payload without a success field is treated as
// successful data.
func decodeResult(raw json.RawMessage) types.ExecutionResult {
	raw = bytes.TrimSpace(raw)
	if !hasField(raw, "success") {
		if payload, err := gateway.Unwrap(raw); err == nil {
			raw = bytes.TrimSpace(payload)
		}
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return types.ExecutionResult{Success: true}
	}

	var wire struct {
		Success      *bool           `json:"success"`
		Data         json.RawMessage `json:"data"`
		Result       json.RawMessage `json:"result"`
		Error        json.RawMessage `json:"error"`
		Message      string          `json:"message"`
		ResponseTime float64         `json:"responseTime"`
	}
	if raw[0] != '{' || json.Unmarshal(raw, &wire) != nil || wire.Success == nil {
		return types.ExecutionResult{Success: true, Data: json.RawMessage(raw)}
	}

	res := types.ExecutionResult{
		Success:      *wire.Success,
		Data:         wire.Data,
		ResponseTime: int64(wire.ResponseTime),
	}
	if len(res.Data) == 0 {
		res.Data = wire.Result
	}
	if bytes.Equal(res.Data, []byte("null")) {
		res.Data = nil
	}
	if !res.Success {
		res.Error = errorString(wire.Error)
		if res.Error == "" {
			res.Error = wire.Message
		}
		if res.Error == "" {
			res.Error = "command failed"
		}
	}
	return res
}

// hasField reports whether raw is an object with a top-level key.
func hasField(raw json.RawMessage, key string) bool {
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, ok := obj[key]
	return ok
}

func errorString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
