// Package validator holds the client-side preconditions checked before a
// request is dispatched. Failures are *types.ValidationError.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ashutoshrp06/agentdesk/internal/types"
)

type InputValidator struct {
	maxLength int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		maxLength: 100000,
	}
}

// ValidateSend checks that a send has something to say and nothing in flight.
func (v *InputValidator) ValidateSend(content string, attachments int, sending bool) error {
	if sending {
		return &types.ValidationError{Field: "content", Reason: "a message is already being sent"}
	}

	if strings.TrimSpace(content) == "" && attachments == 0 {
		return &types.ValidationError{Field: "content", Reason: "message is empty"}
	}

	if len(content) > v.maxLength {
		return &types.ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("message too long: maximum %d characters", v.maxLength),
		}
	}

	if !utf8.ValidString(content) {
		return &types.ValidationError{Field: "content", Reason: "invalid UTF-8 encoding"}
	}

	return nil
}

// Sanitize trims surrounding whitespace. Inner formatting is kept.
func (v *InputValidator) Sanitize(content string) string {
	return strings.TrimSpace(content)
}

// RunInput is what the operator picked before running a tool command.
type RunInput struct {
	CommandID string
	AgentID   string
	Type      types.CommandType
	Mode      types.RunMode
	Params    string
}

// ValidateRun checks tool run preconditions and returns the parsed params.
func ValidateRun(in RunInput) (json.RawMessage, error) {
	if strings.TrimSpace(in.CommandID) == "" {
		return nil, &types.ValidationError{Field: "command", Reason: "no command selected"}
	}
	if strings.TrimSpace(in.AgentID) == "" {
		return nil, &types.ValidationError{Field: "agentId", Reason: "select an agent first"}
	}
	if in.Type == "" {
		return nil, &types.ValidationError{Field: "type", Reason: "select a command type first"}
	}
	if !in.Type.Valid() {
		return nil, &types.ValidationError{
			Field:  "type",
			Reason: fmt.Sprintf("unknown command type %q: must be one of %v", in.Type, types.CommandTypes),
		}
	}
	if !in.Mode.Valid() {
		return nil, &types.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", in.Mode)}
	}
	return ParseParams(in.Params)
}

// ParseParams parses operator-supplied JSON parameters. An empty string is {}.
func ParseParams(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage("{}"), nil
	}

	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, &types.ValidationError{Field: "params", Reason: "params must be a JSON object: " + err.Error()}
	}
	if dec.More() {
		return nil, &types.ValidationError{Field: "params", Reason: "params must be a single JSON object"}
	}
	if obj == nil {
		return nil, &types.ValidationError{Field: "params", Reason: "params must be a JSON object"}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, &types.ValidationError{Field: "params", Reason: err.Error()}
	}
	return json.RawMessage(buf.Bytes()), nil
}
