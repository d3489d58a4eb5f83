// Package types defines shared data structures for the agent console.
package types

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// TempIDPrefix marks client-generated message ids. Server ids never carry it.
const TempIDPrefix = "temp-"

// IsTemporaryID reports whether id was synthesized locally for an optimistic message.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ModelRef is the model an agent is backed by. The backend sends either a
// bare model name or an object.
type ModelRef struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// UnmarshalJSON accepts both "gpt-4o" and {"id": ..., "name": ...}.
func (m *ModelRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = ModelRef{}
		return nil
	}
	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*m = ModelRef{Name: name}
		return nil
	}
	type plain ModelRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = ModelRef(p)
	return nil
}

// String returns a display name for the model.
func (m ModelRef) String() string {
	switch {
	case m.Name != "" && m.Provider != "":
		return m.Provider + "/" + m.Name
	case m.Name != "":
		return m.Name
	default:
		return m.ID
	}
}

// Agent is a configured conversational persona.
type Agent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Model       ModelRef `json:"model"`
	IsActive    bool     `json:"isActive"`
}

// ConversationCounts carries aggregate counters embedded by the backend.
type ConversationCounts struct {
	Messages int `json:"messages"`
}

// Conversation is an ordered thread of messages belonging to one agent.
type Conversation struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	AgentID     string              `json:"agentId"`
	LastMessage *Message            `json:"lastMessage,omitempty"`
	Counts      *ConversationCounts `json:"_count,omitempty"`
	CreatedAt   time.Time           `json:"createdAt,omitempty"`

	// Messages is only populated by GET /conversations/{id}.
	Messages []Message `json:"messages,omitempty"`
}

// Message is one entry in a conversation timeline.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
	Tokens    *int      `json:"tokens,omitempty"`
}

// Pending reports whether the message is an unconfirmed optimistic entry.
func (m Message) Pending() bool {
	return IsTemporaryID(m.ID)
}

// UploadedFile is a client-side attachment waiting to be inlined into the
// next outgoing message. Content is nil for binary files.
type UploadedFile struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Size    int64   `json:"size"`
	Type    string  `json:"type"`
	Content *string `json:"content"`
}

// Tool is a named capability bound to an agent.
type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Type        string `json:"type,omitempty"`
}

// ToolCommand is an invocable unit exposed by a tool.
type ToolCommand struct {
	ID            string          `json:"id"`
	ToolID        string          `json:"toolId"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Enabled       bool            `json:"enabled"`
	Params        json.RawMessage `json:"params,omitempty"`
	ExampleParams json.RawMessage `json:"exampleParams,omitempty"`
}

// ExecutionResult is the outcome of a tool command run. It is never persisted.
type ExecutionResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`

	// ResponseTime is reported by the backend in milliseconds.
	ResponseTime int64 `json:"responseTime,omitempty"`

	// Duration is the client-observed round trip.
	Duration time.Duration `json:"-"`
}
