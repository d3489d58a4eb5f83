// Package timeline implements the message list of the selected conversation
// and the optimistic send protocol: append a temporary entry immediately,
// then reconcile it against the server response or roll it back.
package timeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/ashutoshrp06/agentdesk/internal/validator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Timeline owns the messages of one conversation at a time.
type Timeline struct {
	gw        gateway.Requester
	logger    *zap.Logger
	validator *validator.InputValidator
	now       func() time.Time

	mu             sync.Mutex
	conversationID string
	agentID        string
	messages       []types.Message
	state          types.SendState
	pending        *Pending

	// scope changes whenever the conversation or agent changes; responses
	// tagged with an older scope are dropped.
	scope   uint64
	loadSeq uint64
}

// Config holds timeline configuration.
type Config struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// New creates an empty timeline with no conversation.
func New(gw gateway.Requester, cfg Config) *Timeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Timeline{
		gw:        gw,
		logger:    cfg.Logger,
		validator: validator.NewInputValidator(),
		now:       cfg.Now,
	}
}

// Result describes how a send ended.
type Result struct {
	State types.SendState

	// Confirmed holds the server messages appended during reconciliation.
	Confirmed []types.Message

	// Warning is set when the user message was stored but the agent reply failed.
	Warning *types.PartialFailure

	// Draft is the user's text, returned on rollback so it can be restored.
	Draft string

	// Stale reports that the selection changed while the request was in
	// flight and the response was not applied.
	Stale bool
}

// Pending is a dispatched-but-unconfirmed send.
type Pending struct {
	TempID         string
	ConversationID string
	AgentID        string
	Draft          string
	Content        string

	t          *Timeline
	scope      uint64
	dispatched atomic.Bool
}

type sendRequest struct {
	Content        string       `json:"content"`
	Sender         types.Sender `json:"sender"`
	AgentID        string       `json:"agentId"`
	ConversationID string       `json:"conversationId"`
}

// Open scopes the timeline to a conversation with an empty list and no
// fetch. Used for freshly created conversations.
func (t *Timeline) Open(conversationID, agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rescope(conversationID, agentID)
	t.messages = nil
}

// rescope must be called with t.mu held.
func (t *Timeline) rescope(conversationID, agentID string) {
	if t.conversationID == conversationID && t.agentID == agentID {
		return
	}
	t.scope++
	t.conversationID = conversationID
	t.agentID = agentID
	t.pending = nil
	t.state = types.SendIdle
}

// Reset empties the timeline and drops any in-flight send.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scope++
	t.conversationID = ""
	t.agentID = ""
	t.messages = nil
	t.pending = nil
	t.state = types.SendIdle
}

// Load fetches the messages of conversationID, falling back to the
// conversation resource's embedded messages. If both fail the timeline is
// empty and the error is returned. Reloading the conversation that is
// already open keeps an in-flight optimistic entry.
func (t *Timeline) Load(ctx context.Context, conversationID, agentID string) ([]types.Message, error) {
	if conversationID == "" {
		return nil, &types.ValidationError{Field: "conversationId", Reason: "select a conversation first"}
	}

	t.mu.Lock()
	t.rescope(conversationID, agentID)
	t.loadSeq++
	scope, seq := t.scope, t.loadSeq
	t.mu.Unlock()

	msgs, err := t.fetch(ctx, conversationID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if scope != t.scope || seq != t.loadSeq {
		t.logger.Warn("discarding stale message list", zap.String("conversation_id", conversationID))
		return copyMessages(t.messages), nil
	}
	if err != nil {
		t.messages = t.withPending(nil)
		return copyMessages(t.messages), err
	}
	t.messages = t.withPending(msgs)
	return copyMessages(t.messages), nil
}

func (t *Timeline) fetch(ctx context.Context, conversationID string) ([]types.Message, error) {
	path := "/conversations/" + url.PathEscape(conversationID)

	var msgs []types.Message
	primaryErr := t.gw.Get(ctx, path+"/messages", nil, &msgs)
	if primaryErr == nil {
		return msgs, nil
	}

	t.logger.Warn("message list failed, falling back to conversation resource",
		zap.String("conversation_id", conversationID),
		zap.Error(primaryErr))

	var conv types.Conversation
	if err := t.gw.Get(ctx, path, nil, &conv); err != nil {
		return nil, fmt.Errorf("load messages: %w", errors.Join(primaryErr, err))
	}
	return conv.Messages, nil
}

// withPending appends the in-flight optimistic entry to msgs. Must be called with t.mu held.
func (t *Timeline) withPending(msgs []types.Message) []types.Message {
	if t.pending == nil {
		return msgs
	}
	for _, m := range t.messages {
		if m.ID == t.pending.TempID {
			return append(msgs, m)
		}
	}
	return msgs
}

// Begin validates a send and appends the optimistic user message. Nothing
// is sent yet; call Dispatch on the returned Pending. A *types.ValidationError
// means the send was not started and no state changed: the content is empty
// with no attachments, no conversation is open, or a send is in flight.
func (t *Timeline) Begin(content string, attachments []types.UploadedFile) (*Pending, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conversationID == "" {
		return nil, &types.ValidationError{Field: "conversationId", Reason: "select a conversation first"}
	}
	if err := t.validator.ValidateSend(content, len(attachments), t.pending != nil); err != nil {
		return nil, err
	}

	now := t.now()
	draft := t.validator.Sanitize(content)
	p := &Pending{
		TempID:         newTempID(now),
		ConversationID: t.conversationID,
		AgentID:        t.agentID,
		Draft:          draft,
		Content:        Compose(draft, attachments),
		t:              t,
		scope:          t.scope,
	}

	t.messages = append(t.messages, types.Message{
		ID:        p.TempID,
		Content:   p.Content,
		Sender:    types.SenderUser,
		CreatedAt: now,
	})
	t.pending = p
	t.state = types.SendSending
	return p, nil
}

// Send runs Begin and Dispatch.
func (t *Timeline) Send(ctx context.Context, content string, attachments []types.UploadedFile) (Result, error) {
	p, err := t.Begin(content, attachments)
	if err != nil {
		return Result{State: t.State()}, err
	}
	return p.Dispatch(ctx)
}

// Dispatch posts the pending message and reconciles or rolls back. It may
// be called once.
func (p *Pending) Dispatch(ctx context.Context) (Result, error) {
	if !p.dispatched.CompareAndSwap(false, true) {
		return Result{}, errors.New("send already dispatched")
	}
	t := p.t

	body := sendRequest{
		Content:        p.Content,
		Sender:         types.SenderUser,
		AgentID:        p.AgentID,
		ConversationID: p.ConversationID,
	}
	var raw json.RawMessage
	path := "/conversations/" + url.PathEscape(p.ConversationID) + "/messages"
	if err := t.gw.Post(ctx, path, body, &raw); err != nil {
		return t.rollback(p, err)
	}

	resp, err := parseSendResponse(raw)
	if err != nil {
		t.logger.Warn("unreadable send response, relying on refetch",
			zap.String("conversation_id", p.ConversationID),
			zap.Error(err))
	}

	res := t.reconcile(p, resp)
	if res.Stale {
		return res, nil
	}

	if resp.aiError != "" {
		res.Warning = &types.PartialFailure{Reason: resp.aiError}
		t.logger.Warn("agent reply failed",
			zap.String("conversation_id", p.ConversationID),
			zap.String("agent_id", p.AgentID),
			zap.String("error", resp.aiError))
	}

	t.refresh(ctx, p)
	return res, nil
}

func (t *Timeline) rollback(p *Pending, cause error) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := fmt.Errorf("send message: %w", cause)
	if p.scope != t.scope {
		t.logger.Warn("send failed after selection change",
			zap.String("conversation_id", p.ConversationID),
			zap.Error(cause))
		return Result{State: types.SendRolledBack, Draft: p.Draft, Stale: true}, err
	}

	t.messages = removeID(t.messages, p.TempID)
	t.pending = nil
	t.state = types.SendRolledBack
	t.logger.Info("rolled back optimistic message",
		zap.String("conversation_id", p.ConversationID),
		zap.String("temp_id", p.TempID),
		zap.Error(cause))
	return Result{State: types.SendRolledBack, Draft: p.Draft}, err
}

func (t *Timeline) reconcile(p *Pending, resp sendResponse) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.scope != t.scope {
		t.logger.Warn("discarding send response for a deselected conversation",
			zap.String("conversation_id", p.ConversationID))
		return Result{State: types.SendReconciled, Stale: true}
	}

	confirmed := resp.confirmed()
	msgs := removeID(t.messages, p.TempID)
	appended := make([]types.Message, 0, len(confirmed))
	for _, m := range confirmed {
		if m.ID == "" || containsID(msgs, m.ID) {
			continue
		}
		msgs = append(msgs, m)
		appended = append(appended, m)
	}
	t.messages = msgs
	t.pending = nil
	t.state = types.SendReconciled
	return Result{State: types.SendReconciled, Confirmed: appended}
}

// refresh re-fetches the list once after a successful send.
func (t *Timeline) refresh(ctx context.Context, p *Pending) {
	msgs, err := t.fetch(ctx, p.ConversationID)
	if err != nil {
		t.logger.Warn("post-send refetch failed",
			zap.String("conversation_id", p.ConversationID),
			zap.Error(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p.scope != t.scope {
		return
	}
	t.messages = t.withPending(msgs)
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyMessages(t.messages)
}

// State returns the send state of the open conversation.
func (t *Timeline) State() types.SendState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Sending reports whether a send is in flight.
func (t *Timeline) Sending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// ConversationID returns the open conversation, or "".
func (t *Timeline) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

func newTempID(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", types.TempIDPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// sendResponse is the tolerated shape of a send reply.
type sendResponse struct {
	userMessage *types.Message
	aiMessage   *types.Message
	messages    []types.Message
	aiError     string
}

// confirmed applies the precedence: explicit fields, else the list.
func (r sendResponse) confirmed() []types.Message {
	if r.userMessage != nil || r.aiMessage != nil {
		out := make([]types.Message, 0, 2)
		if r.userMessage != nil {
			out = append(out, *r.userMessage)
		}
		if r.aiMessage != nil {
			out = append(out, *r.aiMessage)
		}
		return out
	}
	return r.messages
}

func parseSendResponse(raw json.RawMessage) (sendResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return sendResponse{}, nil
	}

	if raw[0] == '[' {
		var msgs []types.Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return sendResponse{}, err
		}
		return sendResponse{messages: msgs}, nil
	}

	var wire struct {
		UserMessage *types.Message  `json:"userMessage"`
		AIMessage   *types.Message  `json:"aiMessage"`
		Messages    []types.Message `json:"messages"`
		AIError     json.RawMessage `json:"aiError"`

		// A bare message object.
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return sendResponse{}, err
	}

	resp := sendResponse{
		userMessage: wire.UserMessage,
		aiMessage:   wire.AIMessage,
		messages:    wire.Messages,
		aiError:     errorText(wire.AIError),
	}
	if resp.userMessage == nil && resp.aiMessage == nil && resp.messages == nil && wire.ID != "" {
		var m types.Message
		if err := json.Unmarshal(raw, &m); err == nil {
			resp.userMessage = &m
		}
	}
	return resp, nil
}

// errorText renders aiError, which may be a string, an object or a boolean.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func removeID(msgs []types.Message, id string) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func containsID(msgs []types.Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

func copyMessages(in []types.Message) []types.Message {
	out := make([]types.Message, len(in))
	copy(out, in)
	return out
}
