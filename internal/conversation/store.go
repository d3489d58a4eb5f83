// Package conversation loads and creates conversations for the active agent.
package conversation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"go.uber.org/zap"
)

// Store owns the conversation list of one agent and the selection pointer.
type Store struct {
	gw     gateway.Requester
	logger *zap.Logger
	now    func() time.Time

	mu            sync.RWMutex
	agentID       string
	conversations []types.Conversation
	selectedID    string
	generation    uint64
}

// New creates an empty store.
func New(gw gateway.Requester, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{gw: gw, logger: logger, now: time.Now}
}

// DefaultTitle is used when a conversation is created without a title.
func DefaultTitle(t time.Time) string {
	return "New Conversation " + t.Format("Jan 2, 2006 15:04:05")
}

// Load replaces the list with the conversations of agentID and clears the
// selection if the agent changed. A load superseded by a later Load or Reset
// is discarded.
func (s *Store) Load(ctx context.Context, agentID string) ([]types.Conversation, error) {
	if agentID == "" {
		return nil, &types.ValidationError{Field: "agentId", Reason: "select an agent first"}
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.agentID != agentID {
		s.agentID = agentID
		s.conversations = nil
		s.selectedID = ""
	}
	s.mu.Unlock()

	var convs []types.Conversation
	err := s.gw.Get(ctx, "/conversations", url.Values{"agentId": {agentID}}, &convs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Warn("discarding stale conversation list", zap.String("agent_id", agentID))
		return copyConversations(s.conversations), nil
	}
	if err != nil {
		s.logger.Warn("failed to load conversations", zap.String("agent_id", agentID), zap.Error(err))
		s.conversations = nil
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	s.conversations = convs
	if _, ok := find(convs, s.selectedID); !ok {
		s.selectedID = ""
	}
	return copyConversations(convs), nil
}

// Create posts a new conversation, prepends it and selects it. An empty
// title defaults to a timestamp.
func (s *Store) Create(ctx context.Context, agentID, title string) (types.Conversation, error) {
	if agentID == "" {
		return types.Conversation{}, &types.ValidationError{Field: "agentId", Reason: "select an agent first"}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(s.now())
	}

	var conv types.Conversation
	body := map[string]string{"agentId": agentID, "title": title}
	if err := s.gw.Post(ctx, "/conversations", body, &conv); err != nil {
		return types.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if conv.ID == "" {
		return types.Conversation{}, fmt.Errorf("create conversation: response carried no id")
	}
	if conv.AgentID == "" {
		conv.AgentID = agentID
	}
	if conv.Title == "" {
		conv.Title = title
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agentID != agentID {
		// The agent changed while the request was in flight.
		s.logger.Warn("created conversation for a deselected agent",
			zap.String("agent_id", agentID),
			zap.String("conversation_id", conv.ID))
		return conv, nil
	}
	s.conversations = append([]types.Conversation{conv}, s.conversations...)
	s.selectedID = conv.ID
	return conv, nil
}

// Select makes id the active conversation. It reports whether the selection changed.
func (s *Store) Select(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := find(s.conversations, id); !ok {
		return false, &types.ValidationError{Field: "conversationId", Reason: fmt.Sprintf("unknown conversation %q", id)}
	}
	if s.selectedID == id {
		return false, nil
	}
	s.selectedID = id
	return true, nil
}

// Reset forgets the list, the agent scope and the selection.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.agentID = ""
	s.conversations = nil
	s.selectedID = ""
}

// Selected returns the active conversation.
func (s *Store) Selected() (types.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.conversations, s.selectedID)
}

// SelectedID returns the active conversation id, or "".
func (s *Store) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

// AgentID returns the agent the list belongs to.
func (s *Store) AgentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentID
}

// Conversations returns a copy of the list.
func (s *Store) Conversations() []types.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyConversations(s.conversations)
}

func find(convs []types.Conversation, id string) (types.Conversation, bool) {
	if id == "" {
		return types.Conversation{}, false
	}
	for _, c := range convs {
		if c.ID == id {
			return c, true
		}
	}
	return types.Conversation{}, false
}

func copyConversations(in []types.Conversation) []types.Conversation {
	out := make([]types.Conversation, len(in))
	copy(out, in)
	return out
}
