// Package gatewaytest runs an in-process fake of the console backend for tests.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/go-chi/chi/v5"
)

// Route patterns, usable with Hits, Fail and LastBody.
const (
	RouteAgents             = "GET /agents"
	RouteConversations      = "GET /conversations"
	RouteCreateConversation = "POST /conversations"
	RouteConversation       = "GET /conversations/{id}"
	RouteMessages           = "GET /conversations/{id}/messages"
	RouteSendMessage        = "POST /conversations/{id}/messages"
	RouteTools              = "GET /tools"
	RouteToolCommands       = "GET /tool-commands"
	RouteProcessCommand     = "POST /tool-commands/process"
	RouteExecuteCommand     = "POST /tool-commands/{id}/execute"
	RouteHealth             = "GET /health"
)

// SendRequest is the body of POST /conversations/{id}/messages.
type SendRequest struct {
	Content        string       `json:"content"`
	Sender         types.Sender `json:"sender"`
	AgentID        string       `json:"agentId"`
	ConversationID string       `json:"conversationId"`
}

// Reply is a canned response: Status defaults to 200 and Body is wrapped in {data: ...}
// unless Raw is set.
type Reply struct {
	Status int
	Body   any
	Raw    bool
}

// Backend is a fake backend. Fields may be set before the first request;
// use the methods once requests are in flight.
type Backend struct {
	Agents        []types.Agent
	Conversations []types.Conversation
	Messages      map[string][]types.Message
	Tools         map[string][]types.Tool
	Commands      map[string][]types.ToolCommand

	// SendFunc overrides the default send behaviour (store user message, echo an agent reply).
	// It runs with the backend lock held, so it must touch Messages directly.
	SendFunc func(conversationID string, req SendRequest) Reply
	// RunFunc overrides tool command responses. commandID is empty for the process route.
	RunFunc func(route, commandID string, body map[string]any) Reply
	// SendGate, when set, blocks sends until a value is received or the request is cancelled.
	SendGate chan struct{}

	mu       sync.Mutex
	seq      int
	hits     map[string]int
	bodies   map[string][]byte
	headers  http.Header
	failures map[string]int
	server   *httptest.Server
}

// New starts a backend that is shut down when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		Messages: make(map[string][]types.Message),
		Tools:    make(map[string][]types.Tool),
		Commands: make(map[string][]types.ToolCommand),
		hits:     make(map[string]int),
		bodies:   make(map[string][]byte),
		failures: make(map[string]int),
	}
	b.server = httptest.NewServer(b.router())
	t.Cleanup(b.server.Close)
	return b
}

// URL is the base URL of the fake.
func (b *Backend) URL() string {
	return b.server.URL
}

// Client returns a gateway client pointed at the fake.
func (b *Backend) Client() *gateway.Client {
	return gateway.New(gateway.Config{
		BaseURL: b.server.URL,
		Token:   "test-token",
		UserID:  "tester",
		Timeout: 5 * time.Second,
	})
}

// Close stops the server early, so requests fail with a network error.
func (b *Backend) Close() {
	b.server.Close()
}

// Hits returns how many times a route was requested.
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// Fail makes route answer with status until Recover is called.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = status
}

// Recover removes a failure installed with Fail.
func (b *Backend) Recover(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// LastBody returns the last request body received on route.
func (b *Backend) LastBody(route string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[route]
}

// LastHeaders returns the headers of the last request.
func (b *Backend) LastHeaders() http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers.Clone()
}

// SetMessages replaces the stored messages of a conversation.
func (b *Backend) SetMessages(conversationID string, msgs []types.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Messages[conversationID] = append([]types.Message(nil), msgs...)
}

// StoredMessages returns the messages stored for a conversation.
func (b *Backend) StoredMessages(conversationID string) []types.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Message(nil), b.Messages[conversationID]...)
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/agents", b.handle(RouteAgents, func(r *http.Request, _ []byte) Reply {
		return Reply{Body: b.Agents}
	}))

	r.Get("/conversations", b.handle(RouteConversations, func(r *http.Request, _ []byte) Reply {
		agentID := r.URL.Query().Get("agentId")
		out := make([]types.Conversation, 0)
		for _, c := range b.Conversations {
			if agentID == "" || c.AgentID == agentID {
				out = append(out, c)
			}
		}
		return Reply{Body: out}
	}))

	r.Post("/conversations", b.handle(RouteCreateConversation, func(r *http.Request, body []byte) Reply {
		var req struct {
			AgentID string `json:"agentId"`
			Title   string `json:"title"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return Reply{Status: http.StatusBadRequest, Body: map[string]string{"error": err.Error()}, Raw: true}
		}
		b.seq++
		conv := types.Conversation{
			ID:        fmt.Sprintf("c%d", b.seq),
			Title:     req.Title,
			AgentID:   req.AgentID,
			CreatedAt: time.Now().UTC(),
		}
		b.Conversations = append([]types.Conversation{conv}, b.Conversations...)
		return Reply{Status: http.StatusCreated, Body: conv}
	}))

	r.Get("/conversations/{id}", b.handle(RouteConversation, func(r *http.Request, _ []byte) Reply {
		id := chi.URLParam(r, "id")
		for _, c := range b.Conversations {
			if c.ID == id {
				c.Messages = append([]types.Message{}, b.Messages[id]...)
				return Reply{Body: c}
			}
		}
		return Reply{Status: http.StatusNotFound, Body: map[string]string{"error": "conversation not found"}, Raw: true}
	}))

	r.Get("/conversations/{id}/messages", b.handle(RouteMessages, func(r *http.Request, _ []byte) Reply {
		msgs := b.Messages[chi.URLParam(r, "id")]
		if msgs == nil {
			msgs = []types.Message{}
		}
		return Reply{Body: msgs}
	}))

	r.Post("/conversations/{id}/messages", b.handleSend)

	r.Get("/tools", b.handle(RouteTools, func(r *http.Request, _ []byte) Reply {
		tools := b.Tools[r.URL.Query().Get("agentId")]
		if tools == nil {
			tools = []types.Tool{}
		}
		return Reply{Body: tools}
	}))

	r.Get("/tool-commands", b.handle(RouteToolCommands, func(r *http.Request, _ []byte) Reply {
		cmds := b.Commands[r.URL.Query().Get("toolId")]
		if cmds == nil {
			cmds = []types.ToolCommand{}
		}
		return Reply{Body: cmds}
	}))

	r.Post("/tool-commands/process", b.handle(RouteProcessCommand, func(r *http.Request, body []byte) Reply {
		return b.run(RouteProcessCommand, "", body)
	}))

	r.Post("/tool-commands/{id}/execute", b.handle(RouteExecuteCommand, func(r *http.Request, body []byte) Reply {
		return b.run(RouteExecuteCommand, chi.URLParam(r, "id"), body)
	}))

	r.Get("/health", b.handle(RouteHealth, func(r *http.Request, _ []byte) Reply {
		return Reply{Body: map[string]string{"status": "ok"}, Raw: true}
	}))

	return r
}

// handleSend is registered separately so the gate can wait without holding the lock.
func (b *Backend) handleSend(w http.ResponseWriter, r *http.Request) {
	if gate := b.gate(); gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	b.handle(RouteSendMessage, func(r *http.Request, body []byte) Reply {
		var req SendRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return Reply{Status: http.StatusBadRequest, Body: map[string]string{"error": err.Error()}, Raw: true}
		}
		id := chi.URLParam(r, "id")
		if b.SendFunc != nil {
			return b.SendFunc(id, req)
		}
		b.seq++
		user := types.Message{ID: fmt.Sprintf("m%d", b.seq), Content: req.Content, Sender: types.SenderUser, CreatedAt: time.Now().UTC()}
		b.seq++
		reply := types.Message{ID: fmt.Sprintf("m%d", b.seq), Content: "echo: " + req.Content, Sender: types.SenderAgent, CreatedAt: time.Now().UTC()}
		b.Messages[id] = append(b.Messages[id], user, reply)
		return Reply{Status: http.StatusCreated, Body: map[string]any{"userMessage": user, "aiMessage": reply}}
	})(w, r)
}

func (b *Backend) gate() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.SendGate
}

func (b *Backend) run(route, commandID string, body []byte) Reply {
	params := map[string]any{}
	_ = json.Unmarshal(body, &params)
	if b.RunFunc != nil {
		return b.RunFunc(route, commandID, params)
	}
	mode := "test"
	if route == RouteExecuteCommand {
		mode = "execute"
	}
	return Reply{Body: map[string]any{
		"success":      true,
		"data":         map[string]any{"mode": mode, "request": params},
		"responseTime": 12,
	}}
}

// handle records the request and applies installed failures before fn runs.
// fn runs with the backend lock held.
func (b *Backend) handle(route string, fn func(r *http.Request, body []byte) Reply) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		b.hits[route]++
		b.bodies[route] = body
		b.headers = r.Header.Clone()
		status, failing := b.failures[route]
		var reply Reply
		if failing {
			reply = Reply{Status: status, Body: map[string]string{"error": http.StatusText(status)}, Raw: true}
		} else {
			reply = fn(r, body)
		}
		b.mu.Unlock()

		writeReply(w, reply)
	}
}

func writeReply(w http.ResponseWriter, reply Reply) {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := reply.Body
	if !reply.Raw {
		body = map[string]any{"data": reply.Body}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := body.(string); ok && strings.HasPrefix(s, "{") {
		_, _ = io.WriteString(w, s)
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
