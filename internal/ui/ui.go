// Package ui provides the terminal chat surface using Bubble Tea.
package ui

import (
	"fmt"
	"strings"

	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/ashutoshrp06/agentdesk/internal/orchestrator"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// maxNotices bounds the notice history below the timeline.
const maxNotices = 50

type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeWarn
	noticeError
)

type notice struct {
	kind noticeKind
	text string
}

// Model is the Bubble Tea model for the chat surface.
type Model struct {
	// UI Components
	textInput textinput.Model
	spinner   spinner.Model
	viewport  viewport.Model
	styles    Styles
	renderer  *glamour.TermRenderer

	// State
	desk     *orchestrator.Desk
	logger   *zap.Logger
	prefs    config.UIConfig
	health   types.HealthStatus
	notices  []notice
	loading  string
	running  map[string]types.RunMode
	width    int
	height   int
	ready    bool
	quitting bool
	started  bool
}

// Options configures the model.
type Options struct {
	Prefs  config.UIConfig
	Logger *zap.Logger
	// Started means the caller already ran desk.Start; Init then skips it.
	Started bool
}

// NewModel creates a new UI model over desk.
func NewModel(desk *orchestrator.Desk, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Message the agent, or /help for commands"
	ti.Focus()
	ti.CharLimit = 100000
	ti.Width = 80

	styles := DefaultStyles()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.DefaultKeyMap()

	return Model{
		textInput: ti,
		spinner:   s,
		viewport:  vp,
		styles:    styles,
		renderer:  newRenderer(80),
		desk:      desk,
		logger:    opts.Logger,
		prefs:     opts.Prefs,
		running:   make(map[string]types.RunMode),
		started:   opts.Started,
	}
}

func newRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// Init starts loading agents, unless the caller already did, and checks
// backend health.
func (m Model) Init() tea.Cmd {
	start := startCmd(m.desk)
	if m.started {
		start = func() tea.Msg { return startedMsg{} }
	}
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		start,
		healthCmd(m.desk),
	)
}

// headerHeight returns the number of terminal lines occupied by the header.
func (m Model) headerHeight() int {
	return lipgloss.Height(m.renderHeader()) + 1
}

// footerHeight returns the number of terminal lines occupied by the input + help bar.
func (m Model) footerHeight() int {
	// input line + newline + help bar (with its top margin)
	return 4
}

// updateViewport rebuilds the viewport content and scrolls to the bottom.
func (m *Model) updateViewport() {
	var b strings.Builder

	for _, msg := range m.desk.Messages() {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	if files := m.desk.Attachments(); len(files) > 0 {
		b.WriteString(m.renderAttachments(files))
		b.WriteString("\n")
	}

	for _, n := range m.notices {
		b.WriteString(m.renderNotice(n))
		b.WriteString("\n")
	}

	if m.loading != "" {
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), m.styles.StateLabel.Render(m.loading+"...")))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) notify(kind noticeKind, format string, args ...any) {
	m.notices = append(m.notices, notice{kind: kind, text: fmt.Sprintf(format, args...)})
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEsc:
			if m.textInput.Value() != "" {
				m.textInput.SetValue("")
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit

		case tea.KeyCtrlO:
			m.prefs.Collapsed = !m.prefs.Collapsed
			return m, nil

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			if strings.HasPrefix(input, "/") {
				cmd := m.handleCommand(input)
				m.updateViewport()
				return m, cmd
			}
			cmd := m.send()
			m.updateViewport()
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 10
		m.renderer = newRenderer(msg.Width - 8)

		vpWidth := msg.Width
		vpHeight := msg.Height - m.headerHeight() - m.footerHeight()
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(vpWidth, vpHeight)
			m.viewport.KeyMap = viewport.DefaultKeyMap()
		} else {
			m.viewport.Width = vpWidth
			m.viewport.Height = vpHeight
		}

		m.ready = true
		m.updateViewport()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.loading != "" || m.desk.Sending() {
			m.updateViewport()
		}

	case HealthMsg:
		if msg.Status != m.health && msg.Status == types.HealthDown && msg.Err != nil {
			m.logger.Warn("backend unreachable", zap.Error(msg.Err))
		}
		m.health = msg.Status

	case PrefsMsg:
		m.prefs = msg.UI
		m.updateViewport()

	default:
		if m.handleResult(msg) {
			m.updateViewport()
			return m, nil
		}
	}

	var tiCmd tea.Cmd
	m.textInput, tiCmd = m.textInput.Update(msg)
	cmds = append(cmds, tiCmd)

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

// send starts an optimistic send of the input. The optimistic entry is on
// screen before the request is dispatched.
func (m *Model) send() tea.Cmd {
	p, err := m.desk.BeginSend(m.textInput.Value())
	if err != nil {
		if !types.IsValidation(err) {
			m.notify(noticeError, "Error: %v", err)
		} else if m.textInput.Value() != "" || m.desk.Sending() {
			m.notify(noticeWarn, "%v", err)
		}
		return nil
	}
	m.textInput.SetValue("")
	return dispatchCmd(p)
}

// handleResult applies a finished asynchronous command. It reports whether
// msg was one.
func (m *Model) handleResult(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case startedMsg:
		m.loading = ""
		if msg.err != nil {
			m.notify(noticeError, "Failed to load agents: %v", msg.err)
			return true
		}
		if agent, ok := m.desk.SelectedAgent(); ok {
			m.notify(noticeInfo, "Agent: %s", agent.Name)
		} else {
			m.notify(noticeWarn, "No active agent. Use /agents to pick one.")
		}

	case agentSelectedMsg:
		m.loading = ""
		if !m.desk.Current(msg.snap) {
			m.logger.Warn("dropping stale agent selection result")
			return true
		}
		if msg.err != nil {
			m.notify(noticeError, "%v", msg.err)
			return true
		}
		agent, _ := m.desk.SelectedAgent()
		m.notify(noticeInfo, "Agent: %s (%d conversations). Use /convs or /new.", agent.Name, len(msg.convs))

	case conversationsLoadedMsg:
		m.loading = ""
		if !m.desk.Current(msg.snap) {
			m.logger.Warn("dropping stale conversation list")
			return true
		}
		if msg.err != nil {
			m.notify(noticeError, "Failed to load conversations: %v", msg.err)
			return true
		}
		m.notify(noticeInfo, "%s", listConversations(msg.convs, msg.snap.ConversationID))

	case conversationOpenedMsg:
		m.loading = ""
		if !m.desk.Current(msg.snap) {
			m.logger.Warn("dropping stale conversation load")
			return true
		}
		if msg.err != nil {
			m.notify(noticeError, "Failed to load messages: %v", msg.err)
		}

	case conversationCreatedMsg:
		m.loading = ""
		if msg.err != nil {
			m.notify(noticeError, "Failed to create conversation: %v", msg.err)
			return true
		}
		m.notify(noticeInfo, "Created %q", msg.conv.Title)

	case sentMsg:
		if msg.res.Stale {
			return true
		}
		if msg.err != nil {
			m.notify(noticeError, "Send failed: %v", msg.err)
			if msg.res.Draft != "" && m.textInput.Value() == "" {
				m.textInput.SetValue(msg.res.Draft)
				m.textInput.CursorEnd()
			}
			return true
		}
		if msg.res.Warning != nil {
			m.notify(noticeWarn, "%v", msg.res.Warning)
		}

	case toolsLoadedMsg:
		m.loading = ""
		if !m.desk.Current(msg.snap) {
			return true
		}
		if msg.err != nil {
			m.notify(noticeError, "Failed to load tools: %v", msg.err)
			return true
		}
		m.notify(noticeInfo, "%s", listTools(msg.tools))

	case toolToggledMsg:
		m.loading = ""
		if !m.desk.Current(msg.snap) {
			return true
		}
		if msg.err != nil {
			m.notify(noticeError, "%v", msg.err)
			return true
		}
		if msg.expanded {
			m.notify(noticeInfo, "%s", listCommands(msg.toolID, msg.cmds))
		}

	case runFinishedMsg:
		delete(m.running, msg.commandID)
		if msg.err != nil {
			m.notify(noticeWarn, "%v", msg.err)
			return true
		}
		if msg.out.Stale || !m.desk.Current(msg.snap) {
			m.notify(noticeWarn, "Discarded a tool result from a previous agent")
			return true
		}
		// Results go to the input for review, never straight to the timeline.
		m.textInput.SetValue(msg.out.Text)
		m.textInput.CursorEnd()
		m.notify(noticeInfo, "Tool result placed in the input. Edit it or press enter to send.")

	default:
		return false
	}
	return true
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return m.styles.SystemMessage.Render("Goodbye!\n")
	}

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.prefs.Collapsed {
		b.WriteString(m.styles.StatusText.Render("(collapsed, ctrl+o to expand)"))
		return m.styles.App.Render(b.String())
	}

	input := m.styles.Prompt.Render("> ") + m.textInput.View()
	if m.prefs.Position == "top" {
		b.WriteString(input)
		b.WriteString("\n")
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(input)
	}
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return m.styles.App.Render(b.String())
}

func (m Model) renderHeader() string {
	parts := []string{m.styles.BannerTitle.Render(Banner())}

	if agent, ok := m.desk.SelectedAgent(); ok {
		label := agent.Name
		if model := agent.Model.String(); model != "" {
			label += " (" + model + ")"
		}
		parts = append(parts, m.styles.HeaderValue.Render(label))
	} else {
		parts = append(parts, m.styles.StatusText.Render("no agent"))
	}

	if conv, ok := m.desk.SelectedConversation(); ok {
		parts = append(parts, m.styles.HeaderValue.Render(conv.Title))
	}

	parts = append(parts, m.renderHealth())
	return strings.Join(parts, m.styles.StatusText.Render("  ·  "))
}

func (m Model) renderHealth() string {
	switch m.health {
	case types.HealthUp:
		return m.styles.ToolSuccess.Render("● " + m.health.String())
	case types.HealthDown:
		return m.styles.ToolError.Render("● " + m.health.String())
	default:
		return m.styles.StatusText.Render("● " + m.health.String())
	}
}

// renderMessage renders a single timeline entry.
func (m Model) renderMessage(msg types.Message) string {
	if msg.Sender == types.SenderUser {
		line := m.styles.UserMessage.Render("You: " + msg.Content)
		if msg.Pending() {
			line += " " + m.spinner.View() + m.styles.StatusText.Render(" sending")
		}
		return line
	}

	name := "Agent"
	if agent, ok := m.desk.SelectedAgent(); ok {
		name = agent.Name
	}
	body := msg.Content
	if m.prefs.Markdown && m.renderer != nil {
		if out, err := m.renderer.Render(body); err == nil {
			return m.styles.AgentName.Render(name+":") + "\n" + strings.TrimRight(out, "\n")
		}
	}
	return m.styles.AssistantMessage.Render(name + ": " + body)
}

func (m Model) renderAttachments(files []types.UploadedFile) string {
	var b strings.Builder
	b.WriteString(m.styles.ToolName.Render(fmt.Sprintf("Attachments (%d)", len(files))))
	for i, f := range files {
		kind := "text"
		if f.Content == nil {
			kind = "binary"
		}
		b.WriteString("\n")
		b.WriteString(m.styles.ToolParams.Render(fmt.Sprintf("  %d. %s [%s, %s, %d bytes] %s", i+1, f.Name, f.Type, kind, f.Size, f.ID)))
	}
	return m.styles.ToolBox.Render(b.String())
}

func (m Model) renderNotice(n notice) string {
	switch n.kind {
	case noticeError:
		return m.styles.ToolError.Render("  " + n.text)
	case noticeWarn:
		return m.styles.Warning.Render("  " + n.text)
	default:
		return m.styles.SystemMessage.Render(n.text)
	}
}

// renderHelpBar renders the bottom help bar.
func (m Model) renderHelpBar() string {
	help := []string{
		m.styles.HelpKey.Render("enter") + m.styles.HelpValue.Render(" send"),
		m.styles.HelpKey.Render("ctrl+c") + m.styles.HelpValue.Render(" quit"),
		m.styles.HelpKey.Render("ctrl+o") + m.styles.HelpValue.Render(" collapse"),
		m.styles.HelpKey.Render("/help") + m.styles.HelpValue.Render(" commands"),
	}
	if m.desk.Sending() {
		help = append(help, m.styles.StateLabel.Render(types.SendSending.String()))
	}
	return m.styles.HelpBar.Render(strings.Join(help, "  |  "))
}
