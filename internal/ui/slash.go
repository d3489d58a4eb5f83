package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashutoshrp06/agentdesk/internal/orchestrator"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `Commands:
  /agents                       List agents
  /agent <n|id>                 Switch agent
  /convs                        Reload and list conversations
  /conv <n|id>                  Open a conversation
  /new [title]                  Start a conversation
  /attach <path>                Attach a file to the next message
  /detach <n|id>                Remove an attachment
  /tools                        Open the tool panel
  /cmds <n|tool-id>             Expand or collapse a tool's commands
  /test <command-id> <type> [json]    Dry-run a command
  /exec <command-id> <type> [json]    Execute a command (needs /exec! when confirmation is required)
  /exec! <command-id> <type> [json]   Execute with side effects confirmed
  /help                         Show this help
  /quit                         Exit

Tool results are placed in the input for review before sending.`

// splitCommand splits "/name rest of line" into name and the trimmed rest.
func splitCommand(input string) (string, string) {
	input = strings.TrimSpace(strings.TrimPrefix(input, "/"))
	name, rest, _ := strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// handleCommand processes slash commands.
func (m *Model) handleCommand(input string) tea.Cmd {
	name, arg := splitCommand(input)
	m.textInput.SetValue("")

	switch name {
	case "quit", "exit", "q":
		m.quitting = true
		return tea.Quit

	case "help", "?":
		m.notify(noticeInfo, "%s", helpText)

	case "agents":
		m.notify(noticeInfo, "%s", listAgents(m.desk.Agents(), m.desk.Snapshot().AgentID))

	case "agent":
		agentsList := m.desk.Agents()
		id, ok := resolve(arg, len(agentsList), func(i int) string { return agentsList[i].ID })
		if !ok {
			m.notify(noticeWarn, "usage: /agent <n|id>")
			return nil
		}
		m.loading = "Switching agent"
		return selectAgentCmd(m.desk, id)

	case "convs":
		m.loading = "Loading conversations"
		return loadConversationsCmd(m.desk)

	case "conv":
		convs := m.desk.Conversations()
		id, ok := resolve(arg, len(convs), func(i int) string { return convs[i].ID })
		if !ok {
			m.notify(noticeWarn, "usage: /conv <n|id>")
			return nil
		}
		m.loading = "Loading messages"
		return selectConversationCmd(m.desk, id)

	case "new":
		m.loading = "Creating conversation"
		return createConversationCmd(m.desk, arg)

	case "attach":
		if arg == "" {
			m.notify(noticeWarn, "usage: /attach <path>")
			return nil
		}
		f, err := m.desk.Attach(arg)
		if err != nil {
			m.notify(noticeError, "%v", err)
			return nil
		}
		m.notify(noticeInfo, "Attached %s (%s)", f.Name, f.Type)

	case "detach":
		files := m.desk.Attachments()
		id, ok := resolve(arg, len(files), func(i int) string { return files[i].ID })
		if !ok || !m.desk.Detach(id) {
			m.notify(noticeWarn, "no attachment %q", arg)
		}

	case "tools":
		m.loading = "Loading tools"
		return openToolsCmd(m.desk)

	case "cmds":
		tools := m.desk.Tools()
		id, ok := resolve(arg, len(tools), func(i int) string { return tools[i].ID })
		if !ok {
			m.notify(noticeWarn, "usage: /cmds <n|tool-id> (open /tools first)")
			return nil
		}
		if _, cached := m.desk.CachedCommands(id); !cached {
			m.loading = "Loading commands"
		}
		return toggleToolCmd(m.desk, id)

	case "test", "exec", "exec!":
		return m.runTool(name, arg)

	default:
		m.notify(noticeWarn, "unknown command /%s, try /help", name)
	}
	return nil
}

// runTool parses "<command-id> <type> [json]" and starts the run.
func (m *Model) runTool(name, arg string) tea.Cmd {
	fields := strings.SplitN(arg, " ", 3)
	if len(fields) < 2 {
		m.notify(noticeWarn, "usage: /%s <command-id> <type> [json]", name)
		return nil
	}

	req := orchestrator.RunRequest{
		CommandID: fields[0],
		Mode:      types.ModeTest,
		Type:      types.CommandType(strings.ToLower(fields[1])),
	}
	if len(fields) == 3 {
		req.Params = fields[2]
	}
	if name != "test" {
		req.Mode = types.ModeExecute
		req.Confirmed = name == "exec!"
	}

	if mode, busy := m.running[req.CommandID]; busy {
		m.notify(noticeWarn, "command %s is already running in %s mode", req.CommandID, mode)
		return nil
	}
	m.running[req.CommandID] = req.Mode
	m.notify(noticeInfo, "Running %s (%s)...", req.CommandID, req.Mode)
	return runCmd(m.desk, req)
}

// resolve maps a 1-based index or an id onto an id.
func resolve(arg string, n int, idAt func(int) string) (string, bool) {
	if arg == "" {
		return "", false
	}
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 1 || i > n {
			return "", false
		}
		return idAt(i - 1), true
	}
	return arg, true
}

func listAgents(agentsList []types.Agent, selected string) string {
	if len(agentsList) == 0 {
		return "No agents."
	}
	var b strings.Builder
	b.WriteString("Agents:")
	for i, a := range agentsList {
		marker := " "
		if a.ID == selected {
			marker = "*"
		}
		status := "inactive"
		if a.IsActive {
			status = "active"
		}
		fmt.Fprintf(&b, "\n %s %d. %s [%s] %s", marker, i+1, a.Name, status, a.ID)
		if model := a.Model.String(); model != "" {
			fmt.Fprintf(&b, " (%s)", model)
		}
	}
	return b.String()
}

func listConversations(convs []types.Conversation, selected string) string {
	if len(convs) == 0 {
		return "No conversations. Use /new to start one."
	}
	var b strings.Builder
	b.WriteString("Conversations:")
	for i, c := range convs {
		marker := " "
		if c.ID == selected {
			marker = "*"
		}
		fmt.Fprintf(&b, "\n %s %d. %s", marker, i+1, c.Title)
		if c.Counts != nil && c.Counts.Messages > 0 {
			fmt.Fprintf(&b, " (%d messages)", c.Counts.Messages)
		}
	}
	return b.String()
}

func listTools(tools []types.Tool) string {
	if len(tools) == 0 {
		return "No tools bound to this agent."
	}
	var b strings.Builder
	b.WriteString("Tools:")
	for i, t := range tools {
		state := "enabled"
		if !t.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "\n  %d. %s [%s, %s] %s", i+1, t.Name, t.Type, state, t.ID)
		if t.Description != "" {
			fmt.Fprintf(&b, "\n     %s", t.Description)
		}
	}
	b.WriteString("\nUse /cmds <n> to list a tool's commands.")
	return b.String()
}

func listCommands(toolID string, cmds []types.ToolCommand) string {
	if len(cmds) == 0 {
		return fmt.Sprintf("Tool %s has no commands.", toolID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Commands of %s:", toolID)
	for _, c := range cmds {
		fmt.Fprintf(&b, "\n  %s  %s", c.ID, c.Name)
		if c.Description != "" {
			fmt.Fprintf(&b, " - %s", c.Description)
		}
		if len(c.ExampleParams) > 0 {
			fmt.Fprintf(&b, "\n     example: %s", string(c.ExampleParams))
		}
	}
	fmt.Fprintf(&b, "\nTypes: %s", joinTypes())
	return b.String()
}

func joinTypes() string {
	names := make([]string, len(types.CommandTypes))
	for i, t := range types.CommandTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
