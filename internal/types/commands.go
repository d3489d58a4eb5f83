package types

// RunMode selects how a tool command is invoked.
type RunMode string

const (
	// ModeTest is a dry run routed to the process endpoint.
	ModeTest RunMode = "test"
	// ModeExecute may have side effects.
	ModeExecute RunMode = "execute"
)

// CommandType classifies a tool command run. The operator must pick one.
type CommandType string

const (
	CommandExecute   CommandType = "execute"
	CommandQuery     CommandType = "query"
	CommandUpdate    CommandType = "update"
	CommandCreate    CommandType = "create"
	CommandDelete    CommandType = "delete"
	CommandTransform CommandType = "transform"
)

// CommandTypes lists every valid CommandType in display order.
var CommandTypes = []CommandType{
	CommandExecute,
	CommandQuery,
	CommandUpdate,
	CommandCreate,
	CommandDelete,
	CommandTransform,
}

// Valid reports whether t is one of CommandTypes.
func (t CommandType) Valid() bool {
	for _, c := range CommandTypes {
		if t == c {
			return true
		}
	}
	return false
}

// Valid reports whether m is a known mode.
func (m RunMode) Valid() bool {
	return m == ModeTest || m == ModeExecute
}
