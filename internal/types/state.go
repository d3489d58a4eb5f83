package types

// SendState is the per-conversation send state machine.
type SendState int

const (
	SendIdle SendState = iota
	SendSending
	SendReconciled
	SendRolledBack
)

// String returns a human-readable state name.
func (s SendState) String() string {
	names := [...]string{
		"Idle",
		"Sending",
		"Reconciled",
		"Rolled back",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// HealthStatus is the state of the backend health indicator.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthUp
	HealthDown
)

// String returns a human-readable status.
func (h HealthStatus) String() string {
	switch h {
	case HealthUp:
		return "online"
	case HealthDown:
		return "offline"
	default:
		return "unknown"
	}
}
