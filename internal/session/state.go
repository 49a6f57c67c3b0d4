package session

// State is the lifecycle of one session instance. Stopped is terminal.
type State int32

const (
	NotRunning State = iota
	Scanning
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "not_running"
	case Scanning:
		return "scanning"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
