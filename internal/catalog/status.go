package catalog

import "fmt"

// Status is the reconciled lifecycle state of a catalog entry.
type Status uint8

const (
	StatusRegistered Status = iota
	StatusRunning
	StatusStopped
	StatusFailed
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "registered"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "registered", "":
		return StatusRegistered, nil
	case "running":
		return StatusRunning, nil
	case "stopped":
		return StatusStopped, nil
	case "failed":
		return StatusFailed, nil
	case "unknown":
		return StatusUnknown, nil
	default:
		return 0, fmt.Errorf("invalid service status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
