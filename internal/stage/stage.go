package stage

import (
	"fmt"
	"strings"
)

// Name identifies one backend processing stage.
type Name struct {
	key string
}

var (
	Upload        = Name{key: "Upload"}
	Detection     = Name{key: "Detection"}
	Preprocess    = Name{key: "Preprocess"}
	Recognition   = Name{key: "Recognition"}
	Interpreter   = Name{key: "Interpreter"}
	Visualization = Name{key: "Visualization"}
)

var order = []Name{Upload, Detection, Preprocess, Recognition, Interpreter, Visualization}

// All returns every stage name in pipeline order.
func All() []Name {
	out := make([]Name, len(order))
	copy(out, order)
	return out
}

// ParseName resolves a stage name case-insensitively.
func ParseName(value string) (Name, error) {
	trimmed := strings.TrimSpace(value)
	for _, name := range order {
		if strings.EqualFold(name.key, trimmed) {
			return name, nil
		}
	}
	return Name{}, fmt.Errorf("unknown stage %q", value)
}

func (n Name) String() string { return n.key }

// IsZero reports whether n is the zero Name (no stage).
func (n Name) IsZero() bool { return n.key == "" }

func (n Name) MarshalText() ([]byte, error) { return []byte(n.key), nil }

func (n *Name) UnmarshalText(data []byte) error {
	parsed, err := ParseName(string(data))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Status is the progress marker of a stage within one run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// Stage pairs a stage name with its current status.
type Stage struct {
	Name   Name   `json:"name"`
	Status Status `json:"status"`
}
