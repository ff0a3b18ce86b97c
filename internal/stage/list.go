package stage

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which stages a run executes.
type Mode string

const (
	// ModeFull runs every stage starting from a fresh upload.
	ModeFull Mode = "full"
	// ModePartial reruns Recognition onward against an existing video.
	ModePartial Mode = "partial"
)

// ParseMode resolves a run mode from user input.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ModeFull):
		return ModeFull, nil
	case string(ModePartial), "rerun":
		return ModePartial, nil
	default:
		return "", fmt.Errorf("unknown run mode %q", value)
	}
}

var partialOrder = []Name{Recognition, Interpreter, Visualization}

// List is the ordered set of stages belonging to one run.
type List []Stage

// Build returns a fresh stage list for mode with every stage pending. Unknown
// modes fall back to the full list.
func Build(mode Mode) List {
	names := order
	if mode == ModePartial {
		names = partialOrder
	}
	list := make(List, len(names))
	for i, name := range names {
		list[i] = Stage{Name: name, Status: StatusPending}
	}
	return list
}

// Names returns the stage names of l in order.
func (l List) Names() []Name {
	names := make([]Name, len(l))
	for i, stg := range l {
		names[i] = stg.Name
	}
	return names
}

// Index returns the position of name in l, or -1 when absent.
func (l List) Index(name Name) int {
	for i, stg := range l {
		if stg.Name == name {
			return i
		}
	}
	return -1
}

// Status returns the status of name and whether it is part of l.
func (l List) Status(name Name) (Status, bool) {
	idx := l.Index(name)
	if idx < 0 {
		return "", false
	}
	return l[idx].Status, true
}

// Clone returns a copy of l that shares no storage with it.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}

// CanStart reports whether name may move to in-progress: it must be pending
// and every stage before it must be done.
func (l List) CanStart(name Name) bool {
	idx := l.Index(name)
	if idx < 0 || l[idx].Status != StatusPending {
		return false
	}
	for _, prior := range l[:idx] {
		if prior.Status != StatusDone {
			return false
		}
	}
	return true
}

// ErrTransition reports a status change that would break stage ordering.
var ErrTransition = errors.New("invalid stage transition")

// Set applies a status change to name. Stages only move forward: in-progress
// requires CanStart, and done requires the stage to be in progress.
func (l List) Set(name Name, status Status) error {
	idx := l.Index(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s is not part of this run", ErrTransition, name)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrTransition, status)
	}
	current := l[idx].Status
	switch status {
	case StatusInProgress:
		if !l.CanStart(name) {
			return fmt.Errorf("%w: %s cannot start from %s before earlier stages are done", ErrTransition, name, current)
		}
	case StatusDone:
		if current != StatusInProgress {
			return fmt.Errorf("%w: %s cannot finish from %s", ErrTransition, name, current)
		}
	default:
		return fmt.Errorf("%w: %s cannot return to %s", ErrTransition, name, status)
	}
	l[idx].Status = status
	return nil
}

// Done reports whether every stage in l is done.
func (l List) Done() bool {
	for _, stg := range l {
		if stg.Status != StatusDone {
			return false
		}
	}
	return len(l) > 0
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, stg := range l {
		parts[i] = fmt.Sprintf("%s=%s", stg.Name, stg.Status)
	}
	return strings.Join(parts, " ")
}
