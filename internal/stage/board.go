package stage

import "sync"

// Board is an observer-side copy of a stage list. It applies every change it
// is told about, ignoring stages that are not part of its own list, so one
// change feed can drive boards of different scope.
type Board struct {
	mu     sync.RWMutex
	stages List
}

// NewBoard creates a board for the stages of mode, all pending.
func NewBoard(mode Mode) *Board {
	return &Board{stages: Build(mode)}
}

// OnStageChange updates the named stage if present on the board.
func (b *Board) OnStageChange(name Name, status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.stages.Index(name); idx >= 0 {
		b.stages[idx].Status = status
	}
}

// Reset replaces the board contents with a fresh list for mode.
func (b *Board) Reset(mode Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stages = Build(mode)
}

// Snapshot returns a copy of the board's stages.
func (b *Board) Snapshot() List {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stages.Clone()
}
