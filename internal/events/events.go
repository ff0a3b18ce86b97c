// Package events keeps a bounded, sequenced feed of run and stage changes
// for observers that poll instead of registering callbacks.
package events

import (
	"context"
	"sync"
	"time"

	"vigil/internal/pipeline"
	"vigil/internal/stage"
)

// Type classifies an event.
type Type string

const (
	TypeRunStarted  Type = "run_started"
	TypeStageChange Type = "stage_change"
	TypeRunFinished Type = "run_finished"
)

const defaultMaxEvents = 500

// Event is one sequenced entry in the feed.
type Event struct {
	Seq       int64             `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Type      Type              `json:"type"`
	RunID     string            `json:"run_id,omitempty"`
	Mode      stage.Mode        `json:"mode,omitempty"`
	Stage     stage.Name        `json:"stage,omitzero"`
	Status    stage.Status      `json:"status,omitempty"`
	Outcome   *pipeline.Outcome `json:"outcome,omitempty"`
}

// Bus stores recent events and provides incremental reads. It implements the
// pipeline observer interfaces.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	runID     string
	changed   chan struct{}
}

// NewBus creates a bus that retains at most maxEvents entries.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		changed:   make(chan struct{}),
	}
}

// Publish appends one event and assigns its sequence and timestamp.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RunID == "" {
		event.RunID = b.runID
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	close(b.changed)
	b.changed = make(chan struct{})
	return event
}

// Since returns events with a sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.since(seq)
}

func (b *Bus) since(seq int64) []Event {
	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Wait blocks until events newer than seq exist or ctx ends, then returns
// whatever is available.
func (b *Bus) Wait(ctx context.Context, seq int64) []Event {
	for {
		b.mu.RLock()
		out := b.since(seq)
		changed := b.changed
		b.mu.RUnlock()
		if len(out) > 0 {
			return out
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

// Last returns the sequence of the newest event.
func (b *Bus) Last() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// OnRunStarted records the start of a run.
func (b *Bus) OnRunStarted(info pipeline.RunInfo) {
	b.mu.Lock()
	b.runID = info.ID
	b.mu.Unlock()
	b.Publish(Event{Type: TypeRunStarted, RunID: info.ID, Mode: info.Mode})
}

// OnStageChange records a stage transition.
func (b *Bus) OnStageChange(name stage.Name, status stage.Status) {
	b.Publish(Event{Type: TypeStageChange, Stage: name, Status: status})
}

// OnRunFinished records the outcome of a run.
func (b *Bus) OnRunFinished(outcome pipeline.Outcome) {
	b.Publish(Event{Type: TypeRunFinished, RunID: outcome.RunID, Mode: outcome.Mode, Stage: outcome.Stage, Outcome: &outcome})
}
