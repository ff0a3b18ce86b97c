package pipeline

import "vigil/internal/stage"

// Observer receives every stage status change of every run.
type Observer interface {
	OnStageChange(name stage.Name, status stage.Status)
}

// RunObserver is optionally implemented by observers that track run
// boundaries.
type RunObserver interface {
	OnRunStarted(info RunInfo)
}

// OutcomeObserver is optionally implemented by observers that want the
// terminal outcome of each run.
type OutcomeObserver interface {
	OnRunFinished(outcome Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(name stage.Name, status stage.Status)

func (f ObserverFunc) OnStageChange(name stage.Name, status stage.Status) { f(name, status) }
