// Package pipeline runs analysis stages against the backend in order.
//
// An Orchestrator owns at most one active run. A run validates its request
// before touching the network, snapshots the run configuration, builds a fresh
// stage list for its mode, and then walks the list strictly sequentially:
// each stage is marked in-progress, its backend call is made, returned
// identifiers are merged into the run's session, and the stage is marked
// done. The first failing call stops the run; that stage stays in-progress
// and the run ends with a Failed outcome naming it.
//
// Detection in a full run also persists the run configuration on the backend
// and links it to the new video before it counts as done, so Preprocess never
// sees a video without a stored configuration.
//
// Observers receive every status change synchronously, in order, from the
// goroutine executing the run.
package pipeline
