// Package history persists a journal of pipeline runs in SQLite.
//
// Each run is recorded when it starts, every stage transition is appended as
// it happens, and the run row is closed with its outcome. Runs that were still
// open when the process died are marked interrupted on the next start, so the
// journal never reports a run as active that no process is executing.
//
// The Recorder adapts a Store to the pipeline observer interfaces.
package history
