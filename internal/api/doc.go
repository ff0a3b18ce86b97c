// Package api serves the local HTTP control surface used by UI observers.
// It starts full and partial runs on a shared orchestrator, exposes the
// current stage board, and streams stage events by sequence number.
//
// # Endpoints
//
// POST /api/runs: start a full run for a local video file.
//
// POST /api/reruns: start a partial run for a previously analysed video.
// Without a videoId the video of the last finished run is reused.
//
// POST /api/reset: discard the retained session and board.
//
// GET /api/status: current board, session, and last outcome.
//
// GET /api/events?since=N&wait=S: events newer than N, optionally waiting up
// to S seconds for the next one.
//
// GET /api/history and /api/history/{id}: journaled runs.
//
// GET /healthz and /metrics for supervision.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Rejected
// runs map to 400 (invalid configuration) and 409 (run already in progress).
// Runs execute on the server context, never on the request context, so a
// client disconnecting does not cancel the analysis.
package api
