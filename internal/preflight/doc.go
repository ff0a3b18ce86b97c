// Package preflight provides readiness checks for the analysis backend and
// the local paths vigil depends on.
//
// These checks run in two contexts:
//   - "vigil run" and the local API call RunAll before starting a run, so a
//     missing file or an unreachable backend is reported before any stage
//     begins.
//   - "vigil status" displays every result as service health.
package preflight
