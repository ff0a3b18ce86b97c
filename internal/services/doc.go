// Package services defines shared utilities consumed by the pipeline
// orchestrator and the backend integration.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging and request tracing.
//   - Structured error markers plus the Wrap helper so transport failures,
//     backend rejections, and local validation problems stay distinguishable
//     in logs even though the orchestrator reports them uniformly.
//
// Use these helpers when wiring new backend calls so failure messages and
// observability stay uniform across the pipeline.
package services
