// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. Run
// outcomes reach it through Observer, which plugs into the pipeline as an
// outcome observer.
package notifications
