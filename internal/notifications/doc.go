// Package notifications delivers operator alerts for conversion outcomes.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Callers treat
// delivery failures as warnings; an alert never changes job state.
package notifications
