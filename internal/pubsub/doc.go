// Package pubsub publishes subtitle-generation trigger messages.
//
// The HTTP publisher POSTs one JSON message per language to
// <endpoint>/<topic> with an optional bearer token and returns the message
// identifier the broker assigned (or the one this client generated when the
// broker does not echo one). When no endpoint is configured New returns nil
// and callers treat subtitle triggering as unavailable.
package pubsub
