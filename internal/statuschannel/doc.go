// Package statuschannel implements the authoritative transcode status
// sources a deployment may configure: a message queue of completion events
// or a key-value status table keyed by content identifier.
//
// Each source satisfies Channel and is selected once per run from
// configuration. Every external vocabulary is mapped through Normalize into
// the local transcode status enum before the reconciler compares anything.
package statuschannel
