// Package jobstore persists conversion jobs and subtitle requests in SQLite.
//
// One ConversionJob row exists per content identifier and one
// SubtitleRequest row per (content identifier, language) pair. Every status
// change is written as a compare-and-set UPDATE gated on the expected
// pre-state, so overlapping reconciliation runs cannot regress a record or
// apply the same transition twice. Methods that perform a transition report
// whether their precondition held; losing the race is not an error.
//
// The channel_events table records every status message drained from the
// queue channel and doubles as that channel's log for the staleness sweeper.
package jobstore
