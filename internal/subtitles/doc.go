// Package subtitles orchestrates per-language subtitle generation for
// finished conversion jobs.
//
// Request validates every language before touching state, skips languages
// that are already completed or in flight, reopens failed requests in place
// and publishes one trigger per language. ReconcilePending completes requests
// whose artifact appeared and fails those past the timeout. CleanupStale is
// the time-only safety net that recycles stuck requests until the retry
// budget is spent.
package subtitles
