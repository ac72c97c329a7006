// Command mediarelay submits media assets for remote transcoding, tracks the
// resulting conversion jobs, and orchestrates subtitle generation.
//
// One-shot commands (submit, status, jobs, subtitles, reconcile, sweep) open
// the job store directly and exit. "mediarelay serve" runs the periodic
// scheduler and the HTTP API until interrupted.
package main
