// Package preflight provides readiness checks for the local directories and
// external collaborators mediarelay depends on.
//
// These checks run in two contexts:
//   - "mediarelay serve" calls RunAll before starting the scheduler and logs
//     every failure; a failing check does not block startup because every
//     run already tolerates unreachable collaborators.
//   - "mediarelay preflight" renders the results as a table and exits non-zero
//     when a required check fails.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
