// Package scheduler drives the periodic runs of the conversion engine.
//
// A Scheduler owns one loop per task (status reconciliation, subtitle
// reconciliation and cleanup, staleness sweep). Each loop ticks on its own
// interval and runs its task with a fresh run id and a bounded context. A
// gofrs/flock lock file keeps a second scheduler on the same host from
// starting; overlapping runs from other processes (for example a manual CLI
// invocation) are tolerated because every state transition is a
// compare-and-set on the job store.
package scheduler
