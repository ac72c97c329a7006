// Package reconcile advances conversion jobs toward a terminal status using
// the deployment's authoritative status channel.
//
// Every transition goes through the job store's compare-and-set writes, so
// overlapping runs and redelivered messages are harmless. A failure while
// handling one signal is counted and logged; the rest of the batch continues.
// After signals are applied, inputs of finished jobs are purged from the
// object store.
package reconcile
