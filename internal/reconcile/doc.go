// Package reconcile holds the pure stages of the change pipeline: merging
// same-cycle observations across sources, merging candidates into the
// persisted snapshot, diffing snapshots and filtering out noise.
//
// Nothing here performs I/O. The aggregator package wires these functions
// to the intake window, the store and the change publisher.
package reconcile
