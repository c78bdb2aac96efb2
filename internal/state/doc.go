// Package state holds the one consistency-critical structure shared by
// every worker.
//
// The structure is split into sections, one per owning worker: a field
// is written only by its owner but may be read by anyone. All access,
// read or write, goes through a bounded-timeout guard; a caller that
// cannot acquire the guard within the deadline proceeds with defaults
// or stale values instead of stalling its cycle. Cross-field updates
// that must be seen together happen inside a single acquisition.
package state
