// Package stream implements append-only multi-generation collections and
// their frozen canonical snapshots.
//
// A Stream has three regions (previous, current, new), each a matrix of
// generations. Values recovered from the previous peer's trace go into the
// previous region at the generation recorded there; values recovered from
// this peer's own earlier trace go into the current region; values produced
// on this turn go into the new region. Iteration always visits previous,
// then current, then new.
//
// At the end of a turn Compactify drops empty generations and renumbers the
// survivors contiguously, rewriting the generation recorded in the trace for
// every value through a TraceUpdater.
package stream
