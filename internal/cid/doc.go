// Package cid implements the content-addressed stores that make a trace
// verifiable.
//
// Five typed stores hold values, tetraplets, canon elements, canon results
// and service results, each keyed by the CID of its payload. Loading data
// re-hashes every payload; a mismatch is reported as a *VerificationError
// naming the store and the offending CID.
//
// Tracker is the per-turn builder the executor writes into. It starts from
// the union of the incoming stores and only ever grows.
package cid
