// Package interpreter is the entry point of one peer turn.
//
// Call takes a script, the data this peer kept from its previous turn, the
// data that arrived with the particle and the host's call results, and
// returns the outgoing data together with the call requests and the peers
// the particle must be sent to next.
//
// A turn has three phases:
//
//	Prepare   decode both blobs, check versions, verify every CID store
//	          and every signature
//	Execute   walk the script over the merged traces (package execution)
//	Finalize  compact streams, sign the CIDs this peer authored, encode
//
// An error in any phase other than a catchable script error leaves the
// previous data untouched: the outcome carries it back verbatim so the host
// can retry or drop the particle.
package interpreter
