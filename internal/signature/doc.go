// Package signature signs and verifies the CIDs each peer produced.
//
// A peer is identified by its public key. The textual peer id is the base58
// encoding of a one-byte key format followed by the public key bytes, so any
// peer id can be turned back into a key and checked without a directory.
//
// Two key formats are supported: ed25519 (format 0, 32-byte seed) and
// secp256k1 (format 1, 32-byte scalar). Signatures always cover the
// blake2b-256 digest of the canonical encoding of
//
//	{"cids": [sorted CIDs], "salt": particle_id}
//
// The salt binds a signature to one particle so it cannot be replayed into
// another.
package signature
