package ir

import (
	"encoding/base32"
	"fmt"
	"strings"

	blake2b "github.com/minio/blake2b-simd"
)

// CIDPrefix is the multibase prefix of lowercase unpadded base32.
const CIDPrefix = "b"

var cidEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CID is a content identifier: base32 of blake2b-256 over the canonical
// encoding of a payload.
type CID string

// String implements fmt.Stringer.
func (c CID) String() string {
	return string(c)
}

// Digest returns blake2b-256 of data.
func Digest(data []byte) []byte {
	h := blake2b.New256()
	h.Write(data)
	return h.Sum(nil)
}

// CIDFromBytes addresses raw canonical bytes.
func CIDFromBytes(canonical []byte) CID {
	return CID(CIDPrefix + strings.ToLower(cidEncoding.EncodeToString(Digest(canonical))))
}

// ValueCID computes the CID of a JSON value.
// Returns error if the value cannot be canonically marshaled.
func ValueCID(v Value) (CID, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueCID: failed to marshal: %w", err)
	}
	return CIDFromBytes(canonical), nil
}

// Addressable is implemented by every payload kept in a CID store.
type Addressable interface {
	// CanonicalValue returns the value whose canonical encoding is hashed.
	CanonicalValue() Value
}

// ComputeCID computes the CID of any store payload.
func ComputeCID(p Addressable) (CID, error) {
	return ValueCID(p.CanonicalValue())
}

// MustComputeCID is like ComputeCID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustComputeCID(p Addressable) CID {
	c, err := ComputeCID(p)
	if err != nil {
		panic(err)
	}
	return c
}

// MustValueCID is like ValueCID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustValueCID(v Value) CID {
	c, err := ValueCID(v)
	if err != nil {
		panic(err)
	}
	return c
}

// ArgumentHash hashes the canonical encoding of call arguments.
// It is recorded on every service result so a replayed call can be matched
// to the arguments it was executed with.
func ArgumentHash(args []Value) (string, error) {
	canonical, err := MarshalCanonical(Array(args))
	if err != nil {
		return "", fmt.Errorf("ArgumentHash: failed to marshal: %w", err)
	}
	return strings.ToLower(cidEncoding.EncodeToString(Digest(canonical))), nil
}
