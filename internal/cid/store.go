package cid

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Store maps CIDs to payloads of one type.
type Store[T ir.Addressable] struct {
	entries map[ir.CID]T
}

// NewStore creates an empty store.
func NewStore[T ir.Addressable]() *Store[T] {
	return &Store[T]{entries: make(map[ir.CID]T)}
}

// Put addresses payload and stores it. Putting the same payload twice is a no-op.
func (s *Store[T]) Put(payload T) (ir.CID, error) {
	c, err := ir.ComputeCID(payload)
	if err != nil {
		return "", err
	}
	if _, ok := s.entries[c]; !ok {
		s.entries[c] = payload
	}
	return c, nil
}

// Get returns the payload stored under c.
func (s *Store[T]) Get(c ir.CID) (T, bool) {
	payload, ok := s.entries[c]
	return payload, ok
}

// Has reports whether c is present.
func (s *Store[T]) Has(c ir.CID) bool {
	_, ok := s.entries[c]
	return ok
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	return len(s.entries)
}

// CIDs returns all keys in ascending order.
func (s *Store[T]) CIDs() []ir.CID {
	keys := make([]ir.CID, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Merge copies every entry of other that s does not have yet.
// Entries are copied verbatim; verification is the caller's job.
func (s *Store[T]) Merge(other *Store[T]) {
	if other == nil {
		return
	}
	for k, v := range other.entries {
		if _, ok := s.entries[k]; !ok {
			s.entries[k] = v
		}
	}
}

// Verify re-hashes every payload in CID order and returns a
// *VerificationError for the first entry whose key is not its hash.
func (s *Store[T]) Verify(typeName string) error {
	for _, key := range s.CIDs() {
		actual, err := ir.ComputeCID(s.entries[key])
		if err != nil {
			return &VerificationError{TypeName: typeName, CID: key, Err: err}
		}
		if actual != key {
			return &VerificationError{TypeName: typeName, CID: key, Actual: actual}
		}
	}
	return nil
}

// MarshalJSON writes the store as a {cid: payload} object.
func (s *Store[T]) MarshalJSON() ([]byte, error) {
	if s == nil || s.entries == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.entries)
}

// UnmarshalJSON reads a {cid: payload} object.
func (s *Store[T]) UnmarshalJSON(data []byte) error {
	entries := make(map[ir.CID]T)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode CID store: %w", err)
	}
	s.entries = entries
	return nil
}

// Set stores payload under an explicit key without hashing.
// Tests and the scenario harness use it to simulate a tampered store.
func (s *Store[T]) Set(c ir.CID, payload T) {
	s.entries[c] = payload
}
