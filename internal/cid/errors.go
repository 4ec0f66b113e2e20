package cid

import (
	"errors"
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// VerificationError reports a store entry whose key is not the hash of its payload.
type VerificationError struct {
	// TypeName is the store: "value", "tetraplet", "canon_element",
	// "canon_result" or "service_result".
	TypeName string

	// CID is the key the payload was stored under.
	CID ir.CID

	// Actual is the CID the payload hashes to, if it could be computed.
	Actual ir.CID

	// Err is set when the payload could not be encoded at all.
	Err error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s store entry %s cannot be hashed: %v", e.TypeName, e.CID, e.Err)
	}
	return fmt.Sprintf("%s store entry %s hashes to %s", e.TypeName, e.CID, e.Actual)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// DanglingReferenceError reports a payload that references a CID missing
// from the store it points into.
type DanglingReferenceError struct {
	From    string
	FromCID ir.CID
	To      string
	ToCID   ir.CID
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %s references missing %s %s", e.From, e.FromCID, e.To, e.ToCID)
}

// NotFoundError is returned by Tracker lookups for unknown CIDs.
type NotFoundError struct {
	TypeName string
	CID      ir.CID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s for CID %s not found", e.TypeName, e.CID)
}

// IsVerificationError returns true if err is or wraps a *VerificationError.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
