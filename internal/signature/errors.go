package signature

import (
	"errors"
	"fmt"
)

var errBadSignature = errors.New("signature does not match")

// KeyError reports a malformed key, secret or peer id.
type KeyError struct {
	Reason string
}

func (e *KeyError) Error() string {
	return "invalid key: " + e.Reason
}

// VerificationError reports a peer whose signature is missing or does not
// cover the CIDs it authored.
type VerificationError struct {
	PeerID string
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("signature of peer %s: %v", e.PeerID, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// ErrMissingSignature is wrapped by VerificationError when a peer authored
// CIDs but left no signature.
var ErrMissingSignature = errors.New("missing signature")

// IsVerificationError returns true if err is or wraps a *VerificationError.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
