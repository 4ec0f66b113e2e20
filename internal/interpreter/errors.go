package interpreter

import (
	"errors"
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/execution"
)

// PreparationKind enumerates the ways a turn can fail before execution.
type PreparationKind int

const (
	AIRParseError PreparationKind = 1 + iota
	DataDecodeFailed
	UnsupportedDataVersion
	CidStoreVerification
	SignatureVerification
	KeyFormatMismatch
	Interrupted
)

// PreparationBase is added to a preparation kind to form its return code.
const PreparationBase = 20000

var preparationNames = map[PreparationKind]string{
	AIRParseError:          "AIRParseError",
	DataDecodeFailed:       "DataDecodeFailed",
	UnsupportedDataVersion: "UnsupportedDataVersion",
	CidStoreVerification:   "CidStoreVerificationError",
	SignatureVerification:  "SignatureVerificationError",
	KeyFormatMismatch:      "KeyFormatMismatch",
	Interrupted:            "Interrupted",
}

func (k PreparationKind) String() string {
	if name, ok := preparationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("PreparationKind(%d)", int(k))
}

// PreparationError reports input the interpreter refused to execute.
type PreparationError struct {
	Kind PreparationKind

	// Source names the blob at fault: "previous" or "current".
	Source string

	// TypeName and CIDRepr identify the offending store entry of a
	// CidStoreVerification error.
	TypeName string
	CIDRepr  string

	Err error
}

func (e *PreparationError) Error() string {
	switch {
	case e.Kind == CidStoreVerification:
		return fmt.Sprintf("%s: %s data: %s store entry %s: %v", e.Kind, e.Source, e.TypeName, e.CIDRepr, e.Err)
	case e.Source != "":
		return fmt.Sprintf("%s: %s data: %v", e.Kind, e.Source, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *PreparationError) Unwrap() error {
	return e.Err
}

// ReturnCode is the ret_code reported for the error.
func (e *PreparationError) ReturnCode() int64 {
	return PreparationBase + int64(e.Kind)
}

// IsPreparationError returns true if err is or wraps a *PreparationError.
func IsPreparationError(err error) bool {
	var pe *PreparationError
	return errors.As(err, &pe)
}

// FinalizationKind enumerates the ways producing outgoing data can fail.
type FinalizationKind int

const (
	SigningFailed FinalizationKind = 1 + iota
	KeyPeerMismatch
	DataEncodeFailed
)

// FinalizationBase is added to a finalization kind to form its return code.
const FinalizationBase = 20200

var finalizationNames = map[FinalizationKind]string{
	SigningFailed:    "SigningFailed",
	KeyPeerMismatch:  "KeyPeerMismatch",
	DataEncodeFailed: "DataEncodeFailed",
}

func (k FinalizationKind) String() string {
	if name, ok := finalizationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FinalizationKind(%d)", int(k))
}

// FinalizationError reports a failure after the script ran.
type FinalizationError struct {
	Kind FinalizationKind
	Err  error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FinalizationError) Unwrap() error {
	return e.Err
}

// ReturnCode is the ret_code reported for the error.
func (e *FinalizationError) ReturnCode() int64 {
	return FinalizationBase + int64(e.Kind)
}

// IsFinalizationError returns true if err is or wraps a *FinalizationError.
func IsFinalizationError(err error) bool {
	var fe *FinalizationError
	return errors.As(err, &fe)
}

// ReturnCode maps any turn error to its ret_code. Errors outside the
// taxonomy are reported with the generic uncatchable code.
func ReturnCode(err error) int64 {
	var (
		pe *PreparationError
		fe *FinalizationError
		ue *execution.UncatchableError
		ce *execution.CatchableError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &pe):
		return pe.ReturnCode()
	case errors.As(err, &fe):
		return fe.ReturnCode()
	case errors.As(err, &ue):
		return ue.ReturnCode()
	case errors.As(err, &ce):
		return ce.ReturnCode()
	default:
		return execution.UncatchableBase
	}
}
