package execution

import (
	"errors"
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// CatchableKind enumerates the errors an xor can recover from.
type CatchableKind int

const (
	LocalServiceError CatchableKind = 1 + iota
	ValueNotContainSuchField
	ValueNotContainSuchArrayIdx
	FieldAccessorAppliedToStream
	IndexAccessNotU32
	ScalarAccessorHasInvalidType
	StreamAccessorHasInvalidType
	CanonStreamNotHaveEnoughValues
	NonStringValueInTripletResolution
	FoldIteratesOverNonArray
	LengthFunctorAppliedToNotArray
	UserError
	InvalidLastErrorObject
	MatchValuesNotEqual
	MismatchValuesEqual
	StreamMapError
)

// CatchableBase is added to a catchable kind to form its return code.
const CatchableBase = 10000

var catchableNames = map[CatchableKind]string{
	LocalServiceError:                 "LocalServiceError",
	ValueNotContainSuchField:          "ValueNotContainSuchField",
	ValueNotContainSuchArrayIdx:       "ValueNotContainSuchArrayIdx",
	FieldAccessorAppliedToStream:      "FieldAccessorAppliedToStream",
	IndexAccessNotU32:                 "IndexAccessNotU32",
	ScalarAccessorHasInvalidType:      "ScalarAccessorHasInvalidType",
	StreamAccessorHasInvalidType:      "StreamAccessorHasInvalidType",
	CanonStreamNotHaveEnoughValues:    "CanonStreamNotHaveEnoughValues",
	NonStringValueInTripletResolution: "NonStringValueInTripletResolution",
	FoldIteratesOverNonArray:          "FoldIteratesOverNonArray",
	LengthFunctorAppliedToNotArray:    "LengthFunctorAppliedToNotArray",
	UserError:                         "UserError",
	InvalidLastErrorObject:            "InvalidLastErrorObjectError",
	MatchValuesNotEqual:               "MatchValuesNotEqual",
	MismatchValuesEqual:               "MismatchValuesEqual",
	StreamMapError:                    "StreamMapError",
}

func (k CatchableKind) String() string {
	if name, ok := catchableNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CatchableKind(%d)", int(k))
}

// Error object fields, as seen through %last_error% and :error:.
const (
	FieldErrorCode   = "error_code"
	FieldMessage     = "message"
	FieldInstruction = "instruction"
	FieldPeerID      = "peer_id"
)

// CatchableError is an error a script can handle with xor.
type CatchableError struct {
	Kind CatchableKind

	// ErrorCode is the error_code of the error object. It is the service
	// ret_code for local service errors, the user code for fail, and the
	// return code of the kind otherwise.
	ErrorCode int64

	Message string

	// Instruction renders the instruction that failed.
	Instruction string

	// PeerID is the peer the error happened on.
	PeerID string
}

// Error implements the error interface.
func (e *CatchableError) Error() string {
	return fmt.Sprintf("%s: %s (instruction=%s)", e.Kind, e.Message, e.Instruction)
}

// ReturnCode is the ret_code reported when the error is not handled.
func (e *CatchableError) ReturnCode() int64 {
	return CatchableBase + int64(e.Kind)
}

// Object renders the error object bound to %last_error% and :error:.
func (e *CatchableError) Object() ir.Object {
	return ErrorObject(e.ErrorCode, e.Message, e.Instruction, e.PeerID)
}

// ErrorObject builds an error object.
func ErrorObject(code int64, message, instruction, peerID string) ir.Object {
	return ir.Object{
		FieldErrorCode:   ir.Int(code),
		FieldMessage:     ir.String(message),
		FieldInstruction: ir.String(instruction),
		FieldPeerID:      ir.String(peerID),
	}
}

// NoErrorObject is bound to %last_error% and :error: before any error.
func NoErrorObject() ir.Object {
	return ErrorObject(0, "", "", "")
}

func newCatchable(kind CatchableKind, format string, args ...any) *CatchableError {
	return &CatchableError{
		Kind:      kind,
		ErrorCode: CatchableBase + int64(kind),
		Message:   fmt.Sprintf(format, args...),
	}
}

// localServiceError renders a failed service call the same way on every peer.
func localServiceError(retCode int64, result ir.Value, peerID string) *CatchableError {
	rendered, err := ir.MarshalCanonical(result)
	if err != nil {
		rendered = []byte(ir.TypeName(result))
	}
	return &CatchableError{
		Kind:      LocalServiceError,
		ErrorCode: retCode,
		Message:   fmt.Sprintf("Local service error, ret_code is %d, error message is '%s'", retCode, rendered),
		PeerID:    peerID,
	}
}

// UncatchableKind enumerates errors that abort the whole execution.
type UncatchableKind int

const (
	TraceError UncatchableKind = 1 + iota
	StreamSizeLimitExceeded
	GenerationCompactification
	CallResultsNotEmpty
	TtlExceeded
	CidError
	ScalarAlreadyDefined
)

// UncatchableBase is added to an uncatchable kind to form its return code.
const UncatchableBase = 20100

var uncatchableNames = map[UncatchableKind]string{
	TraceError:                 "TraceError",
	StreamSizeLimitExceeded:    "StreamSizeLimitExceeded",
	GenerationCompactification: "GenerationCompactificationError",
	CallResultsNotEmpty:        "CallResultsNotEmpty",
	TtlExceeded:                "TtlExceeded",
	CidError:                   "CidError",
	ScalarAlreadyDefined:       "ScalarAlreadyDefined",
}

func (k UncatchableKind) String() string {
	if name, ok := uncatchableNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UncatchableKind(%d)", int(k))
}

// UncatchableError aborts execution. The interpreter then returns the
// incoming data unchanged.
type UncatchableError struct {
	Kind UncatchableKind

	// Instruction renders the instruction that was executing, if any.
	Instruction string

	Err error
}

// Error implements the error interface.
func (e *UncatchableError) Error() string {
	if e.Instruction != "" {
		return fmt.Sprintf("%s: %v (instruction=%s)", e.Kind, e.Err, e.Instruction)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *UncatchableError) Unwrap() error {
	return e.Err
}

// ReturnCode is the ret_code reported for the error.
func (e *UncatchableError) ReturnCode() int64 {
	return UncatchableBase + int64(e.Kind)
}

// IsCatchable returns true if the error can be handled by xor.
// Uses errors.As to handle wrapped errors.
func IsCatchable(err error) bool {
	var ce *CatchableError
	return errors.As(err, &ce)
}

// IsUncatchable returns true if the error aborts execution.
// Uses errors.As to handle wrapped errors.
func IsUncatchable(err error) bool {
	var ue *UncatchableError
	return errors.As(err, &ue)
}

// IsUncatchableKind reports whether err is an uncatchable error of kind.
func IsUncatchableKind(err error, kind UncatchableKind) bool {
	var ue *UncatchableError
	if errors.As(err, &ue) {
		return ue.Kind == kind
	}
	return false
}

func uncatchable(kind UncatchableKind, instr fmt.Stringer, err error) *UncatchableError {
	ue := &UncatchableError{Kind: kind, Err: err}
	if instr != nil {
		ue.Instruction = instr.String()
	}
	return ue
}
