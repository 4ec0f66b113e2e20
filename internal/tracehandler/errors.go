package tracehandler

import (
	"errors"
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// Context names the input trace an error refers to.
type Context int

const (
	Previous Context = iota
	Current
)

func (c Context) String() string {
	if c == Previous {
		return "previous"
	}
	return "current"
}

// Error is implemented by every error this package returns.
type Error interface {
	error
	traceHandlerError()
}

// IsTraceError returns true if err is or wraps a trace handler error.
func IsTraceError(err error) bool {
	var te Error
	return errors.As(err, &te)
}

// State FSM errors.

// ParLenOverflow is returned when left+right of a par overflows.
type ParLenOverflow struct {
	Par trace.Par
	Ctx Context
}

func (e *ParLenOverflow) Error() string {
	return fmt.Sprintf("%v from %s trace: subtree lengths overflow", e.Par, e.Ctx)
}

// ParPosOverflow is returned when a par's subtrees reach past the end of its trace.
type ParPosOverflow struct {
	Par trace.Par
	Pos trace.Pos
	Ctx Context
}

func (e *ParPosOverflow) Error() string {
	return fmt.Sprintf("%v at position %d of %s trace points past the end of the trace", e.Par, e.Pos, e.Ctx)
}

// ParLenUnderflow is returned when a par claims more states than remain in
// the enclosing window, or when a par subtree closes with Unused states of
// its input never read.
type ParLenUnderflow struct {
	Par     trace.Par
	Claimed uint32
	Ctx     Context

	Side   Side
	Unused uint32
}

func (e *ParLenUnderflow) Error() string {
	if e.Unused > 0 {
		return fmt.Sprintf("%s subtree of %v from %s trace closed with %d states not replayed", e.Side, e.Par, e.Ctx, e.Unused)
	}
	return fmt.Sprintf("%v from %s trace is longer than the %d states left in its subtree", e.Par, e.Ctx, e.Claimed)
}

// FoldPosOverflow is returned when a lore descriptor points past the end of its trace.
type FoldPosOverflow struct {
	Fold trace.Fold
	Pos  trace.Pos
	Ctx  Context
}

func (e *FoldPosOverflow) Error() string {
	return fmt.Sprintf("%v from %s trace has a subtrace at position %d past the end of the trace", e.Fold, e.Ctx, e.Pos)
}

// FoldLenOverflow is returned when a fold's subtraces are longer than the
// enclosing window.
type FoldLenOverflow struct {
	Fold      trace.Fold
	Count     uint32
	Remaining uint32
	Ctx       Context
}

func (e *FoldLenOverflow) Error() string {
	return fmt.Sprintf("%v from %s trace covers %d states but only %d remain", e.Fold, e.Ctx, e.Count, e.Remaining)
}

// FoldSubtraceUnderflow is returned when a half of a fold iteration closes
// with Unused states of its input never read.
type FoldSubtraceUnderflow struct {
	ValuePos  trace.Pos
	AfterNext bool
	Unused    uint32
	Ctx       Context
}

func (e *FoldSubtraceUnderflow) Error() string {
	half := "before-next"
	if e.AfterNext {
		half = "after-next"
	}
	return fmt.Sprintf("%s half of the fold iteration over the value at %d in %s trace closed with %d states not replayed",
		half, e.ValuePos, e.Ctx, e.Unused)
}

// SubtraceLenOverflow is returned when the subtrace lengths of a fold overflow.
type SubtraceLenOverflow struct {
	Fold  trace.Fold
	Count uint64
}

func (e *SubtraceLenOverflow) Error() string {
	return fmt.Sprintf("%v: total subtrace length %d overflows", e.Fold, e.Count)
}

// FoldIncorrectSubtracesCount is returned when a lore entry does not have
// exactly two descriptors.
type FoldIncorrectSubtracesCount struct {
	Count int
}

func (e *FoldIncorrectSubtracesCount) Error() string {
	return fmt.Sprintf("fold lore must have 2 subtrace descriptors, got %d", e.Count)
}

// SeveralRecordsWithSamePos is returned when two lore entries name the same value.
type SeveralRecordsWithSamePos struct {
	Fold trace.Fold
	Pos  trace.Pos
}

func (e *SeveralRecordsWithSamePos) Error() string {
	return fmt.Sprintf("%v has several records for value position %d", e.Fold, e.Pos)
}

// Keeper errors.

// SetSubtraceLenAndPosFailed is returned when a window does not fit its trace.
type SetSubtraceLenAndPosFailed struct {
	Pos      trace.Pos
	Len      uint32
	TraceLen uint32
	Ctx      Context
}

func (e *SetSubtraceLenAndPosFailed) Error() string {
	return fmt.Sprintf("window (%d, %d) does not fit %s trace of length %d", e.Pos, e.Len, e.Ctx, e.TraceLen)
}

// NoElementAtPosition is returned when a slider reads past its trace.
type NoElementAtPosition struct {
	Pos      trace.Pos
	TraceLen uint32
	Ctx      Context
}

func (e *NoElementAtPosition) Error() string {
	return fmt.Sprintf("no state at position %d of %s trace of length %d", e.Pos, e.Ctx, e.TraceLen)
}

// FSMMismatch is returned when Meet* calls arrive out of order.
type FSMMismatch struct {
	Reason string
}

func (e *FSMMismatch) Error() string {
	return "trace handler misuse: " + e.Reason
}

// Merge errors.

// DifferentExecutedStateExpected is returned when an input trace has a state
// of the wrong kind at the cursor.
type DifferentExecutedStateExpected struct {
	Expected string
	Found    trace.State
	Ctx      Context
}

func (e *DifferentExecutedStateExpected) Error() string {
	return fmt.Sprintf("expected %s state in %s trace, found %v", e.Expected, e.Ctx, e.Found)
}

// IncompatibleCallResults is returned when both traces completed a call differently.
type IncompatibleCallResults struct {
	Prev trace.CallResult
	Cur  trace.CallResult
}

func (e *IncompatibleCallResults) Error() string {
	return fmt.Sprintf("incompatible call results: previous %v, current %v", e.Prev, e.Cur)
}

// ValuesNotEqual is returned when both traces executed a call with different values.
type ValuesNotEqual struct {
	Prev trace.CallResult
	Cur  trace.CallResult
}

func (e *ValuesNotEqual) Error() string {
	return fmt.Sprintf("call results differ: previous %v, current %v", e.Prev, e.Cur)
}

// IncorrectApResult is returned when both traces recorded an ap with
// different numbers of generations.
type IncorrectApResult struct {
	Prev trace.Ap
	Cur  trace.Ap
}

func (e *IncorrectApResult) Error() string {
	return fmt.Sprintf("incompatible ap results: previous %v, current %v", e.Prev, e.Cur)
}

// IncorrectCanonResult is returned when both traces froze a stream into
// different canon results.
type IncorrectCanonResult struct {
	Prev trace.Canon
	Cur  trace.Canon
}

func (e *IncorrectCanonResult) Error() string {
	return fmt.Sprintf("canon results differ: previous %v, current %v", e.Prev, e.Cur)
}

// Generation rewriting errors.

// TracePosPointsToNowhere is returned when the result trace has no state at pos.
type TracePosPointsToNowhere struct {
	Pos trace.Pos
}

func (e *TracePosPointsToNowhere) Error() string {
	return fmt.Sprintf("trace position %d points to nowhere", e.Pos)
}

// TracePosPointsToInvalidState is returned when the state at pos is not a
// stream write.
type TracePosPointsToInvalidState struct {
	Pos   trace.Pos
	State trace.State
}

func (e *TracePosPointsToInvalidState) Error() string {
	return fmt.Sprintf("trace position %d points to %v, expected a stream write", e.Pos, e.State)
}

func (*ParLenOverflow) traceHandlerError()                 {}
func (*ParPosOverflow) traceHandlerError()                 {}
func (*ParLenUnderflow) traceHandlerError()                {}
func (*FoldPosOverflow) traceHandlerError()                {}
func (*FoldLenOverflow) traceHandlerError()                {}
func (*FoldSubtraceUnderflow) traceHandlerError()          {}
func (*SubtraceLenOverflow) traceHandlerError()            {}
func (*FoldIncorrectSubtracesCount) traceHandlerError()    {}
func (*SeveralRecordsWithSamePos) traceHandlerError()      {}
func (*SetSubtraceLenAndPosFailed) traceHandlerError()     {}
func (*NoElementAtPosition) traceHandlerError()            {}
func (*FSMMismatch) traceHandlerError()                    {}
func (*DifferentExecutedStateExpected) traceHandlerError() {}
func (*IncompatibleCallResults) traceHandlerError()        {}
func (*ValuesNotEqual) traceHandlerError()                 {}
func (*IncorrectApResult) traceHandlerError()              {}
func (*IncorrectCanonResult) traceHandlerError()           {}
func (*TracePosPointsToNowhere) traceHandlerError()        {}
func (*TracePosPointsToInvalidState) traceHandlerError()   {}
