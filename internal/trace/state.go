package trace

import (
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Pos is a position in a trace.
type Pos = uint32

// State is one executed-state atom of a trace. It is a sealed interface:
// only Par, Call, Ap, Fold and Canon implement it.
type State interface {
	executedState()
	// Kind returns the short name used in JSON and error messages.
	Kind() string
}

// Par records the sizes of the two subtrees of a par.
type Par struct {
	Left  uint32
	Right uint32
}

func (Par) executedState() {}
func (Par) Kind() string   { return "par" }

// Size returns Left+Right and reports whether it overflowed.
func (p Par) Size() (uint32, bool) {
	sum := p.Left + p.Right
	return sum, sum >= p.Left
}

func (p Par) String() string {
	return fmt.Sprintf("par(%d, %d)", p.Left, p.Right)
}

// Call records the outcome of a call instruction.
type Call struct {
	Result CallResult
}

func (Call) executedState() {}
func (Call) Kind() string   { return "call" }

func (c Call) String() string {
	return fmt.Sprintf("call(%v)", c.Result)
}

// Ap records the generations an ap wrote into.
type Ap struct {
	Generations []uint32
}

func (Ap) executedState() {}
func (Ap) Kind() string   { return "ap" }

func (a Ap) String() string {
	return fmt.Sprintf("ap(%v)", a.Generations)
}

// Fold records the iterations of a fold over a stream.
type Fold struct {
	Lore []SubTraceLore
}

func (Fold) executedState() {}
func (Fold) Kind() string   { return "fold" }

func (f Fold) String() string {
	return fmt.Sprintf("fold(%d iterations)", len(f.Lore))
}

// SubTraceLore describes one fold iteration: the value it processed and the
// two halves of trace the body produced, before and after next.
type SubTraceLore struct {
	ValuePos Pos            `json:"pos"`
	Descs    []SubTraceDesc `json:"desc"`
}

// SubTraceDesc is a contiguous range of trace.
type SubTraceDesc struct {
	BeginPos    Pos    `json:"pos"`
	SubtraceLen uint32 `json:"len"`
}

// Canon records the CID of the canon result a canon instruction produced.
type Canon struct {
	CID ir.CID
}

func (Canon) executedState() {}
func (Canon) Kind() string   { return "canon" }

func (c Canon) String() string {
	return fmt.Sprintf("canon(%s)", c.CID)
}

// CallResult is a sealed interface over the outcomes of a call.
type CallResult interface {
	callResult()
	// Name returns the short name used in JSON and error messages.
	Name() string
}

// Executed is a call that returned a value.
type Executed struct {
	Value ValueRef
}

func (Executed) callResult()  {}
func (Executed) Name() string { return "executed" }

func (e Executed) String() string {
	return fmt.Sprintf("executed(%v)", e.Value)
}

// Failed is a call whose service returned a non-zero code.
// CID addresses the service result aggregate holding the error.
type Failed struct {
	CID ir.CID
}

func (Failed) callResult()  {}
func (Failed) Name() string { return "failed" }

func (f Failed) String() string {
	return fmt.Sprintf("failed(%s)", f.CID)
}

// RequestSentBy is a call waiting for PeerID. CallID is set when the
// request was handed to the local host and the result is expected back
// under that id.
type RequestSentBy struct {
	PeerID string
	CallID *uint32
}

func (RequestSentBy) callResult()  {}
func (RequestSentBy) Name() string { return "sent_by" }

func (r RequestSentBy) String() string {
	if r.CallID != nil {
		return fmt.Sprintf("sent_by(%s, %d)", r.PeerID, *r.CallID)
	}
	return fmt.Sprintf("sent_by(%s)", r.PeerID)
}

// ValueRef is a sealed interface over the ways an executed call result is bound.
type ValueRef interface {
	valueRef()
	// ServiceResultCID returns the CID of the service result aggregate.
	ServiceResultCID() ir.CID
}

// Scalar is a result bound to a scalar.
type Scalar struct {
	CID ir.CID
}

func (Scalar) valueRef()                  {}
func (s Scalar) ServiceResultCID() ir.CID { return s.CID }

func (s Scalar) String() string { return "scalar(" + string(s.CID) + ")" }

// Stream is a result appended to a stream in Generation.
type Stream struct {
	CID        ir.CID
	Generation uint32
}

func (Stream) valueRef()                  {}
func (s Stream) ServiceResultCID() ir.CID { return s.CID }

func (s Stream) String() string { return fmt.Sprintf("stream(%s, %d)", s.CID, s.Generation) }

// Unused is a result that was not bound to any name.
type Unused struct {
	CID ir.CID
}

func (Unused) valueRef()                  {}
func (u Unused) ServiceResultCID() ir.CID { return u.CID }

func (u Unused) String() string { return "unused(" + string(u.CID) + ")" }

// Convenience constructors used across the interpreter and its tests.

// ScalarCall returns Call(Executed(Scalar(cid))).
func ScalarCall(c ir.CID) Call { return Call{Result: Executed{Value: Scalar{CID: c}}} }

// StreamCall returns Call(Executed(Stream(cid, gen))).
func StreamCall(c ir.CID, gen uint32) Call {
	return Call{Result: Executed{Value: Stream{CID: c, Generation: gen}}}
}

// UnusedCall returns Call(Executed(Unused(cid))).
func UnusedCall(c ir.CID) Call { return Call{Result: Executed{Value: Unused{CID: c}}} }

// FailedCall returns Call(Failed(cid)).
func FailedCall(c ir.CID) Call { return Call{Result: Failed{CID: c}} }

// SentBy returns Call(RequestSentBy(peer)).
func SentBy(peer string) Call { return Call{Result: RequestSentBy{PeerID: peer}} }

// SentByWithID returns Call(RequestSentBy(peer, id)).
func SentByWithID(peer string, id uint32) Call {
	return Call{Result: RequestSentBy{PeerID: peer, CallID: &id}}
}
