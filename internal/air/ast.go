package air

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Instruction is a node of the instruction tree. String renders the node
// back as AIR source.
type Instruction interface {
	fmt.Stringer
	instruction()
}

// Seq runs Left then Right.
type Seq struct{ Left, Right Instruction }

// Par runs both branches.
type Par struct{ Left, Right Instruction }

// Xor runs Right only when Left fails with a catchable error.
type Xor struct{ Left, Right Instruction }

// Match runs Body when Left and Right are equal values.
type Match struct {
	Left, Right Value
	Body        Instruction
}

// Mismatch runs Body when Left and Right differ.
type Mismatch struct {
	Left, Right Value
	Body        Instruction
}

// Fold iterates Iterable binding each element to Iterator. Last, if
// present, runs once after the iteration chain ends.
type Fold struct {
	Iterable Value
	Iterator string
	Body     Instruction
	Last     Instruction
}

// Next continues the enclosing fold over Iterator.
type Next struct{ Iterator string }

// New restricts the scope of Variable to Body.
type New struct {
	Variable Value
	Body     Instruction
}

// Null does nothing.
type Null struct{}

// Ap assigns Arg to a scalar or appends it to a stream.
type Ap struct {
	Arg    Value
	Result Value
}

// ApMap inserts Key -> Value into a stream map.
type ApMap struct {
	Key   Value
	Value Value
	Map   StreamMap
}

// Triplet names the peer, service and function of a call.
type Triplet struct {
	Peer     Value
	Service  Value
	Function Value
}

// Call invokes a service on a peer. Output is nil, a Scalar or a Stream.
type Call struct {
	Triplet Triplet
	Args    []Value
	Output  Value
}

// Canon freezes a stream (or stream map) as seen on Peer.
type Canon struct {
	Peer   Value
	Source Value
	Result Value
}

// FailKind selects the form of a fail instruction.
type FailKind int

const (
	FailScalar FailKind = iota
	FailLastError
	FailError
	FailLiteral
)

// Fail raises a catchable user error.
type Fail struct {
	Kind    FailKind
	Scalar  Scalar
	Code    int64
	Message string
}

func (Seq) instruction()      {}
func (Par) instruction()      {}
func (Xor) instruction()      {}
func (Match) instruction()    {}
func (Mismatch) instruction() {}
func (Fold) instruction()     {}
func (Next) instruction()     {}
func (New) instruction()      {}
func (Null) instruction()     {}
func (Ap) instruction()       {}
func (ApMap) instruction()    {}
func (Call) instruction()     {}
func (Canon) instruction()    {}
func (Fail) instruction()     {}

func (i Seq) String() string { return fmt.Sprintf("(seq %s %s)", i.Left, i.Right) }
func (i Par) String() string { return fmt.Sprintf("(par %s %s)", i.Left, i.Right) }
func (i Xor) String() string { return fmt.Sprintf("(xor %s %s)", i.Left, i.Right) }

func (i Match) String() string {
	return fmt.Sprintf("(match %s %s %s)", i.Left, i.Right, i.Body)
}

func (i Mismatch) String() string {
	return fmt.Sprintf("(mismatch %s %s %s)", i.Left, i.Right, i.Body)
}

func (i Fold) String() string {
	if i.Last != nil {
		return fmt.Sprintf("(fold %s %s %s %s)", i.Iterable, i.Iterator, i.Body, i.Last)
	}
	return fmt.Sprintf("(fold %s %s %s)", i.Iterable, i.Iterator, i.Body)
}

func (i Next) String() string { return "(next " + i.Iterator + ")" }
func (i New) String() string  { return fmt.Sprintf("(new %s %s)", i.Variable, i.Body) }
func (Null) String() string   { return "(null)" }
func (i Ap) String() string   { return fmt.Sprintf("(ap %s %s)", i.Arg, i.Result) }

func (i ApMap) String() string {
	return fmt.Sprintf("(ap (%s %s) %s)", i.Key, i.Value, i.Map)
}

func (i Call) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "(call %s (%s %s) [", i.Triplet.Peer, i.Triplet.Service, i.Triplet.Function)
	for n, arg := range i.Args {
		if n > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(arg.String())
	}
	b.WriteByte(']')
	if i.Output != nil {
		b.WriteByte(' ')
		b.WriteString(i.Output.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (i Canon) String() string {
	return fmt.Sprintf("(canon %s %s %s)", i.Peer, i.Source, i.Result)
}

func (i Fail) String() string {
	switch i.Kind {
	case FailLastError:
		return "(fail %last_error%)"
	case FailError:
		return "(fail :error:)"
	case FailLiteral:
		return fmt.Sprintf("(fail %d %s)", i.Code, strconv.Quote(i.Message))
	default:
		return "(fail " + i.Scalar.String() + ")"
	}
}

// Value is an operand: a literal, a variable or a special form.
type Value interface {
	fmt.Stringer
	value()
}

// Literal is a string, number, boolean or null written in the script.
type Literal struct{ Value ir.Value }

// ArrayLiteral is a [...] list of operands.
type ArrayLiteral struct{ Items []Value }

// InitPeerID is %init_peer_id%.
type InitPeerID struct{}

// Timestamp is %timestamp%.
type Timestamp struct{}

// TTL is %ttl%.
type TTL struct{}

// LastError is %last_error% with an optional lambda.
type LastError struct{ Lambda Lambda }

// ErrorObject is :error: with an optional lambda.
type ErrorObject struct{ Lambda Lambda }

// Scalar is a scalar variable or fold iterator.
type Scalar struct {
	Name   string
	Lambda Lambda
}

// Stream is a $stream.
type Stream struct{ Name string }

// StreamMap is a %map.
type StreamMap struct{ Name string }

// CanonStream is a #canon.
type CanonStream struct {
	Name   string
	Lambda Lambda
}

// CanonMap is a #%canon_map.
type CanonMap struct {
	Name   string
	Lambda Lambda
}

func (Literal) value()      {}
func (ArrayLiteral) value() {}
func (InitPeerID) value()   {}
func (Timestamp) value()    {}
func (TTL) value()          {}
func (LastError) value()    {}
func (ErrorObject) value()  {}
func (Scalar) value()       {}
func (Stream) value()       {}
func (StreamMap) value()    {}
func (CanonStream) value()  {}
func (CanonMap) value()     {}

func (v Literal) String() string {
	data, err := ir.MarshalCanonical(v.Value)
	if err != nil {
		return "<invalid literal>"
	}
	return string(data)
}

func (v ArrayLiteral) String() string {
	parts := make([]string, len(v.Items))
	for i, item := range v.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (InitPeerID) String() string    { return "%init_peer_id%" }
func (Timestamp) String() string     { return "%timestamp%" }
func (TTL) String() string           { return "%ttl%" }
func (v LastError) String() string   { return "%last_error%" + v.Lambda.String() }
func (v ErrorObject) String() string { return ":error:" + v.Lambda.String() }
func (v Scalar) String() string      { return v.Name + v.Lambda.String() }
func (v Stream) String() string      { return "$" + v.Name }
func (v StreamMap) String() string   { return "%" + v.Name }
func (v CanonStream) String() string { return "#" + v.Name + v.Lambda.String() }
func (v CanonMap) String() string    { return "#%" + v.Name + v.Lambda.String() }

// Lambda is applied to a value after it is resolved. Either Path or
// Length is set; the zero Lambda applies nothing.
type Lambda struct {
	Path    []Accessor
	Length  bool
	Flatten bool
}

// IsEmpty reports whether the lambda applies nothing.
func (l Lambda) IsEmpty() bool {
	return len(l.Path) == 0 && !l.Length
}

// String renders the lambda as it is written after a variable. It is also
// the json_path recorded in tetraplets.
func (l Lambda) String() string {
	if l.IsEmpty() {
		return ""
	}
	var b strings.Builder
	if l.Length {
		b.WriteString(".length")
	} else {
		b.WriteString(".$")
		for _, a := range l.Path {
			b.WriteString(a.String())
		}
	}
	if l.Flatten {
		b.WriteByte('!')
	}
	return b.String()
}

// Accessor is one step of a value path.
type Accessor interface {
	fmt.Stringer
	accessor()
}

// FieldByName selects an object field.
type FieldByName struct{ Name string }

// FieldByScalar selects an object field or array element by the runtime
// value of a scalar.
type FieldByScalar struct{ Name string }

// ArrayIndex selects an array element.
type ArrayIndex struct{ Index uint32 }

func (FieldByName) accessor()   {}
func (FieldByScalar) accessor() {}
func (ArrayIndex) accessor()    {}

func (a FieldByName) String() string   { return "." + a.Name }
func (a FieldByScalar) String() string { return ".[" + a.Name + "]" }
func (a ArrayIndex) String() string    { return ".[" + strconv.FormatUint(uint64(a.Index), 10) + "]" }
