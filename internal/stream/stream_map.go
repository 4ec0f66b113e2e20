package stream

import (
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Map keys and values are stored as {"key": k, "value": v} objects.
const (
	KeyField   = "key"
	ValueField = "value"
)

// Map is a stream of key/value pairs. Keys are strings or integers.
type Map struct {
	stream *Stream
}

// NewMap creates an empty stream map holding at most limit pairs.
func NewMap(limit int) *Map {
	return &Map{stream: New(limit)}
}

// Scope returns an empty map for a new scope that sees the current pairs
// of m.
func (m *Map) Scope() *Map {
	return &Map{stream: m.stream.Scope()}
}

// Insert adds a key/value pair. v.Result is replaced by the pair object.
func (m *Map) Insert(key ir.Value, v Value, gen Generation) (uint32, error) {
	if err := ValidateMapKey(key); err != nil {
		return 0, err
	}
	v.Result = ir.Object{KeyField: key, ValueField: orNull(v.Result)}
	return m.stream.AddValue(v, gen)
}

// Stream returns the underlying stream of pair objects.
func (m *Map) Stream() *Stream {
	return m.stream
}

// ValidateMapKey accepts string and integer keys.
func ValidateMapKey(key ir.Value) error {
	switch key.(type) {
	case ir.String, ir.Int:
		return nil
	default:
		return &UnsupportedMapKeyError{TypeName: ir.TypeName(key)}
	}
}

// SplitPair returns the key and value of a pair object.
func SplitPair(pair ir.Value) (ir.Value, ir.Value, bool) {
	obj, ok := pair.(ir.Object)
	if !ok {
		return nil, nil, false
	}
	key, ok := obj[KeyField]
	if !ok {
		return nil, nil, false
	}
	return key, orNull(obj[ValueField]), true
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
