package trace

import (
	"encoding/json"
	"fmt"
)

// Trace is an ordered sequence of executed states. A Par at position p
// covers positions p+1 .. p+Left (left subtree) and the Right positions
// that follow.
type Trace []State

// Len returns the trace length as a Pos.
func (t Trace) Len() Pos {
	return Pos(len(t))
}

// Get returns the state at pos.
func (t Trace) Get(pos Pos) (State, bool) {
	if int(pos) >= len(t) {
		return nil, false
	}
	return t[pos], true
}

// MarshalJSON encodes the trace as an array of states.
func (t Trace) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, len(t))
	for i, s := range t {
		data, err := MarshalState(s)
		if err != nil {
			return nil, fmt.Errorf("trace[%d]: %w", i, err)
		}
		items[i] = data
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes an array of states.
func (t *Trace) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode trace: %w", err)
	}
	out := make(Trace, len(items))
	for i, item := range items {
		s, err := UnmarshalState(item)
		if err != nil {
			return fmt.Errorf("trace[%d]: %w", i, err)
		}
		out[i] = s
	}
	*t = out
	return nil
}

// Clone returns a deep copy. Ap generations and fold lore are copied so the
// result can be rewritten without touching the original.
func (t Trace) Clone() Trace {
	out := make(Trace, len(t))
	for i, s := range t {
		out[i] = CloneState(s)
	}
	return out
}

// CloneState returns a copy of s that shares no slices with it.
func CloneState(s State) State {
	switch st := s.(type) {
	case Ap:
		return Ap{Generations: append([]uint32(nil), st.Generations...)}
	case Fold:
		lore := make([]SubTraceLore, len(st.Lore))
		for i, l := range st.Lore {
			lore[i] = SubTraceLore{ValuePos: l.ValuePos, Descs: append([]SubTraceDesc(nil), l.Descs...)}
		}
		return Fold{Lore: lore}
	default:
		return s
	}
}
