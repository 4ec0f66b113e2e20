package stream

import (
	"slices"
	"strings"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// CanonElement is one value of a canon stream.
type CanonElement struct {
	Result     ir.Value
	Tetraplet  ir.Tetraplet
	Provenance ir.Provenance
}

// Canon is a frozen snapshot of a stream or stream map.
type Canon struct {
	// CID addresses the canon result aggregate.
	CID ir.CID

	// Tetraplet names the peer that froze the stream.
	Tetraplet ir.Tetraplet

	Values []CanonElement

	// IsMap is set for snapshots of stream maps. Map canons are ordered by
	// key and support key lookup.
	IsMap bool
}

// Len returns the number of values.
func (c *Canon) Len() int {
	return len(c.Values)
}

// AsArray returns the values as an array.
func (c *Canon) AsArray() ir.Array {
	out := make(ir.Array, len(c.Values))
	for i, v := range c.Values {
		out[i] = v.Result
	}
	return out
}

// Tetraplets returns the tetraplet of every value.
func (c *Canon) Tetraplets() []ir.Tetraplet {
	out := make([]ir.Tetraplet, len(c.Values))
	for i, v := range c.Values {
		out[i] = v.Tetraplet
	}
	return out
}

// Lookup returns the first value stored under key in a map canon.
func (c *Canon) Lookup(key ir.Value) (CanonElement, bool) {
	for _, elem := range c.Values {
		k, v, ok := SplitPair(elem.Result)
		if !ok || !ir.Equal(k, key) {
			continue
		}
		elem.Result = v
		return elem, true
	}
	return CanonElement{}, false
}

// SnapshotValues converts stream values into canon elements in iteration order.
func SnapshotValues(values []Value) []CanonElement {
	out := make([]CanonElement, len(values))
	for i, v := range values {
		out[i] = CanonElement{Result: v.Result, Tetraplet: v.Tetraplet, Provenance: v.Provenance}
	}
	return out
}

// SortMapElements orders pair elements by key: strings ascending first, then
// integers ascending. Elements with the same key keep insertion order.
func SortMapElements(elems []CanonElement) []CanonElement {
	out := slices.Clone(elems)
	slices.SortStableFunc(out, func(a, b CanonElement) int {
		ka, _, _ := SplitPair(a.Result)
		kb, _, _ := SplitPair(b.Result)
		return compareMapKeys(ka, kb)
	})
	return out
}

func compareMapKeys(a, b ir.Value) int {
	as, aIsString := a.(ir.String)
	bs, bIsString := b.(ir.String)
	switch {
	case aIsString && bIsString:
		return strings.Compare(string(as), string(bs))
	case aIsString:
		return -1
	case bIsString:
		return 1
	}

	ai, _ := a.(ir.Int)
	bi, _ := b.(ir.Int)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	}
	return 0
}
