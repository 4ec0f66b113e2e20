package execution

import (
	"math"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/stream"
)

// scalarLookup resolves the scalar named by a dynamic accessor.
type scalarLookup func(name string) (ir.Value, bool)

// applyLambda applies l to v. It reports false when a dynamic accessor
// names a scalar that is not bound yet.
func applyLambda(v ir.Value, l air.Lambda, lookup scalarLookup) (ir.Value, bool, error) {
	if l.Length {
		arr, ok := v.(ir.Array)
		if !ok {
			return nil, false, newCatchable(LengthFunctorAppliedToNotArray,
				"length functor applied to %s, not an array", ir.TypeName(v))
		}
		return ir.Int(len(arr)), true, nil
	}

	for _, acc := range l.Path {
		var err error
		switch a := acc.(type) {
		case air.FieldByName:
			v, err = field(v, a.Name)
		case air.ArrayIndex:
			v, err = index(v, a.Index)
		case air.FieldByScalar:
			key, ok := lookup(a.Name)
			if !ok {
				return nil, false, nil
			}
			v, err = dynamicAccess(v, a.Name, key)
		}
		if err != nil {
			return nil, false, err
		}
	}
	return v, true, nil
}

func field(v ir.Value, name string) (ir.Value, error) {
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, newCatchable(ScalarAccessorHasInvalidType,
			"field accessor .%s applied to %s, not an object", name, ir.TypeName(v))
	}
	f, ok := obj[name]
	if !ok {
		return nil, newCatchable(ValueNotContainSuchField,
			"value '%s' does not contain field '%s'", render(v), name)
	}
	return f, nil
}

func index(v ir.Value, idx uint32) (ir.Value, error) {
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, newCatchable(ScalarAccessorHasInvalidType,
			"array accessor .[%d] applied to %s, not an array", idx, ir.TypeName(v))
	}
	if int(idx) >= len(arr) {
		return nil, newCatchable(ValueNotContainSuchArrayIdx,
			"value '%s' does not contain element with index %d", render(v), idx)
	}
	return arr[idx], nil
}

func dynamicAccess(v ir.Value, name string, key ir.Value) (ir.Value, error) {
	switch k := key.(type) {
	case ir.String:
		return field(v, string(k))
	case ir.Int:
		idx, err := toU32(name, k)
		if err != nil {
			return nil, err
		}
		return index(v, idx)
	default:
		return nil, newCatchable(ScalarAccessorHasInvalidType,
			"accessor %s must be a string or an integer, found %s", name, ir.TypeName(key))
	}
}

func toU32(name string, k ir.Int) (uint32, error) {
	if k < 0 || k > math.MaxUint32 {
		return 0, newCatchable(IndexAccessNotU32, "accessor %s = %d does not fit u32", name, int64(k))
	}
	return uint32(k), nil
}

// applyCanonLambda applies l to a canon stream. The first accessor selects
// an element (by index, or by key for canon maps); the rest of the path is
// applied to that element's value.
func applyCanonLambda(c *stream.Canon, l air.Lambda, lookup scalarLookup) (resolved, bool, error) {
	if l.Length {
		return resolved{
			value:      ir.Int(c.Len()),
			tetraplets: []ir.Tetraplet{c.Tetraplet.WithLambda(l.String())},
			provenance: ir.CanonProvenance(c.CID),
		}, true, nil
	}
	if len(l.Path) == 0 {
		return resolved{
			value:      c.AsArray(),
			tetraplets: c.Tetraplets(),
			provenance: ir.CanonProvenance(c.CID),
		}, true, nil
	}

	elem, ok, err := selectCanonElement(c, l.Path[0], lookup)
	if err != nil || !ok {
		return resolved{}, ok, err
	}

	rest := air.Lambda{Path: l.Path[1:], Flatten: l.Flatten}
	v, ok, err := applyLambda(elem.Result, rest, lookup)
	if err != nil || !ok {
		return resolved{}, ok, err
	}
	return resolved{
		value:      v,
		tetraplets: []ir.Tetraplet{elem.Tetraplet.WithLambda(rest.String())},
		provenance: ir.CanonProvenance(c.CID),
	}, true, nil
}

func selectCanonElement(c *stream.Canon, acc air.Accessor, lookup scalarLookup) (stream.CanonElement, bool, error) {
	var key ir.Value
	switch a := acc.(type) {
	case air.ArrayIndex:
		key = ir.Int(a.Index)
	case air.FieldByName:
		if !c.IsMap {
			return stream.CanonElement{}, false, newCatchable(FieldAccessorAppliedToStream,
				"field accessor .%s applied to canon stream", a.Name)
		}
		key = ir.String(a.Name)
	case air.FieldByScalar:
		v, ok := lookup(a.Name)
		if !ok {
			return stream.CanonElement{}, false, nil
		}
		key = v
	}

	if c.IsMap {
		if err := stream.ValidateMapKey(key); err != nil {
			return stream.CanonElement{}, false, newCatchable(StreamMapError, "%v", err)
		}
		elem, ok := c.Lookup(key)
		if !ok {
			return stream.CanonElement{}, false, newCatchable(ValueNotContainSuchField,
				"canon stream map does not contain key '%s'", render(key))
		}
		return elem, true, nil
	}

	k, ok := key.(ir.Int)
	if !ok {
		return stream.CanonElement{}, false, newCatchable(StreamAccessorHasInvalidType,
			"canon stream accessor must be an integer, found %s", ir.TypeName(key))
	}
	idx, err := toU32(acc.String(), k)
	if err != nil {
		return stream.CanonElement{}, false, err
	}
	if int(idx) >= c.Len() {
		return stream.CanonElement{}, false, newCatchable(CanonStreamNotHaveEnoughValues,
			"canon stream has %d values, index %d is out of range", c.Len(), idx)
	}
	return c.Values[idx], true, nil
}

func render(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return ir.TypeName(v)
	}
	return string(data)
}
