package stream

import (
	"fmt"
	"slices"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// DefaultSizeLimit is the maximum number of values one stream may hold.
const DefaultSizeLimit = 1024

// Value is one element of a stream together with where it came from.
type Value struct {
	Result     ir.Value
	Tetraplet  ir.Tetraplet
	Provenance ir.Provenance

	// TracePos is the position of the state that wrote the value in the
	// result trace.
	TracePos trace.Pos
}

// Region is one of the three parts of a stream.
type Region int

const (
	RegionPrevious Region = iota
	RegionCurrent
	RegionNew
)

func (r Region) String() string {
	switch r {
	case RegionPrevious:
		return "previous"
	case RegionCurrent:
		return "current"
	case RegionNew:
		return "new"
	default:
		return fmt.Sprintf("Region(%d)", int(r))
	}
}

// Generation addresses a generation in a region. Index is ignored for RegionNew:
// new values always go to the last generation of the new region.
type Generation struct {
	Region Region
	Index  uint32
}

// PreviousGeneration addresses generation idx of the previous region.
func PreviousGeneration(idx uint32) Generation { return Generation{Region: RegionPrevious, Index: idx} }

// CurrentGeneration addresses generation idx of the current region.
func CurrentGeneration(idx uint32) Generation { return Generation{Region: RegionCurrent, Index: idx} }

// NewGeneration addresses the last generation of the new region.
func NewGeneration() Generation { return Generation{Region: RegionNew} }

// Cursor records how many generations each region had at some point.
// Inherited is set once the values inherited from an enclosing scope were
// handed out.
type Cursor struct {
	Inherited bool
	Previous  int
	Current   int
	New       int
}

// TraceUpdater rewrites the generation recorded at a trace position.
type TraceUpdater interface {
	UpdateGeneration(pos trace.Pos, generation uint32) error
}

// Stream is an append-only collection partitioned into generations.
type Stream struct {
	previous ValuesMatrix
	current  ValuesMatrix
	new      ValuesMatrix

	// inherited holds the values of the enclosing stream a new scope
	// started with. They are read-only here: never compacted, never
	// written back.
	inherited []Value

	// openNew makes the next new value start a fresh generation.
	openNew bool
	limit   int
}

// New creates an empty stream holding at most limit values.
// A limit of zero means DefaultSizeLimit.
func New(limit int) *Stream {
	if limit <= 0 {
		limit = DefaultSizeLimit
	}
	return &Stream{limit: limit}
}

// Scope returns an empty stream for a new scope that sees the current
// values of s. Writes to the scoped stream never reach s.
func (s *Stream) Scope() *Stream {
	return &Stream{inherited: s.Iter(), limit: s.limit}
}

// AddValue inserts v and returns the index of the generation it went to
// within its region.
func (s *Stream) AddValue(v Value, gen Generation) (uint32, error) {
	if s.Len() >= s.limit {
		return 0, &SizeLimitError{Limit: s.limit}
	}

	switch gen.Region {
	case RegionPrevious:
		s.previous.AddToGeneration(v, gen.Index)
		return gen.Index, nil
	case RegionCurrent:
		s.current.AddToGeneration(v, gen.Index)
		return gen.Index, nil
	case RegionNew:
		if s.openNew {
			s.new.NewGeneration()
			s.openNew = false
		}
		return s.new.AddToLastGeneration(v), nil
	default:
		return 0, fmt.Errorf("unknown stream region %v", gen.Region)
	}
}

// CloseGeneration makes the next new value open a fresh generation.
func (s *Stream) CloseGeneration() {
	if s.new.Generations() > 0 {
		s.openNew = true
	}
}

// Len returns the number of values in all regions, inherited ones included.
func (s *Stream) Len() int {
	return len(s.inherited) + s.previous.Count() + s.current.Count() + s.new.Count()
}

// Iter returns all values: inherited, previous, current, then new.
func (s *Stream) Iter() []Value {
	out := slices.Clone(s.inherited)
	out = append(out, s.previous.Iter()...)
	out = append(out, s.current.Iter()...)
	return append(out, s.new.Iter()...)
}

// Cursor returns the position after the last generation that can currently
// receive values. Values added after CloseGeneration land beyond it.
func (s *Stream) Cursor() Cursor {
	c := Cursor{
		Inherited: true,
		Previous:  s.previous.Generations(),
		Current:   s.current.Generations(),
		New:       s.new.Generations(),
	}
	return c
}

// SlicesFrom returns one slice per non-empty generation at or after c.
// Inherited values come first, as a single slice.
func (s *Stream) SlicesFrom(c Cursor) [][]Value {
	var out [][]Value
	if !c.Inherited && len(s.inherited) > 0 {
		out = append(out, slices.Clone(s.inherited))
	}
	out = append(out, s.previous.SliceIter(c.Previous)...)
	out = append(out, s.current.SliceIter(c.Current)...)
	return append(out, s.new.SliceIter(c.New)...)
}

// Slices returns one slice per non-empty generation.
func (s *Stream) Slices() [][]Value {
	return s.SlicesFrom(Cursor{})
}

// Compactify drops empty generations and renumbers the rest contiguously:
// previous first, then current, then new. The trace state of every value is
// rewritten to its new generation.
func (s *Stream) Compactify(u TraceUpdater) error {
	var next uint32
	for _, m := range []*ValuesMatrix{&s.previous, &s.current, &s.new} {
		m.RemoveEmptyGenerations()
		for _, g := range m.gens {
			for _, v := range g {
				if err := u.UpdateGeneration(v.TracePos, next); err != nil {
					return &CompactificationError{Pos: v.TracePos, Generation: next, Err: err}
				}
			}
			next++
		}
	}
	s.openNew = false
	return nil
}
