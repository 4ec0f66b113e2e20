package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

func val(s string, pos trace.Pos) Value {
	return Value{Result: ir.String(s), Tetraplet: ir.LiteralTetraplet("peer"), Provenance: ir.LiteralProvenance(), TracePos: pos}
}

func results(values []Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v.Result.(ir.String))
	}
	return out
}

// recordingUpdater captures generation rewrites.
type recordingUpdater struct {
	gens map[trace.Pos]uint32
	fail trace.Pos
}

func newRecordingUpdater() *recordingUpdater {
	return &recordingUpdater{gens: map[trace.Pos]uint32{}, fail: ^trace.Pos(0)}
}

func (u *recordingUpdater) UpdateGeneration(pos trace.Pos, gen uint32) error {
	if pos == u.fail {
		return errors.New("no state")
	}
	u.gens[pos] = gen
	return nil
}

func TestIterationOrderAcrossRegions(t *testing.T) {
	s := New(0)
	_, err := s.AddValue(val("new", 5), NewGeneration())
	require.NoError(t, err)
	_, err = s.AddValue(val("cur1", 3), CurrentGeneration(1))
	require.NoError(t, err)
	_, err = s.AddValue(val("prev", 1), PreviousGeneration(0))
	require.NoError(t, err)
	_, err = s.AddValue(val("cur0", 2), CurrentGeneration(0))
	require.NoError(t, err)

	assert.Equal(t, []string{"prev", "cur0", "cur1", "new"}, results(s.Iter()))
	assert.Equal(t, 4, s.Len())
}

func TestNewValuesShareGenerationUntilClosed(t *testing.T) {
	s := New(0)
	g1, _ := s.AddValue(val("a", 0), NewGeneration())
	g2, _ := s.AddValue(val("b", 1), NewGeneration())
	assert.Equal(t, uint32(0), g1)
	assert.Equal(t, uint32(0), g2)

	s.CloseGeneration()
	cursor := s.Cursor()
	g3, _ := s.AddValue(val("c", 2), NewGeneration())
	assert.Equal(t, uint32(1), g3)

	slices := s.SlicesFrom(cursor)
	require.Len(t, slices, 1)
	assert.Equal(t, []string{"c"}, results(slices[0]))
}

func TestCloseGenerationOnEmptyStream(t *testing.T) {
	s := New(0)
	s.CloseGeneration()
	cursor := s.Cursor()
	g, _ := s.AddValue(val("a", 0), NewGeneration())
	assert.Equal(t, uint32(0), g)
	assert.Len(t, s.SlicesFrom(cursor), 1)
}

func TestSliceIterSkipsEmptyGenerations(t *testing.T) {
	var m ValuesMatrix
	m.AddToGeneration(val("a", 0), 0)
	m.AddToGeneration(val("b", 1), 2)

	slices := m.SliceIter(0)
	require.Len(t, slices, 2)
	assert.Equal(t, []string{"a"}, results(slices[0]))
	assert.Equal(t, []string{"b"}, results(slices[1]))
	assert.Equal(t, 3, m.Generations())
	assert.Empty(t, m.SliceIter(3))
}

func TestSizeLimitBoundary(t *testing.T) {
	s := New(DefaultSizeLimit)
	for i := 0; i < DefaultSizeLimit; i++ {
		_, err := s.AddValue(val("x", trace.Pos(i)), NewGeneration())
		require.NoError(t, err, "value %d", i+1)
	}

	_, err := s.AddValue(val("x", 0), NewGeneration())
	require.Error(t, err)
	assert.True(t, IsSizeLimitError(err))
	assert.Equal(t, DefaultSizeLimit, s.Len())
}

func TestCompactifyRewritesGenerations(t *testing.T) {
	s := New(0)
	_, _ = s.AddValue(val("a", 10), CurrentGeneration(0))
	_, _ = s.AddValue(val("b", 11), CurrentGeneration(2))
	_, _ = s.AddValue(val("c", 12), CurrentGeneration(4))

	u := newRecordingUpdater()
	require.NoError(t, s.Compactify(u))

	assert.Equal(t, map[trace.Pos]uint32{10: 0, 11: 1, 12: 2}, u.gens)
	assert.Equal(t, 3, s.current.Generations())
}

func TestCompactifyOrdersRegions(t *testing.T) {
	s := New(0)
	_, _ = s.AddValue(val("new", 3), NewGeneration())
	_, _ = s.AddValue(val("cur", 2), CurrentGeneration(3))
	_, _ = s.AddValue(val("prev", 1), PreviousGeneration(5))

	u := newRecordingUpdater()
	require.NoError(t, s.Compactify(u))
	assert.Equal(t, map[trace.Pos]uint32{1: 0, 2: 1, 3: 2}, u.gens)
}

func TestCompactifyIsFixpoint(t *testing.T) {
	s := New(0)
	_, _ = s.AddValue(val("a", 0), PreviousGeneration(1))
	_, _ = s.AddValue(val("b", 1), CurrentGeneration(3))
	_, _ = s.AddValue(val("c", 2), NewGeneration())
	s.CloseGeneration()
	_, _ = s.AddValue(val("d", 3), NewGeneration())

	first := newRecordingUpdater()
	require.NoError(t, s.Compactify(first))
	second := newRecordingUpdater()
	require.NoError(t, s.Compactify(second))

	assert.Equal(t, first.gens, second.gens)
	for _, g := range s.Slices() {
		assert.NotEmpty(t, g)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, results(s.Iter()))
}

func TestCompactifyPropagatesUpdaterError(t *testing.T) {
	s := New(0)
	_, _ = s.AddValue(val("a", 7), NewGeneration())

	u := newRecordingUpdater()
	u.fail = 7
	err := s.Compactify(u)

	var ce *CompactificationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, trace.Pos(7), ce.Pos)
}

func TestScopeInheritsWithoutWritingBack(t *testing.T) {
	outer := New(0)
	_, err := outer.AddValue(val("a", 0), NewGeneration())
	require.NoError(t, err)

	scoped := outer.Scope()
	_, err = scoped.AddValue(val("b", 1), NewGeneration())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, results(scoped.Iter()))
	assert.Equal(t, []string{"a"}, results(outer.Iter()))
	assert.Equal(t, 2, scoped.Len())

	slices := scoped.Slices()
	require.Len(t, slices, 2)
	assert.Equal(t, []string{"a"}, results(slices[0]))
	assert.Empty(t, scoped.SlicesFrom(scoped.Cursor()))

	u := newRecordingUpdater()
	require.NoError(t, scoped.Compactify(u))
	assert.Equal(t, map[trace.Pos]uint32{1: 0}, u.gens, "inherited values keep the generation of their own stream")
}
