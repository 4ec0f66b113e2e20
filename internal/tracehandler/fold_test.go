package tracehandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

const testFoldID = 1

// runTwoIterationFold drives the handler the way the executor does for
//
//	(seq (ap "a" $s) (ap "b" $s))
//	(fold $s i (seq (call ...) (next i)))
//
// and returns the calls it met.
func runTwoIterationFold(t *testing.T, h *Handler, results []trace.CallResult) []CallMerge {
	t.Helper()

	for range 2 {
		ap, err := h.MeetApStart()
		require.NoError(t, err)
		gens := []uint32{0}
		if ap.Met {
			gens = ap.Generations
		}
		h.MeetApEnd(gens)
	}

	var met []CallMerge
	require.NoError(t, h.MeetFoldStart(testFoldID))
	for i, valuePos := range []trace.Pos{0, 1} {
		require.NoError(t, h.MeetIterationStart(testFoldID, valuePos))
		merge, err := h.MeetCallStart()
		require.NoError(t, err)
		met = append(met, merge)
		if merge.Met {
			h.MeetCallEnd(merge.Result)
		} else {
			h.MeetCallEnd(results[i])
		}
		if i == 0 {
			require.NoError(t, h.MeetNextStart(testFoldID))
		}
	}
	// Unwind: the second iteration ends, then the first resumes after next.
	require.NoError(t, h.MeetIterationEnd(testFoldID))
	require.NoError(t, h.MeetNextEnd(testFoldID))
	require.NoError(t, h.MeetIterationEnd(testFoldID))
	require.NoError(t, h.MeetFoldEnd(testFoldID))
	return met
}

func TestFoldLoreLayout(t *testing.T) {
	h := New(nil, nil)
	runTwoIterationFold(t, h, []trace.CallResult{
		trace.Executed{Value: trace.Scalar{CID: "b1"}},
		trace.Executed{Value: trace.Scalar{CID: "b2"}},
	})

	expected := trace.Trace{
		trace.Ap{Generations: []uint32{0}},
		trace.Ap{Generations: []uint32{0}},
		trace.Fold{Lore: []trace.SubTraceLore{
			{ValuePos: 0, Descs: []trace.SubTraceDesc{{BeginPos: 3, SubtraceLen: 1}, {BeginPos: 5, SubtraceLen: 0}}},
			{ValuePos: 1, Descs: []trace.SubTraceDesc{{BeginPos: 4, SubtraceLen: 1}, {BeginPos: 5, SubtraceLen: 0}}},
		}},
		trace.ScalarCall("b1"),
		trace.ScalarCall("b2"),
	}
	assert.Equal(t, expected, h.ResultTrace())
}

func TestFoldReplayRealignsIterations(t *testing.T) {
	first := New(nil, nil)
	runTwoIterationFold(t, first, []trace.CallResult{
		trace.Executed{Value: trace.Scalar{CID: "b1"}},
		trace.RequestSentBy{PeerID: "p"},
	})
	prev := first.ResultTrace()

	second := New(prev, nil)
	met := runTwoIterationFold(t, second, []trace.CallResult{nil, trace.Executed{Value: trace.Scalar{CID: "b2"}}})

	require.Len(t, met, 2)
	assert.Equal(t, trace.Executed{Value: trace.Scalar{CID: "b1"}}, met[0].Result)
	assert.Equal(t, trace.RequestSentBy{PeerID: "p"}, met[1].Result)
	assert.Equal(t, prev, second.ResultTrace())
}

func TestStatesAfterFoldFollowTheFold(t *testing.T) {
	prev := trace.Trace{
		trace.Ap{Generations: []uint32{0}},
		trace.Fold{Lore: []trace.SubTraceLore{
			{ValuePos: 0, Descs: []trace.SubTraceDesc{{BeginPos: 2, SubtraceLen: 1}, {BeginPos: 3, SubtraceLen: 0}}},
		}},
		trace.ScalarCall("body"),
		trace.ScalarCall("after"),
	}
	h := New(prev, nil)

	ap, err := h.MeetApStart()
	require.NoError(t, err)
	h.MeetApEnd(ap.Generations)

	require.NoError(t, h.MeetFoldStart(testFoldID))
	require.NoError(t, h.MeetFoldEnd(testFoldID))

	after, err := h.MeetCallStart()
	require.NoError(t, err)
	assert.Equal(t, trace.Executed{Value: trace.Scalar{CID: "after"}}, after.Result)
}

func TestEmptyFold(t *testing.T) {
	h := New(nil, nil)
	require.NoError(t, h.MeetFoldStart(testFoldID))
	require.NoError(t, h.MeetFoldEnd(testFoldID))

	assert.Equal(t, trace.Trace{trace.Fold{Lore: []trace.SubTraceLore{}}}, h.ResultTrace())
}

func TestIterationOverUnknownValueGetsEmptyWindow(t *testing.T) {
	h := New(nil, nil)
	h.MeetApEnd([]uint32{0})
	require.NoError(t, h.MeetFoldStart(testFoldID))
	require.NoError(t, h.MeetIterationStart(testFoldID, 0))

	merge, err := h.MeetCallStart()
	require.NoError(t, err)
	assert.False(t, merge.Met)
}

func TestFoldValidation(t *testing.T) {
	desc := func(pos, n uint32) trace.SubTraceDesc { return trace.SubTraceDesc{BeginPos: pos, SubtraceLen: n} }

	cases := []struct {
		name  string
		trace trace.Trace
		check func(t *testing.T, err error)
	}{
		{
			name: "incorrect subtraces count",
			trace: trace.Trace{trace.Fold{Lore: []trace.SubTraceLore{
				{ValuePos: 0, Descs: []trace.SubTraceDesc{desc(1, 0)}},
			}}},
			check: func(t *testing.T, err error) {
				var e *FoldIncorrectSubtracesCount
				require.ErrorAs(t, err, &e)
				assert.Equal(t, 1, e.Count)
			},
		},
		{
			name: "several records with same pos",
			trace: trace.Trace{trace.Fold{Lore: []trace.SubTraceLore{
				{ValuePos: 7, Descs: []trace.SubTraceDesc{desc(1, 0), desc(1, 0)}},
				{ValuePos: 7, Descs: []trace.SubTraceDesc{desc(1, 0), desc(1, 0)}},
			}}},
			check: func(t *testing.T, err error) {
				var e *SeveralRecordsWithSamePos
				require.ErrorAs(t, err, &e)
				assert.Equal(t, trace.Pos(7), e.Pos)
			},
		},
		{
			name: "pos overflow",
			trace: trace.Trace{trace.Fold{Lore: []trace.SubTraceLore{
				{ValuePos: 0, Descs: []trace.SubTraceDesc{desc(4, 1), desc(5, 0)}},
			}}},
			check: func(t *testing.T, err error) {
				var e *FoldPosOverflow
				require.ErrorAs(t, err, &e)
				assert.Equal(t, trace.Pos(4), e.Pos)
			},
		},
		{
			name: "len overflow",
			trace: trace.Trace{
				trace.Fold{Lore: []trace.SubTraceLore{
					{ValuePos: 0, Descs: []trace.SubTraceDesc{desc(0, 2), desc(2, 0)}},
				}},
				trace.SentBy("p"),
			},
			check: func(t *testing.T, err error) {
				var e *FoldLenOverflow
				require.ErrorAs(t, err, &e)
				assert.Equal(t, uint32(2), e.Count)
				assert.Equal(t, uint32(1), e.Remaining)
			},
		},
		{
			name: "subtrace len overflow",
			trace: trace.Trace{trace.Fold{Lore: []trace.SubTraceLore{
				{ValuePos: 0, Descs: []trace.SubTraceDesc{desc(0, ^uint32(0)), desc(0, 1)}},
			}}},
			check: func(t *testing.T, err error) {
				var e *SubtraceLenOverflow
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name:  "wrong state",
			trace: trace.Trace{trace.Par{}},
			check: func(t *testing.T, err error) {
				var e *DifferentExecutedStateExpected
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "fold", e.Expected)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(tc.trace, nil)
			tc.check(t, h.MeetFoldStart(testFoldID))
		})
	}
}

func TestFoldEventsWithoutStart(t *testing.T) {
	h := New(nil, nil)
	var e *FSMMismatch
	require.ErrorAs(t, h.MeetIterationStart(testFoldID, 0), &e)
	require.ErrorAs(t, h.MeetFoldEnd(testFoldID), &e)

	require.NoError(t, h.MeetFoldStart(testFoldID))
	require.ErrorAs(t, h.MeetNextStart(testFoldID), &e)
	require.ErrorAs(t, h.MeetIterationEnd(testFoldID), &e)
}

// runParNextFold drives the handler the way the executor does for
//
//	(seq (ap "a" $s) (ap "b" $s))
//	(fold $s i (par (call ...) (next i)))
//
// where the second iteration is nested in the right subtree of the first par.
func runParNextFold(t *testing.T, h *Handler, results []trace.CallResult) []CallMerge {
	t.Helper()

	for range 2 {
		ap, err := h.MeetApStart()
		require.NoError(t, err)
		gens := []uint32{0}
		if ap.Met {
			gens = ap.Generations
		}
		h.MeetApEnd(gens)
	}

	var met []CallMerge
	require.NoError(t, h.MeetFoldStart(testFoldID))
	for i, valuePos := range []trace.Pos{0, 1} {
		require.NoError(t, h.MeetIterationStart(testFoldID, valuePos))
		require.NoError(t, h.MeetParStart())
		merge, err := h.MeetCallStart()
		require.NoError(t, err)
		met = append(met, merge)
		if merge.Met {
			h.MeetCallEnd(merge.Result)
		} else {
			h.MeetCallEnd(results[i])
		}
		require.NoError(t, h.MeetParSubtreeEnd(Left))
		if i == 0 {
			require.NoError(t, h.MeetNextStart(testFoldID))
		}
	}
	require.NoError(t, h.MeetParSubtreeEnd(Right))
	require.NoError(t, h.MeetIterationEnd(testFoldID))
	require.NoError(t, h.MeetNextEnd(testFoldID))
	require.NoError(t, h.MeetParSubtreeEnd(Right))
	require.NoError(t, h.MeetIterationEnd(testFoldID))
	require.NoError(t, h.MeetFoldEnd(testFoldID))
	return met
}

func TestParHoldingNextReplays(t *testing.T) {
	first := New(nil, nil)
	runParNextFold(t, first, []trace.CallResult{
		trace.Executed{Value: trace.Scalar{CID: "b1"}},
		trace.RequestSentBy{PeerID: "p"},
	})
	prev := first.ResultTrace()

	assert.Equal(t, trace.Trace{
		trace.Ap{Generations: []uint32{0}},
		trace.Ap{Generations: []uint32{0}},
		trace.Fold{Lore: []trace.SubTraceLore{
			{ValuePos: 0, Descs: []trace.SubTraceDesc{{BeginPos: 3, SubtraceLen: 2}, {BeginPos: 7, SubtraceLen: 0}}},
			{ValuePos: 1, Descs: []trace.SubTraceDesc{{BeginPos: 5, SubtraceLen: 2}, {BeginPos: 7, SubtraceLen: 0}}},
		}},
		trace.Par{Left: 1, Right: 2},
		trace.ScalarCall("b1"),
		trace.Par{Left: 1, Right: 0},
		trace.SentBy("p"),
	}, prev)

	second := New(prev, nil)
	met := runParNextFold(t, second, nil)

	require.Len(t, met, 2)
	assert.True(t, met[0].Met)
	assert.True(t, met[1].Met)
	assert.Equal(t, prev, second.ResultTrace())
}

func TestIterationMustReplayRecordedStates(t *testing.T) {
	prev := trace.Trace{
		trace.Ap{Generations: []uint32{0}},
		trace.Fold{Lore: []trace.SubTraceLore{
			{ValuePos: 0, Descs: []trace.SubTraceDesc{{BeginPos: 2, SubtraceLen: 2}, {BeginPos: 4, SubtraceLen: 0}}},
		}},
		trace.ScalarCall("first"),
		trace.ScalarCall("second"),
	}
	h := New(prev, nil)

	ap, err := h.MeetApStart()
	require.NoError(t, err)
	h.MeetApEnd(ap.Generations)
	require.NoError(t, h.MeetFoldStart(testFoldID))
	require.NoError(t, h.MeetIterationStart(testFoldID, 0))
	merge, err := h.MeetCallStart()
	require.NoError(t, err)
	h.MeetCallEnd(merge.Result)

	var e *FoldSubtraceUnderflow
	require.ErrorAs(t, h.MeetIterationEnd(testFoldID), &e)
	assert.Equal(t, Previous, e.Ctx)
	assert.False(t, e.AfterNext)
	assert.Equal(t, uint32(1), e.Unused)
	assert.Equal(t, trace.Pos(0), e.ValuePos)
}
