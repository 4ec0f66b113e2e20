package tracehandler

import (
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// window is a range of an input trace. limit is the furthest position a
// par opened in the window may reach; a par that holds a next spans the
// states of the nested iterations, which lie past the before-next half.
// A limit below the end of the range means the end itself.
type window struct {
	pos       trace.Pos
	remaining uint32
	limit     trace.Pos
}

func (w window) end() trace.Pos {
	return w.pos + w.remaining
}

// reach is the furthest position a construct opened in w may cover.
func (w window) reach() trace.Pos {
	return max(w.end(), w.limit)
}

// slider reads one input trace through a movable window.
type slider struct {
	trace trace.Trace
	ctx   Context
	window
}

func newSlider(t trace.Trace, ctx Context) slider {
	return slider{trace: t, ctx: ctx, window: window{pos: 0, remaining: t.Len()}}
}

// next returns the state at the cursor and advances, or false when the
// window is exhausted.
func (s *slider) next() (trace.State, trace.Pos, bool, error) {
	if s.remaining == 0 {
		return nil, 0, false, nil
	}
	state, ok := s.trace.Get(s.pos)
	if !ok {
		return nil, 0, false, &NoElementAtPosition{Pos: s.pos, TraceLen: s.trace.Len(), Ctx: s.ctx}
	}
	pos := s.pos
	s.pos++
	s.remaining--
	return state, pos, true, nil
}

// setWindow moves the window after checking it fits the trace.
func (s *slider) setWindow(w window) error {
	end := uint64(w.pos) + uint64(w.remaining)
	if end > uint64(s.trace.Len()) || uint64(w.limit) > uint64(s.trace.Len()) {
		return &SetSubtraceLenAndPosFailed{Pos: w.pos, Len: w.remaining, TraceLen: s.trace.Len(), Ctx: s.ctx}
	}
	s.window = w
	return nil
}

// empty returns a zero-length window at the cursor.
func (s *slider) empty() window {
	return window{pos: s.pos, remaining: 0}
}
