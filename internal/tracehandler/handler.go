package tracehandler

import (
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// Source says which input traces a met state was found in.
type Source int

const (
	FromPrevious Source = iota
	FromCurrent
	FromBoth
)

func (s Source) String() string {
	switch s {
	case FromPrevious:
		return "previous"
	case FromCurrent:
		return "current"
	default:
		return "both"
	}
}

// consumed remembers the input positions read by the last Meet*Start.
type consumed struct {
	prevPos trace.Pos
	prevOK  bool
	curPos  trace.Pos
	curOK   bool
}

// Handler merges two input traces into a result trace.
type Handler struct {
	prev   slider
	cur    slider
	result trace.Trace

	// newToPrev and newToCur map result positions to the input positions
	// the committed state was read from.
	newToPrev map[trace.Pos]trace.Pos
	newToCur  map[trace.Pos]trace.Pos

	pending consumed
	pars    []*parFrame
	folds   map[uint32][]*foldFrame
}

// New creates a handler over the previous and current traces.
// The inputs are cloned; the handler never mutates them.
func New(prev, cur trace.Trace) *Handler {
	return &Handler{
		prev:      newSlider(prev.Clone(), Previous),
		cur:       newSlider(cur.Clone(), Current),
		result:    trace.Trace{},
		newToPrev: make(map[trace.Pos]trace.Pos),
		newToCur:  make(map[trace.Pos]trace.Pos),
		folds:     make(map[uint32][]*foldFrame),
	}
}

// TracePos returns the position the next committed state will get.
func (h *Handler) TracePos() trace.Pos {
	return h.result.Len()
}

// ResultTrace returns the committed trace.
func (h *Handler) ResultTrace() trace.Trace {
	return h.result
}

// PrevLen and CurLen return the lengths of the input traces.
func (h *Handler) PrevLen() uint32 { return h.prev.trace.Len() }
func (h *Handler) CurLen() uint32  { return h.cur.trace.Len() }

// ResultState returns the committed state at pos.
func (h *Handler) ResultState(pos trace.Pos) (trace.State, bool) {
	return h.result.Get(pos)
}

// readPair reads the next state from both sliders.
func (h *Handler) readPair() (prev, cur trace.State, err error) {
	h.pending = consumed{}

	prev, pos, ok, err := h.prev.next()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		h.pending.prevPos, h.pending.prevOK = pos, true
	}

	cur, pos, ok, err = h.cur.next()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		h.pending.curPos, h.pending.curOK = pos, true
	}
	return prev, cur, nil
}

// commit appends state and records the positions it came from.
func (h *Handler) commit(state trace.State) {
	pos := h.result.Len()
	if h.pending.prevOK {
		h.newToPrev[pos] = h.pending.prevPos
	}
	if h.pending.curOK {
		h.newToCur[pos] = h.pending.curPos
	}
	h.pending = consumed{}
	h.result = append(h.result, state)
}

// CallMerge is the merged view of the next call state.
type CallMerge struct {
	Met    bool
	Result trace.CallResult
	Source Source
}

// MeetCallStart reads the call state at the cursor of both inputs.
func (h *Handler) MeetCallStart() (CallMerge, error) {
	prev, cur, err := h.readPair()
	if err != nil {
		return CallMerge{}, err
	}
	prevCall, err := expectCall(prev, Previous)
	if err != nil {
		return CallMerge{}, err
	}
	curCall, err := expectCall(cur, Current)
	if err != nil {
		return CallMerge{}, err
	}
	return mergeCall(prevCall, curCall)
}

// MeetCallEnd commits the outcome of a call.
func (h *Handler) MeetCallEnd(result trace.CallResult) {
	h.commit(trace.Call{Result: result})
}

// ApMerge is the merged view of the next ap state.
type ApMerge struct {
	Met         bool
	Generations []uint32
	Source      Source
}

// MeetApStart reads the ap state at the cursor of both inputs.
func (h *Handler) MeetApStart() (ApMerge, error) {
	prev, cur, err := h.readPair()
	if err != nil {
		return ApMerge{}, err
	}
	prevAp, err := expectAp(prev, Previous)
	if err != nil {
		return ApMerge{}, err
	}
	curAp, err := expectAp(cur, Current)
	if err != nil {
		return ApMerge{}, err
	}
	return mergeAp(prevAp, curAp)
}

// MeetApEnd commits an ap state.
func (h *Handler) MeetApEnd(generations []uint32) {
	h.commit(trace.Ap{Generations: append([]uint32(nil), generations...)})
}

// CanonMerge is the merged view of the next canon state.
type CanonMerge struct {
	Met    bool
	CID    ir.CID
	Source Source
}

// MeetCanonStart reads the canon state at the cursor of both inputs.
func (h *Handler) MeetCanonStart() (CanonMerge, error) {
	prev, cur, err := h.readPair()
	if err != nil {
		return CanonMerge{}, err
	}
	prevCanon, err := expectCanon(prev, Previous)
	if err != nil {
		return CanonMerge{}, err
	}
	curCanon, err := expectCanon(cur, Current)
	if err != nil {
		return CanonMerge{}, err
	}
	return mergeCanon(prevCanon, curCanon)
}

// MeetCanonEnd commits a canon state.
func (h *Handler) MeetCanonEnd(c ir.CID) {
	h.commit(trace.Canon{CID: c})
}

// UpdateGeneration rewrites the generation of the stream write at pos.
func (h *Handler) UpdateGeneration(pos trace.Pos, generation uint32) error {
	state, ok := h.result.Get(pos)
	if !ok {
		return &TracePosPointsToNowhere{Pos: pos}
	}

	switch st := state.(type) {
	case trace.Call:
		if executed, ok := st.Result.(trace.Executed); ok {
			if ref, ok := executed.Value.(trace.Stream); ok {
				ref.Generation = generation
				h.result[pos] = trace.Call{Result: trace.Executed{Value: ref}}
				return nil
			}
		}
	case trace.Ap:
		if len(st.Generations) > 0 {
			gens := append([]uint32(nil), st.Generations...)
			gens[0] = generation
			h.result[pos] = trace.Ap{Generations: gens}
			return nil
		}
	}
	return &TracePosPointsToInvalidState{Pos: pos, State: state}
}
