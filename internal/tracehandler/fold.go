package tracehandler

import (
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// halves are the before-next and after-next windows of one iteration.
type halves struct {
	before window
	after  window
}

type foldInput struct {
	descs map[trace.Pos]halves
	after window
}

type iterationFrame struct {
	loreIdx  int
	parDepth int
	prev     halves
	cur      halves
	nextMet  bool
}

type foldFrame struct {
	resultPos  trace.Pos
	lore       []trace.SubTraceLore
	prev       foldInput
	cur        foldInput
	iterations []*iterationFrame
}

// MeetFoldStart reads the fold state of both inputs for the fold with the
// given id and writes a placeholder fold state to the result trace.
// A missing fold state counts as a fold without iterations.
func (h *Handler) MeetFoldStart(foldID uint32) error {
	prevState, curState, err := h.readPair()
	if err != nil {
		return err
	}
	prevFold, err := expectFold(prevState, Previous)
	if err != nil {
		return err
	}
	curFold, err := expectFold(curState, Current)
	if err != nil {
		return err
	}

	prevIn, err := enterFold(&h.prev, prevFold)
	if err != nil {
		return err
	}
	curIn, err := enterFold(&h.cur, curFold)
	if err != nil {
		return err
	}

	frame := &foldFrame{resultPos: h.result.Len(), lore: []trace.SubTraceLore{}, prev: prevIn, cur: curIn}
	h.commit(trace.Fold{Lore: []trace.SubTraceLore{}})
	h.folds[foldID] = append(h.folds[foldID], frame)
	return nil
}

// enterFold validates the lore of fold against the slider it was read from.
func enterFold(s *slider, fold trace.Fold) (foldInput, error) {
	in := foldInput{descs: make(map[trace.Pos]halves, len(fold.Lore))}

	for _, lore := range fold.Lore {
		if len(lore.Descs) != 2 {
			return foldInput{}, &FoldIncorrectSubtracesCount{Count: len(lore.Descs)}
		}
		if _, dup := in.descs[lore.ValuePos]; dup {
			return foldInput{}, &SeveralRecordsWithSamePos{Fold: fold, Pos: lore.ValuePos}
		}
		in.descs[lore.ValuePos] = halves{
			before: window{pos: lore.Descs[0].BeginPos, remaining: lore.Descs[0].SubtraceLen},
			after:  window{pos: lore.Descs[1].BeginPos, remaining: lore.Descs[1].SubtraceLen},
		}
	}

	var count uint64
	for _, lore := range fold.Lore {
		for _, d := range lore.Descs {
			count += uint64(d.SubtraceLen)
		}
	}
	if count > uint64(^uint32(0)) {
		return foldInput{}, &SubtraceLenOverflow{Fold: fold, Count: count}
	}

	for _, lore := range fold.Lore {
		for _, d := range lore.Descs {
			if uint64(d.BeginPos)+uint64(d.SubtraceLen) > uint64(s.trace.Len()) {
				return foldInput{}, &FoldPosOverflow{Fold: fold, Pos: d.BeginPos, Ctx: s.ctx}
			}
		}
	}

	reach := s.reach()
	if count > uint64(reach-s.pos) {
		return foldInput{}, &FoldLenOverflow{Fold: fold, Count: uint32(count), Remaining: reach - s.pos, Ctx: s.ctx}
	}
	end := s.pos + uint32(count)
	in.after = window{pos: end, remaining: s.end() - min(end, s.end()), limit: reach}
	return in, nil
}

func (h *Handler) topFold(foldID uint32) (*foldFrame, error) {
	frames := h.folds[foldID]
	if len(frames) == 0 {
		return nil, &FSMMismatch{Reason: "fold event without fold start"}
	}
	return frames[len(frames)-1], nil
}

func (f *foldFrame) topIteration() (*iterationFrame, error) {
	if len(f.iterations) == 0 {
		return nil, &FSMMismatch{Reason: "iteration event without iteration start"}
	}
	return f.iterations[len(f.iterations)-1], nil
}

// resolve finds the halves recorded in one input for the value written at
// result position valuePos. Values the input never iterated get empty windows.
func resolve(s *slider, in foldInput, mapping map[trace.Pos]trace.Pos, valuePos trace.Pos) halves {
	if inputPos, ok := mapping[valuePos]; ok {
		if hv, ok := in.descs[inputPos]; ok {
			return hv
		}
	}
	return halves{before: s.empty(), after: s.empty()}
}

// MeetIterationStart begins the iteration over the value whose state sits at
// result position valuePos. The sliders are pointed at the before-next
// halves the inputs recorded for the same value.
func (h *Handler) MeetIterationStart(foldID uint32, valuePos trace.Pos) error {
	frame, err := h.topFold(foldID)
	if err != nil {
		return err
	}

	it := &iterationFrame{
		loreIdx:  len(frame.lore),
		parDepth: len(h.pars),
		prev:     resolve(&h.prev, frame.prev, h.newToPrev, valuePos),
		cur:      resolve(&h.cur, frame.cur, h.newToCur, valuePos),
	}
	begin := h.result.Len()
	frame.lore = append(frame.lore, trace.SubTraceLore{
		ValuePos: valuePos,
		Descs:    []trace.SubTraceDesc{{BeginPos: begin}, {BeginPos: begin}},
	})
	frame.iterations = append(frame.iterations, it)

	if err := h.prev.setWindow(it.prev.beforeWindow()); err != nil {
		return err
	}
	return h.cur.setWindow(it.cur.beforeWindow())
}

// beforeWindow is the before-next half. A par in it may reach up to the end
// of the after-next half.
func (hv halves) beforeWindow() window {
	w := hv.before
	w.limit = max(hv.before.end(), hv.after.end())
	return w
}

// MeetNextStart closes the before-next half of the innermost iteration.
func (h *Handler) MeetNextStart(foldID uint32) error {
	frame, err := h.topFold(foldID)
	if err != nil {
		return err
	}
	it, err := frame.topIteration()
	if err != nil {
		return err
	}
	lore := &frame.lore[it.loreIdx]
	lore.Descs[0].SubtraceLen = h.result.Len() - lore.Descs[0].BeginPos
	it.nextMet = true
	return nil
}

// MeetNextEnd resumes the innermost iteration after next returned: its
// after-next half starts here and the sliders move to the recorded halves.
func (h *Handler) MeetNextEnd(foldID uint32) error {
	frame, err := h.topFold(foldID)
	if err != nil {
		return err
	}
	it, err := frame.topIteration()
	if err != nil {
		return err
	}
	frame.lore[it.loreIdx].Descs[1].BeginPos = h.result.Len()

	// Pars opened before next and still open continue in the after-next half.
	for _, pf := range h.pars[it.parDepth:] {
		pf.prev.after = continueIn(pf.prev.after, it.prev.after)
		pf.cur.after = continueIn(pf.cur.after, it.cur.after)
	}

	if err := h.prev.setWindow(it.prev.after); err != nil {
		return err
	}
	return h.cur.setWindow(it.cur.after)
}

// MeetIterationEnd closes the innermost iteration.
func (h *Handler) MeetIterationEnd(foldID uint32) error {
	frame, err := h.topFold(foldID)
	if err != nil {
		return err
	}
	it, err := frame.topIteration()
	if err != nil {
		return err
	}

	lore := &frame.lore[it.loreIdx]
	if err := h.iterationReplayed(it, lore.ValuePos); err != nil {
		return err
	}
	end := h.result.Len()
	if it.nextMet {
		lore.Descs[1].SubtraceLen = end - lore.Descs[1].BeginPos
	} else {
		lore.Descs[0].SubtraceLen = end - lore.Descs[0].BeginPos
		lore.Descs[1] = trace.SubTraceDesc{BeginPos: end}
	}
	frame.iterations = frame.iterations[:len(frame.iterations)-1]
	return nil
}

// MeetFoldEnd writes the collected lore and restores the windows that
// follow the fold in both inputs.
func (h *Handler) MeetFoldEnd(foldID uint32) error {
	frame, err := h.topFold(foldID)
	if err != nil {
		return err
	}
	if len(frame.iterations) != 0 {
		return &FSMMismatch{Reason: "fold end with unfinished iterations"}
	}

	h.result[frame.resultPos] = trace.Fold{Lore: frame.lore}
	frames := h.folds[foldID]
	if len(frames) == 1 {
		delete(h.folds, foldID)
	} else {
		h.folds[foldID] = frames[:len(frames)-1]
	}

	if err := h.prev.setWindow(frame.prev.after); err != nil {
		return err
	}
	return h.cur.setWindow(frame.cur.after)
}

// continueIn moves the window that follows a par into the after-next half.
func continueIn(after, half window) window {
	end := half.end()
	return window{pos: after.pos, remaining: end - min(after.pos, end), limit: end}
}

// iterationReplayed checks that both inputs read every state of the
// iteration half that is closing.
func (h *Handler) iterationReplayed(it *iterationFrame, valuePos trace.Pos) error {
	for _, in := range []struct {
		s  *slider
		hv halves
	}{{&h.prev, it.prev}, {&h.cur, it.cur}} {
		end := in.hv.before.end()
		if it.nextMet {
			end = in.hv.after.end()
		}
		if in.s.pos < end {
			return &FoldSubtraceUnderflow{ValuePos: valuePos, AfterNext: it.nextMet, Unused: end - in.s.pos, Ctx: in.s.ctx}
		}
	}
	return nil
}
