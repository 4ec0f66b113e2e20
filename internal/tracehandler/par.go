package tracehandler

import (
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// Side is a par subtree.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

type parInput struct {
	par   trace.Par
	start trace.Pos
	after window
}

type parFrame struct {
	resultPos trace.Pos
	prev      parInput
	cur       parInput
	leftLen   uint32
	leftDone  bool
}

// MeetParStart reads the par state of both inputs and narrows both sliders
// to the left subtrees. A missing par counts as par(0, 0).
func (h *Handler) MeetParStart() error {
	prevState, curState, err := h.readPair()
	if err != nil {
		return err
	}
	prevPar, err := expectPar(prevState, Previous)
	if err != nil {
		return err
	}
	curPar, err := expectPar(curState, Current)
	if err != nil {
		return err
	}

	prevIn, err := enterPar(&h.prev, prevPar)
	if err != nil {
		return err
	}
	curIn, err := enterPar(&h.cur, curPar)
	if err != nil {
		return err
	}

	frame := &parFrame{resultPos: h.result.Len(), prev: prevIn, cur: curIn}
	h.commit(trace.Par{})
	h.pars = append(h.pars, frame)
	return nil
}

// enterPar validates par against the slider it was read from and points the
// slider at the left subtree.
func enterPar(s *slider, par trace.Par) (parInput, error) {
	size, ok := par.Size()
	if !ok {
		return parInput{}, &ParLenOverflow{Par: par, Ctx: s.ctx}
	}
	if uint64(s.pos)+uint64(size) > uint64(s.trace.Len()) {
		return parInput{}, &ParPosOverflow{Par: par, Pos: s.pos, Ctx: s.ctx}
	}
	reach := s.reach()
	if s.pos+size > reach {
		return parInput{}, &ParLenUnderflow{Par: par, Claimed: reach - s.pos, Ctx: s.ctx}
	}

	end := s.pos + size
	in := parInput{
		par:   par,
		start: s.pos,
		after: window{pos: end, remaining: s.end() - min(end, s.end()), limit: reach},
	}
	if err := s.setWindow(window{pos: s.pos, remaining: par.Left}); err != nil {
		return parInput{}, err
	}
	return in, nil
}

// MeetParSubtreeEnd closes one subtree of the innermost par. Closing the
// left side points the sliders at the right subtrees; closing the right
// side fills in the par state with the lengths actually produced and
// restores the windows that follow the par.
func (h *Handler) MeetParSubtreeEnd(side Side) error {
	if len(h.pars) == 0 {
		return &FSMMismatch{Reason: "par subtree end without par start"}
	}
	frame := h.pars[len(h.pars)-1]
	produced := h.result.Len() - frame.resultPos - 1

	if err := subtreeReplayed(&h.prev, frame.prev, side); err != nil {
		return err
	}
	if err := subtreeReplayed(&h.cur, frame.cur, side); err != nil {
		return err
	}

	switch side {
	case Left:
		if frame.leftDone {
			return &FSMMismatch{Reason: "left par subtree closed twice"}
		}
		frame.leftLen = produced
		frame.leftDone = true
		if err := h.prev.setWindow(window{pos: frame.prev.start + frame.prev.par.Left, remaining: frame.prev.par.Right}); err != nil {
			return err
		}
		return h.cur.setWindow(window{pos: frame.cur.start + frame.cur.par.Left, remaining: frame.cur.par.Right})

	case Right:
		if !frame.leftDone {
			return &FSMMismatch{Reason: "right par subtree closed before left"}
		}
		h.result[frame.resultPos] = trace.Par{Left: frame.leftLen, Right: produced - frame.leftLen}
		h.pars = h.pars[:len(h.pars)-1]
		if err := h.prev.setWindow(frame.prev.after); err != nil {
			return err
		}
		return h.cur.setWindow(frame.cur.after)
	}
	return &FSMMismatch{Reason: "unknown par side"}
}

// subtreeReplayed checks that a closing par subtree read every state its
// input recorded for it. Inputs are written in execution order, so the
// cursor must stand at the recorded end of the subtree.
func subtreeReplayed(s *slider, in parInput, side Side) error {
	end := in.start + in.par.Left
	if side == Right {
		end += in.par.Right
	}
	if s.pos >= end {
		return nil
	}
	return &ParLenUnderflow{Par: in.par, Claimed: in.par.Left + in.par.Right, Ctx: s.ctx, Side: side, Unused: end - s.pos}
}
