package tracehandler

import (
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

func expectCall(s trace.State, ctx Context) (*trace.Call, error) {
	if s == nil {
		return nil, nil
	}
	c, ok := s.(trace.Call)
	if !ok {
		return nil, &DifferentExecutedStateExpected{Expected: "call", Found: s, Ctx: ctx}
	}
	return &c, nil
}

func expectAp(s trace.State, ctx Context) (*trace.Ap, error) {
	if s == nil {
		return nil, nil
	}
	a, ok := s.(trace.Ap)
	if !ok {
		return nil, &DifferentExecutedStateExpected{Expected: "ap", Found: s, Ctx: ctx}
	}
	return &a, nil
}

func expectCanon(s trace.State, ctx Context) (*trace.Canon, error) {
	if s == nil {
		return nil, nil
	}
	c, ok := s.(trace.Canon)
	if !ok {
		return nil, &DifferentExecutedStateExpected{Expected: "canon", Found: s, Ctx: ctx}
	}
	return &c, nil
}

func expectPar(s trace.State, ctx Context) (trace.Par, error) {
	if s == nil {
		return trace.Par{}, nil
	}
	p, ok := s.(trace.Par)
	if !ok {
		return trace.Par{}, &DifferentExecutedStateExpected{Expected: "par", Found: s, Ctx: ctx}
	}
	return p, nil
}

func expectFold(s trace.State, ctx Context) (trace.Fold, error) {
	if s == nil {
		return trace.Fold{}, nil
	}
	f, ok := s.(trace.Fold)
	if !ok {
		return trace.Fold{}, &DifferentExecutedStateExpected{Expected: "fold", Found: s, Ctx: ctx}
	}
	return f, nil
}

// mergeCall applies the call merge rules: a concrete result beats a
// pending request, two concrete results must agree, and on agreement the
// previous trace's result is kept.
func mergeCall(prev, cur *trace.Call) (CallMerge, error) {
	switch {
	case prev == nil && cur == nil:
		return CallMerge{}, nil
	case cur == nil:
		return CallMerge{Met: true, Result: prev.Result, Source: FromPrevious}, nil
	case prev == nil:
		return CallMerge{Met: true, Result: cur.Result, Source: FromCurrent}, nil
	}

	prevSent, prevIsSent := prev.Result.(trace.RequestSentBy)
	curSent, curIsSent := cur.Result.(trace.RequestSentBy)
	switch {
	case prevIsSent && curIsSent:
		// The request this peer handed to its host carries a call id.
		if curSent.CallID != nil && prevSent.CallID == nil {
			return CallMerge{Met: true, Result: curSent, Source: FromCurrent}, nil
		}
		return CallMerge{Met: true, Result: prevSent, Source: FromPrevious}, nil
	case prevIsSent:
		return CallMerge{Met: true, Result: cur.Result, Source: FromCurrent}, nil
	case curIsSent:
		return CallMerge{Met: true, Result: prev.Result, Source: FromPrevious}, nil
	}

	if err := compareConcrete(prev.Result, cur.Result); err != nil {
		return CallMerge{}, err
	}
	return CallMerge{Met: true, Result: prev.Result, Source: FromBoth}, nil
}

func compareConcrete(prev, cur trace.CallResult) error {
	switch p := prev.(type) {
	case trace.Failed:
		c, ok := cur.(trace.Failed)
		if !ok {
			return &IncompatibleCallResults{Prev: prev, Cur: cur}
		}
		if p.CID != c.CID {
			return &ValuesNotEqual{Prev: prev, Cur: cur}
		}
		return nil
	case trace.Executed:
		c, ok := cur.(trace.Executed)
		if !ok || !sameRefKind(p.Value, c.Value) {
			return &IncompatibleCallResults{Prev: prev, Cur: cur}
		}
		if p.Value.ServiceResultCID() != c.Value.ServiceResultCID() {
			return &ValuesNotEqual{Prev: prev, Cur: cur}
		}
		return nil
	default:
		return &IncompatibleCallResults{Prev: prev, Cur: cur}
	}
}

func sameRefKind(a, b trace.ValueRef) bool {
	switch a.(type) {
	case trace.Scalar:
		_, ok := b.(trace.Scalar)
		return ok
	case trace.Stream:
		_, ok := b.(trace.Stream)
		return ok
	case trace.Unused:
		_, ok := b.(trace.Unused)
		return ok
	}
	return false
}

func mergeAp(prev, cur *trace.Ap) (ApMerge, error) {
	switch {
	case prev == nil && cur == nil:
		return ApMerge{}, nil
	case cur == nil:
		return ApMerge{Met: true, Generations: prev.Generations, Source: FromPrevious}, nil
	case prev == nil:
		return ApMerge{Met: true, Generations: cur.Generations, Source: FromCurrent}, nil
	}
	if len(prev.Generations) != len(cur.Generations) {
		return ApMerge{}, &IncorrectApResult{Prev: *prev, Cur: *cur}
	}
	return ApMerge{Met: true, Generations: prev.Generations, Source: FromBoth}, nil
}

func mergeCanon(prev, cur *trace.Canon) (CanonMerge, error) {
	switch {
	case prev == nil && cur == nil:
		return CanonMerge{}, nil
	case cur == nil:
		return CanonMerge{Met: true, CID: prev.CID, Source: FromPrevious}, nil
	case prev == nil:
		return CanonMerge{Met: true, CID: cur.CID, Source: FromCurrent}, nil
	}
	if prev.CID != cur.CID {
		return CanonMerge{}, &IncorrectCanonResult{Prev: *prev, Cur: *cur}
	}
	return CanonMerge{Met: true, CID: prev.CID, Source: FromBoth}, nil
}
