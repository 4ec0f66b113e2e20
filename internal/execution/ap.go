package execution

import (
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/stream"
	"github.com/fluencelabs/aquavm-sub001/internal/tracehandler"
)

// streamValue turns a resolved operand into a stream element written at
// the next trace position.
func (e *Executor) streamValue(r resolved) stream.Value {
	tp := r.tetraplet()
	if len(r.tetraplets) != 1 {
		tp = ir.LiteralTetraplet(e.cfg.CurrentPeerID)
	}
	return stream.Value{
		Result:     r.value,
		Tetraplet:  tp,
		Provenance: r.provenance,
		TracePos:   e.handler.TracePos(),
	}
}

func (e *Executor) ap(a air.Ap) (bool, error) {
	arg, ok, err := e.resolveValue(a.Arg)
	if err != nil || !ok {
		return false, err
	}

	switch out := a.Result.(type) {
	case air.Scalar:
		v := e.streamValue(arg)
		if err := e.defineScalar(a, out.Name, scalar{value: v.Result, tetraplet: v.Tetraplet, provenance: v.Provenance}); err != nil {
			return false, err
		}
		return true, nil
	case air.Stream:
		st := e.streams.stream(out.Name)
		return e.apToStream(a, func(v stream.Value, gen stream.Generation) (uint32, error) {
			return st.AddValue(v, gen)
		}, arg)
	default:
		return false, fmt.Errorf("unsupported ap result %s", a.Result)
	}
}

func (e *Executor) apMap(a air.ApMap) (bool, error) {
	key, ok, err := e.resolveValue(a.Key)
	if err != nil || !ok {
		return false, err
	}
	value, ok, err := e.resolveValue(a.Value)
	if err != nil || !ok {
		return false, err
	}
	if err := stream.ValidateMapKey(key.value); err != nil {
		return false, newCatchable(StreamMapError, "%v", err)
	}

	m := e.streams.streamMap(a.Map.Name)
	return e.apToStream(a, func(v stream.Value, gen stream.Generation) (uint32, error) {
		return m.Insert(key.value, v, gen)
	}, value)
}

func (e *Executor) apToStream(instr air.Instruction, add func(stream.Value, stream.Generation) (uint32, error), arg resolved) (bool, error) {
	merge, err := e.handler.MeetApStart()
	if err != nil {
		return false, e.traceError(instr, err)
	}

	gen := stream.NewGeneration()
	if merge.Met {
		if len(merge.Generations) != 1 {
			return false, e.traceError(instr, fmt.Errorf("ap state has %d generations, expected 1", len(merge.Generations)))
		}
		gen = regionGeneration(merge.Source, merge.Generations[0])
	}

	idx, err := add(e.streamValue(arg), gen)
	if err != nil {
		return false, e.streamError(instr, err)
	}
	e.handler.MeetApEnd([]uint32{idx})
	return true, nil
}

func (e *Executor) canon(c air.Canon) (bool, error) {
	peer, _, ok, err := e.resolveString(c.Peer)
	if err != nil || !ok {
		return false, err
	}

	merge, err := e.handler.MeetCanonStart()
	if err != nil {
		return false, e.traceError(c, err)
	}
	if merge.Met {
		return e.replayCanon(c, merge)
	}

	if peer != e.cfg.CurrentPeerID {
		e.addNextPeer(peer)
		return false, nil
	}

	var elems []stream.CanonElement
	switch src := c.Source.(type) {
	case air.Stream:
		elems = stream.SnapshotValues(e.streams.stream(src.Name).Iter())
	case air.StreamMap:
		elems = stream.SortMapElements(stream.SnapshotValues(e.streams.streamMap(src.Name).Stream().Iter()))
	default:
		return false, fmt.Errorf("unsupported canon source %s", c.Source)
	}

	cids := make([]ir.CID, 0, len(elems))
	for _, elem := range elems {
		elemCID, err := e.tracker.TrackCanonElement(elem.Result, elem.Tetraplet, elem.Provenance)
		if err != nil {
			return false, e.cidError(c, err)
		}
		cids = append(cids, elemCID)
	}
	tp := ir.LiteralTetraplet(e.cfg.CurrentPeerID)
	resultCID, err := e.tracker.TrackCanonResult(tp, cids)
	if err != nil {
		return false, e.cidError(c, err)
	}

	e.handler.MeetCanonEnd(resultCID)
	if err := e.bindCanon(c, &stream.Canon{CID: resultCID, Tetraplet: tp, Values: elems}); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) replayCanon(c air.Canon, merge tracehandler.CanonMerge) (bool, error) {
	res, err := e.tracker.CanonResult(merge.CID)
	if err != nil {
		return false, e.cidError(c, err)
	}
	tp, err := e.tracker.Tetraplet(res.TetrapletCID)
	if err != nil {
		return false, e.cidError(c, err)
	}

	elems := make([]stream.CanonElement, 0, len(res.Values))
	for _, elemCID := range res.Values {
		elem, err := e.tracker.CanonElement(elemCID)
		if err != nil {
			return false, e.cidError(c, err)
		}
		value, err := e.tracker.Value(elem.ValueCID)
		if err != nil {
			return false, e.cidError(c, err)
		}
		elemTp, err := e.tracker.Tetraplet(elem.TetrapletCID)
		if err != nil {
			return false, e.cidError(c, err)
		}
		elems = append(elems, stream.CanonElement{Result: value, Tetraplet: elemTp, Provenance: elem.Provenance})
	}

	e.handler.MeetCanonEnd(merge.CID)
	if err := e.bindCanon(c, &stream.Canon{CID: merge.CID, Tetraplet: tp, Values: elems}); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) bindCanon(c air.Canon, canon *stream.Canon) error {
	var err error
	switch out := c.Result.(type) {
	case air.CanonStream:
		err = e.canons.define(out.Name, canon)
	case air.CanonMap:
		canon.IsMap = true
		err = e.canonMaps.define(out.Name, canon)
	default:
		return fmt.Errorf("unsupported canon result %s", c.Result)
	}
	if err != nil {
		return uncatchable(ScalarAlreadyDefined, c, err)
	}
	return nil
}

func (e *Executor) fail(f air.Fail) (bool, error) {
	switch f.Kind {
	case air.FailLiteral:
		return false, &CatchableError{Kind: UserError, ErrorCode: f.Code, Message: f.Message}
	case air.FailScalar:
		r, ok, err := e.resolveValue(f.Scalar)
		if err != nil || !ok {
			return false, err
		}
		code, message, ce := errorObject(fmt.Sprint(f.Scalar), r.value)
		if ce != nil {
			return false, ce
		}
		return false, &CatchableError{Kind: UserError, ErrorCode: code, Message: message}
	case air.FailLastError:
		return e.rethrow(e.lastError)
	case air.FailError:
		return e.rethrow(e.currentError())
	default:
		return false, fmt.Errorf("unsupported fail kind %d", f.Kind)
	}
}

// errorObject reads the error_code and message fields of the value a fail
// raises and reports the first check the value does not pass.
func errorObject(scalar string, v ir.Value) (int64, string, *CatchableError) {
	obj, ok := v.(ir.Object)
	if !ok {
		return 0, "", newCatchable(InvalidLastErrorObject, "scalar %s must be an object, found '%s'", scalar, render(v))
	}
	for _, field := range []string{FieldErrorCode, FieldMessage} {
		if _, ok := obj[field]; !ok {
			return 0, "", newCatchable(InvalidLastErrorObject,
				"scalar %s must contain the field %s, found '%s'", scalar, field, render(v))
		}
	}
	code, ok := obj[FieldErrorCode].(ir.Int)
	if !ok {
		return 0, "", newCatchable(InvalidLastErrorObject,
			"field %s of scalar %s must be an integer, found '%s'", FieldErrorCode, scalar, render(obj[FieldErrorCode]))
	}
	message, ok := obj[FieldMessage].(ir.String)
	if !ok {
		return 0, "", newCatchable(InvalidLastErrorObject,
			"field %s of scalar %s must be a string, found '%s'", FieldMessage, scalar, render(obj[FieldMessage]))
	}
	return int64(code), string(message), nil
}

// rethrow raises a caught error again. Without one, fail does nothing.
func (e *Executor) rethrow(ce *CatchableError) (bool, error) {
	if ce == nil {
		return true, nil
	}
	again := *ce
	return false, &again
}
