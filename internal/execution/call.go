package execution

import (
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/stream"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
	"github.com/fluencelabs/aquavm-sub001/internal/tracehandler"
)

// Service results that failed are stored as {"ret_code": n, "result": v}.
const (
	failedRetCodeField = "ret_code"
	failedResultField  = "result"
)

func (e *Executor) call(c air.Call) (bool, error) {
	t, ok, err := e.resolveTriplet(c.Triplet)
	if err != nil || !ok {
		return false, err
	}
	args, tetraplets, ok, err := e.resolveArgs(c.Args)
	if err != nil || !ok {
		return false, err
	}

	merge, err := e.handler.MeetCallStart()
	if err != nil {
		return false, e.traceError(c, err)
	}
	if merge.Met {
		return e.replayCall(c, t, args, tetraplets, merge)
	}

	if t.peer != e.cfg.CurrentPeerID {
		e.logger.Debug("call forwarded", "peer", t.peer, "service", t.service, "function", t.function)
		e.handler.MeetCallEnd(trace.RequestSentBy{PeerID: t.peer})
		e.addNextPeer(t.peer)
		return false, nil
	}
	return e.requestCall(c, t, args, tetraplets)
}

func (e *Executor) replayCall(c air.Call, t triplet, args []ir.Value, tetraplets [][]ir.Tetraplet, merge tracehandler.CallMerge) (bool, error) {
	switch r := merge.Result.(type) {
	case trace.Executed:
		return e.replayExecuted(c, r, merge.Source)
	case trace.Failed:
		return e.replayFailed(c, r)
	case trace.RequestSentBy:
		if t.peer != e.cfg.CurrentPeerID {
			e.handler.MeetCallEnd(r)
			return false, nil
		}
		if r.CallID == nil {
			return e.requestCall(c, t, args, tetraplets)
		}
		result, ok := e.results[*r.CallID]
		if !ok {
			e.handler.MeetCallEnd(r)
			return false, nil
		}
		delete(e.results, *r.CallID)
		return e.applyResult(c, t, args, result)
	default:
		return false, e.traceError(c, fmt.Errorf("unexpected call result %T", merge.Result))
	}
}

func (e *Executor) replayExecuted(c air.Call, r trace.Executed, source tracehandler.Source) (bool, error) {
	resultCID := r.Value.ServiceResultCID()
	agg, err := e.tracker.ServiceResult(resultCID)
	if err != nil {
		return false, e.cidError(c, err)
	}
	value, err := e.tracker.Value(agg.ValueCID)
	if err != nil {
		return false, e.cidError(c, err)
	}
	tp, err := e.tracker.Tetraplet(agg.TetrapletCID)
	if err != nil {
		return false, e.cidError(c, err)
	}
	if err := checkOutput(c.Output, r.Value); err != nil {
		return false, e.traceError(c, err)
	}

	gen := stream.NewGeneration()
	if ref, ok := r.Value.(trace.Stream); ok {
		gen = regionGeneration(source, ref.Generation)
	}
	pos := e.handler.TracePos()
	if _, err := e.bindResult(c, resultCID, value, tp, pos, gen); err != nil {
		return false, err
	}
	e.handler.MeetCallEnd(r)
	return true, nil
}

func (e *Executor) replayFailed(c air.Call, r trace.Failed) (bool, error) {
	agg, err := e.tracker.ServiceResult(r.CID)
	if err != nil {
		return false, e.cidError(c, err)
	}
	value, err := e.tracker.Value(agg.ValueCID)
	if err != nil {
		return false, e.cidError(c, err)
	}
	tp, err := e.tracker.Tetraplet(agg.TetrapletCID)
	if err != nil {
		return false, e.cidError(c, err)
	}
	obj, ok := value.(ir.Object)
	if !ok {
		return false, e.traceError(c, fmt.Errorf("failed call result %s is %s, not an object", r.CID, ir.TypeName(value)))
	}
	code, _ := obj[failedRetCodeField].(ir.Int)

	e.handler.MeetCallEnd(r)
	return false, localServiceError(int64(code), orNull(obj[failedResultField]), tp.PeerPK)
}

// requestCall hands a local call to the host under a fresh call id.
func (e *Executor) requestCall(c air.Call, t triplet, args []ir.Value, tetraplets [][]ir.Tetraplet) (bool, error) {
	if e.cfg.TTL != 0 {
		now := uint64(e.now().UnixMilli())
		if deadline := e.cfg.Timestamp + uint64(e.cfg.TTL); now > deadline {
			return false, uncatchable(TtlExceeded, c,
				fmt.Errorf("particle expired at %d, now is %d", deadline, now))
		}
	}

	e.lastCallID++
	id := e.lastCallID
	e.requests[id] = CallRequest{
		ServiceID:    t.service,
		FunctionName: t.function,
		Arguments:    args,
		Tetraplets:   tetraplets,
	}
	e.logger.Debug("call requested", "call_id", id, "service", t.service, "function", t.function)
	e.handler.MeetCallEnd(trace.RequestSentBy{PeerID: e.cfg.CurrentPeerID, CallID: &id})
	return false, nil
}

// applyResult records a host answer in the trace and binds its value.
func (e *Executor) applyResult(c air.Call, t triplet, args []ir.Value, res CallResult) (bool, error) {
	tp := ir.Tetraplet{PeerPK: e.cfg.CurrentPeerID, ServiceID: t.service, FunctionName: t.function}
	argHash, err := ir.ArgumentHash(args)
	if err != nil {
		return false, e.cidError(c, err)
	}
	pos := e.handler.TracePos()

	if res.RetCode != 0 {
		value := ir.Object{
			failedRetCodeField: ir.Int(res.RetCode),
			failedResultField:  orNull(res.Result),
		}
		resultCID, err := e.tracker.TrackServiceResult(value, tp, argHash, pos)
		if err != nil {
			return false, e.cidError(c, err)
		}
		e.handler.MeetCallEnd(trace.Failed{CID: resultCID})
		return false, localServiceError(int64(res.RetCode), orNull(res.Result), e.cfg.CurrentPeerID)
	}

	value := orNull(res.Result)
	resultCID, err := e.tracker.TrackServiceResult(value, tp, argHash, pos)
	if err != nil {
		return false, e.cidError(c, err)
	}
	ref, err := e.bindResult(c, resultCID, value, tp, pos, stream.NewGeneration())
	if err != nil {
		return false, err
	}
	e.handler.MeetCallEnd(trace.Executed{Value: ref})
	return true, nil
}

// bindResult binds a service result to the call output and returns how the
// trace refers to it.
func (e *Executor) bindResult(c air.Call, resultCID ir.CID, value ir.Value, tp ir.Tetraplet, pos trace.Pos, gen stream.Generation) (trace.ValueRef, error) {
	prov := ir.ServiceResultProvenance(resultCID)
	switch out := c.Output.(type) {
	case nil:
		return trace.Unused{CID: resultCID}, nil
	case air.Scalar:
		if err := e.defineScalar(c, out.Name, scalar{value: value, tetraplet: tp, provenance: prov}); err != nil {
			return nil, err
		}
		return trace.Scalar{CID: resultCID}, nil
	case air.Stream:
		idx, err := e.streams.stream(out.Name).AddValue(stream.Value{
			Result:     value,
			Tetraplet:  tp,
			Provenance: prov,
			TracePos:   pos,
		}, gen)
		if err != nil {
			return nil, e.streamError(c, err)
		}
		return trace.Stream{CID: resultCID, Generation: idx}, nil
	default:
		return nil, e.traceError(c, fmt.Errorf("unsupported call output %s", c.Output))
	}
}

// checkOutput verifies that a recorded result was bound the way the call
// binds it now.
func checkOutput(output air.Value, ref trace.ValueRef) error {
	var match bool
	switch ref.(type) {
	case trace.Scalar:
		_, match = output.(air.Scalar)
	case trace.Stream:
		_, match = output.(air.Stream)
	case trace.Unused:
		match = output == nil
	}
	if !match {
		return fmt.Errorf("call result %v does not match output %v", ref, output)
	}
	return nil
}

// regionGeneration places a replayed stream write in the region of the
// trace it was read from.
func regionGeneration(source tracehandler.Source, idx uint32) stream.Generation {
	if source == tracehandler.FromCurrent {
		return stream.CurrentGeneration(idx)
	}
	return stream.PreviousGeneration(idx)
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
