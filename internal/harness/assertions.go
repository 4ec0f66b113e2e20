package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Hops     []Hop  // Every turn for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Hops) > 0 {
		fmt.Fprintf(&buf, "\nHops:\n")
		for _, h := range e.Hops {
			fmt.Fprintf(&buf, "  [%d] %s <- %q ret_code=%d next=%v trace_len=%d\n",
				h.Seq, h.Peer, h.From, h.RetCode, h.NextPeers, len(h.Trace))
		}
	}

	return buf.String()
}

// assertRetCode checks the return code of the last turn a peer logged.
func assertRetCode(ctx context.Context, st *store.Store, result *Result, peerID string, assertion Assertion) error {
	turns, err := st.Turns(ctx, result.ParticleID)
	if err != nil {
		return fmt.Errorf("load turns: %w", err)
	}

	var last *store.TurnRecord
	for i := range turns {
		if turns[i].PeerID == peerID {
			last = &turns[i]
		}
	}
	if last == nil {
		return &AssertionError{
			Type:     AssertRetCode,
			Expected: fmt.Sprintf("%s to run at least one turn", assertion.Peer),
			Actual:   "peer never ran",
			Hops:     result.Hops,
		}
	}

	if last.RetCode != assertion.Code {
		return &AssertionError{
			Type:     AssertRetCode,
			Expected: fmt.Sprintf("last turn on %s to return %d", assertion.Peer, assertion.Code),
			Actual:   fmt.Sprintf("returned %d: %s", last.RetCode, last.ErrorMessage),
			Hops:     result.Hops,
		}
	}
	if assertion.Message != "" && !strings.Contains(last.ErrorMessage, assertion.Message) {
		return &AssertionError{
			Type:     AssertRetCode,
			Expected: fmt.Sprintf("error message containing %q", assertion.Message),
			Actual:   fmt.Sprintf("%q", last.ErrorMessage),
			Hops:     result.Hops,
		}
	}
	return nil
}

// matchingCalls returns the calls a peer served for a service and function.
// An empty function matches every function of the service.
func matchingCalls(result *Result, assertion Assertion) []execution.CallRequest {
	var calls []execution.CallRequest
	for _, req := range result.Calls[assertion.Peer] {
		if req.ServiceID != assertion.Service {
			continue
		}
		if assertion.Function != "" && req.FunctionName != assertion.Function {
			continue
		}
		calls = append(calls, req)
	}
	return calls
}

func callName(assertion Assertion) string {
	if assertion.Function == "" {
		return assertion.Service
	}
	return assertion.Service + "/" + assertion.Function
}

// assertCallCount checks how often a service was called on a peer.
func assertCallCount(result *Result, assertion Assertion) error {
	count := len(matchingCalls(result, assertion))
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d calls of %s on %s", assertion.Count, callName(assertion), assertion.Peer),
			Actual:   fmt.Sprintf("%d calls", count),
			Hops:     result.Hops,
		}
	}
	return nil
}

// assertCallArgs checks the arguments of every call of a service on a peer,
// in the order the host served them.
func assertCallArgs(result *Result, assertion Assertion) error {
	expected := make([]ir.Value, len(assertion.Args))
	for i, args := range assertion.Args {
		v, err := ir.FromGo(args)
		if err != nil {
			return fmt.Errorf("call_args: args[%d]: %w", i, err)
		}
		expected[i] = v
	}

	calls := matchingCalls(result, assertion)
	actual := make([]ir.Value, len(calls))
	for i, req := range calls {
		args := ir.Array(req.Arguments)
		if args == nil {
			args = ir.Array{}
		}
		actual[i] = args
	}

	if !ir.Equal(ir.Array(expected), ir.Array(actual)) {
		return &AssertionError{
			Type:     AssertCallArgs,
			Expected: fmt.Sprintf("%s on %s called with %s", callName(assertion), assertion.Peer, ir.MustMarshalCanonical(ir.Array(expected))),
			Actual:   string(ir.MustMarshalCanonical(ir.Array(actual))),
			Hops:     result.Hops,
		}
	}
	return nil
}

// assertVisitOrder checks the particle reached peers in the specified order.
// Peers don't need to be consecutive (intervening visits are allowed).
func assertVisitOrder(result *Result, assertion Assertion) error {
	// Step 1: Find first turn of each expected peer
	positions := make(map[string]int)
	for _, h := range result.Hops {
		if positions[h.Peer] == 0 {
			positions[h.Peer] = h.Seq
		}
	}

	// Step 2: Verify all peers were visited
	for _, p := range assertion.Peers {
		if positions[p] == 0 {
			return &AssertionError{
				Type:     AssertVisitOrder,
				Expected: fmt.Sprintf("all peers visited: %v", assertion.Peers),
				Actual:   fmt.Sprintf("%s was never visited", p),
				Hops:     result.Hops,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Peers); i++ {
		prev := assertion.Peers[i-1]
		curr := assertion.Peers[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertVisitOrder,
				Expected: fmt.Sprintf("peers visited in order: %v", assertion.Peers),
				Actual: fmt.Sprintf("%s (hop %d) should be before %s (hop %d)",
					prev, positions[prev], curr, positions[curr]),
				Hops: result.Hops,
			}
		}
	}

	return nil
}

// assertTraceLength checks the length of the trace a peer holds.
func assertTraceLength(result *Result, assertion Assertion) error {
	data := result.FinalData(assertion.Peer)
	if data == nil {
		return &AssertionError{
			Type:     AssertTraceLength,
			Expected: fmt.Sprintf("%s to hold data", assertion.Peer),
			Actual:   "peer never ran",
			Hops:     result.Hops,
		}
	}
	if len(data.Trace) != assertion.Length {
		return &AssertionError{
			Type:     AssertTraceLength,
			Expected: fmt.Sprintf("trace of %d states on %s", assertion.Length, assertion.Peer),
			Actual:   fmt.Sprintf("%d states", len(data.Trace)),
			Hops:     result.Hops,
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context

	// PeerIDs maps peer names to peer ids.
	PeerIDs map[string]string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for ret_code assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRetCode:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: ret_code requires database context", i)
			} else {
				err = assertRetCode(actx.Ctx, actx.Store, result, actx.PeerIDs[assertion.Peer], assertion)
			}
		case AssertCallCount:
			err = assertCallCount(result, assertion)
		case AssertCallArgs:
			err = assertCallArgs(result, assertion)
		case AssertVisitOrder:
			err = assertVisitOrder(result, assertion)
		case AssertTraceLength:
			err = assertTraceLength(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
