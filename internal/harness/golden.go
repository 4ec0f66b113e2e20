package harness

import (
	"fmt"
	"maps"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/fluencelabs/aquavm-sub001/internal/cid"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// GoldenDir is where golden files live, relative to the test package.
const GoldenDir = "testdata/golden"

// Snapshot renders a result as canonical JSON. CIDs are replaced by the
// values they address and peer ids by peer names, so the snapshot reads
// like the script that produced it.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	hops := make(ir.Array, len(result.Hops))
	for i, h := range result.Hops {
		rendered, err := renderHop(h, result.PeerName)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", h.Seq, err)
		}
		hops[i] = rendered
	}

	return ir.MarshalCanonical(ir.Object{
		"scenario_name": ir.String(scenarioName),
		"particle_id":   ir.String(result.ParticleID),
		"hops":          hops,
	})
}

func renderHop(h Hop, names func(peerID string) string) (ir.Object, error) {
	requests := make(ir.Array, 0, len(h.CallRequests))
	for _, id := range slices.Sorted(maps.Keys(h.CallRequests)) {
		req := h.CallRequests[id]
		args := ir.Array(req.Arguments)
		if args == nil {
			args = ir.Array{}
		}
		requests = append(requests, ir.Object{
			"call_id":       ir.Int(id),
			"service_id":    ir.String(req.ServiceID),
			"function_name": ir.String(req.FunctionName),
			"arguments":     args,
		})
	}

	next := make(ir.Array, len(h.NextPeers))
	for i, p := range h.NextPeers {
		next[i] = ir.String(p)
	}

	r := renderer{tracker: cid.NewTracker(h.data.CIDInfo), names: names}
	states := make(ir.Array, len(h.Trace))
	for i, s := range h.Trace {
		rendered, err := r.state(s)
		if err != nil {
			return nil, fmt.Errorf("trace[%d]: %w", i, err)
		}
		states[i] = ir.String(rendered)
	}

	obj := ir.Object{
		"seq":           ir.Int(h.Seq),
		"peer":          ir.String(h.Peer),
		"from":          ir.String(h.From),
		"ret_code":      ir.Int(h.RetCode),
		"call_requests": requests,
		"next_peers":    next,
		"trace":         states,
	}
	if h.ErrorMessage != "" {
		obj["error_message"] = ir.String(h.ErrorMessage)
	}
	return obj, nil
}

// renderer prints trace states with the values their CIDs address.
type renderer struct {
	tracker *cid.Tracker
	names   func(peerID string) string
}

func (r renderer) state(s trace.State) (string, error) {
	switch st := s.(type) {
	case trace.Call:
		res, err := r.callResult(st.Result)
		if err != nil {
			return "", err
		}
		return "call(" + res + ")", nil
	case trace.Canon:
		agg, err := r.tracker.CanonResult(st.CID)
		if err != nil {
			return "", err
		}
		values := make(ir.Array, len(agg.Values))
		for i, c := range agg.Values {
			elem, err := r.tracker.CanonElement(c)
			if err != nil {
				return "", err
			}
			if values[i], err = r.tracker.Value(elem.ValueCID); err != nil {
				return "", err
			}
		}
		return "canon(" + string(ir.MustMarshalCanonical(values)) + ")", nil
	case trace.Par:
		return st.String(), nil
	case trace.Ap:
		return st.String(), nil
	case trace.Fold:
		return st.String(), nil
	default:
		return "", fmt.Errorf("unknown state %T", s)
	}
}

func (r renderer) callResult(res trace.CallResult) (string, error) {
	switch cr := res.(type) {
	case trace.Executed:
		v, err := r.serviceResult(cr.Value.ServiceResultCID())
		if err != nil {
			return "", err
		}
		switch ref := cr.Value.(type) {
		case trace.Scalar:
			return "scalar(" + v + ")", nil
		case trace.Stream:
			return fmt.Sprintf("stream(%s, %d)", v, ref.Generation), nil
		default:
			return "unused(" + v + ")", nil
		}
	case trace.Failed:
		v, err := r.serviceResult(cr.CID)
		if err != nil {
			return "", err
		}
		return "failed(" + v + ")", nil
	case trace.RequestSentBy:
		if cr.CallID != nil {
			return fmt.Sprintf("sent_by(%s, %d)", r.names(cr.PeerID), *cr.CallID), nil
		}
		return "sent_by(" + r.names(cr.PeerID) + ")", nil
	default:
		return "", fmt.Errorf("unknown call result %T", res)
	}
}

func (r renderer) serviceResult(c ir.CID) (string, error) {
	agg, err := r.tracker.ServiceResult(c)
	if err != nil {
		return "", err
	}
	v, err := r.tracker.Value(agg.ValueCID)
	if err != nil {
		return "", err
	}
	return string(ir.MustMarshalCanonical(v)), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertGoldenIn(t, GoldenDir, scenarioName, result)
}

func assertGoldenIn(t *testing.T, dir, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)

	return nil
}
