package execution

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/cid"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
	"github.com/fluencelabs/aquavm-sub001/internal/tracehandler"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// turn is the state a peer keeps between executions.
type turn struct {
	trace      trace.Trace
	info       *cid.Info
	lastCallID uint32
	result     *Result
}

// peer runs a script on one peer, turn after turn.
type peer struct {
	t      *testing.T
	id     string
	init   string
	script air.Instruction
	cfg    Config
}

func newPeer(t *testing.T, id, script string) *peer {
	t.Helper()
	root, err := air.Parse(script)
	require.NoError(t, err)
	return &peer{
		t:      t,
		id:     id,
		init:   id,
		script: root,
		cfg: Config{
			Timestamp: 1_000,
			Now:       func() time.Time { return time.UnixMilli(1_000) },
			Logger:    quiet,
		},
	}
}

// run executes one turn over prev (this peer's last data) and cur (the
// incoming data).
func (p *peer) run(prev, cur turn, results map[uint32]CallResult) (turn, error) {
	cfg := p.cfg
	cfg.InitPeerID = p.init
	cfg.CurrentPeerID = p.id
	cfg.LastCallRequestID = prev.lastCallID
	cfg.CallResults = results

	h := tracehandler.New(prev.trace, cur.trace)
	tracker := cid.NewTracker(prev.info, cur.info)
	exec := New(h, tracker, cfg)
	res, err := exec.Run(p.script)
	if err != nil {
		return turn{}, err
	}
	if err := exec.CompactStreams(); err != nil {
		return turn{}, err
	}
	return turn{
		trace:      h.ResultTrace(),
		info:       tracker.Info(),
		lastCallID: res.LastCallRequestID,
		result:     res,
	}, nil
}

// mustRun is run that fails the test on an uncatchable error.
func (p *peer) mustRun(prev, cur turn, results map[uint32]CallResult) turn {
	p.t.Helper()
	out, err := p.run(prev, cur, results)
	require.NoError(p.t, err)
	return out
}

// serve keeps answering this peer's call requests with service until the
// script stops asking. It returns the last turn.
func (p *peer) serve(start turn, service func(CallRequest) CallResult) turn {
	p.t.Helper()
	cur := p.mustRun(turn{}, start, nil)
	for i := 0; len(cur.result.CallRequests) > 0; i++ {
		require.Less(p.t, i, 1000, "script keeps requesting calls")
		results := make(map[uint32]CallResult, len(cur.result.CallRequests))
		for id, req := range cur.result.CallRequests {
			results[id] = service(req)
		}
		cur = p.mustRun(cur, turn{}, results)
	}
	return cur
}
