package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

func TestLinearSeqForwardsToFirstPeer(t *testing.T) {
	p := newPeer(t, "init", `(seq (call "p1" ("s" "f") [] x) (call "p2" ("s" "f") [x]))`)

	out := p.mustRun(turn{}, turn{}, nil)

	assert.Equal(t, trace.Trace{trace.SentBy("p1")}, out.trace)
	assert.Equal(t, []string{"p1"}, out.result.NextPeers)
	assert.False(t, out.result.Complete)
	assert.Nil(t, out.result.Err)
	assert.Empty(t, out.result.CallRequests)
}

func TestForwardedCallIsNotForwardedAgain(t *testing.T) {
	p := newPeer(t, "init", `(call "p1" ("s" "f") [] x)`)

	first := p.mustRun(turn{}, turn{}, nil)
	second := p.mustRun(first, turn{}, nil)

	assert.Equal(t, trace.Trace{trace.SentBy("p1")}, second.trace)
	assert.Empty(t, second.result.NextPeers)
}

func TestLocalCallRoundTrip(t *testing.T) {
	p := newPeer(t, "init", `(call %init_peer_id% ("s" "f") ["a" 1] x)`)

	first := p.mustRun(turn{}, turn{}, nil)
	assert.Equal(t, trace.Trace{trace.SentByWithID("init", 1)}, first.trace)
	assert.Equal(t, uint32(1), first.lastCallID)
	require.Contains(t, first.result.CallRequests, uint32(1))
	assert.Equal(t, CallRequest{
		ServiceID:    "s",
		FunctionName: "f",
		Arguments:    []ir.Value{ir.String("a"), ir.Int(1)},
		Tetraplets:   [][]ir.Tetraplet{{{PeerPK: "init"}}, {{PeerPK: "init"}}},
	}, first.result.CallRequests[1])

	// Without a result the request stays pending and is not issued again.
	waiting := p.mustRun(first, turn{}, nil)
	assert.Equal(t, first.trace, waiting.trace)
	assert.Empty(t, waiting.result.CallRequests)

	second := p.mustRun(first, turn{}, map[uint32]CallResult{1: {Result: ir.String("r")}})
	require.Len(t, second.trace, 1)
	executed, ok := second.trace[0].(trace.Call).Result.(trace.Executed)
	require.True(t, ok)
	ref, ok := executed.Value.(trace.Scalar)
	require.True(t, ok)

	agg, ok := second.info.ServiceResults.Get(ref.CID)
	require.True(t, ok)
	assert.Equal(t, ir.MustValueCID(ir.String("r")), agg.ValueCID)
	assert.Equal(t, uint32(0), agg.TracePos)
	assert.True(t, second.result.Complete)
	assert.Empty(t, second.result.CallRequests)
}

func TestCallOutputs(t *testing.T) {
	tests := []struct {
		name   string
		script string
		check  func(t *testing.T, ref trace.ValueRef)
	}{
		{
			name:   "unused",
			script: `(call %init_peer_id% ("s" "f") [])`,
			check: func(t *testing.T, ref trace.ValueRef) {
				assert.IsType(t, trace.Unused{}, ref)
			},
		},
		{
			name:   "stream",
			script: `(call %init_peer_id% ("s" "f") [] $s)`,
			check: func(t *testing.T, ref trace.ValueRef) {
				s, ok := ref.(trace.Stream)
				require.True(t, ok)
				assert.Equal(t, uint32(0), s.Generation)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPeer(t, "init", tt.script)
			out := p.serve(turn{}, func(CallRequest) CallResult { return CallResult{Result: ir.Int(7)} })
			require.Len(t, out.trace, 1)
			executed, ok := out.trace[0].(trace.Call).Result.(trace.Executed)
			require.True(t, ok)
			tt.check(t, executed.Value)
		})
	}
}

func TestXorCatchesServiceError(t *testing.T) {
	const script = `(xor (call "p" ("s" "f") []) (call "self" ("e" "h") [:error:.$.message]))`
	p := newPeer(t, "p", script)

	first := p.mustRun(turn{}, turn{}, nil)
	failed := p.mustRun(first, turn{}, map[uint32]CallResult{1: {RetCode: 1, Result: ir.String("boom")}})

	require.Len(t, failed.trace, 2)
	assert.IsType(t, trace.Failed{}, failed.trace[0].(trace.Call).Result)
	assert.Equal(t, trace.SentBy("self"), failed.trace[1])
	assert.Equal(t, []string{"self"}, failed.result.NextPeers)
	assert.Nil(t, failed.result.Err)

	self := newPeer(t, "self", script)
	self.init = "p"
	out := self.mustRun(turn{}, failed, nil)

	require.Len(t, out.trace, 2)
	assert.Equal(t, failed.trace[0], out.trace[0])
	assert.Equal(t, trace.SentByWithID("self", 1), out.trace[1])
	require.Contains(t, out.result.CallRequests, uint32(1))
	assert.Equal(t,
		[]ir.Value{ir.String(`Local service error, ret_code is 1, error message is '"boom"'`)},
		out.result.CallRequests[1].Arguments)
}

func TestUncaughtServiceError(t *testing.T) {
	p := newPeer(t, "init", `(call %init_peer_id% ("s" "f") [])`)

	out := p.serve(turn{}, func(CallRequest) CallResult {
		return CallResult{RetCode: 5, Result: ir.String("nope")}
	})

	require.NotNil(t, out.result.Err)
	assert.Equal(t, LocalServiceError, out.result.Err.Kind)
	assert.Equal(t, int64(5), out.result.Err.ErrorCode)
	assert.Equal(t, int64(10001), out.result.Err.ReturnCode())
	assert.Equal(t, `(call %init_peer_id% ("s" "f") [])`, out.result.Err.Instruction)
	assert.Equal(t, "init", out.result.Err.PeerID)
	assert.False(t, out.result.Complete)
}

func TestPar(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		trace    trace.Trace
		complete bool
		errCode  int64
	}{
		{
			name:     "one failed branch is absorbed",
			script:   `(par (fail 1 "left") (ap "x" y))`,
			trace:    trace.Trace{trace.Par{}},
			complete: true,
		},
		{
			name:    "both failed branches report the left error",
			script:  `(par (fail 1 "left") (fail 2 "right"))`,
			trace:   trace.Trace{trace.Par{}},
			errCode: 1,
		},
		{
			name:   "unbound variable waits",
			script: `(par (call "other" ("s" "f") [] x) (call %init_peer_id% ("s" "g") [x]))`,
			trace:  trace.Trace{trace.Par{Left: 1}, trace.SentBy("other")},
		},
		{
			name:     "null side",
			script:   `(par (null) (call "other" ("s" "f") []))`,
			trace:    trace.Trace{trace.Par{Right: 1}, trace.SentBy("other")},
			complete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newPeer(t, "init", tt.script).mustRun(turn{}, turn{}, nil)
			assert.Equal(t, tt.trace, out.trace)
			assert.Equal(t, tt.complete, out.result.Complete)
			if tt.errCode == 0 {
				assert.Nil(t, out.result.Err)
				return
			}
			require.NotNil(t, out.result.Err)
			assert.Equal(t, tt.errCode, out.result.Err.ErrorCode)
		})
	}
}

func TestJoinableApAndMatch(t *testing.T) {
	scripts := []string{
		`(par (call "other" ("s" "f") [] x) (ap x y))`,
		`(par (call "other" ("s" "f") [] x) (match x 1 (null)))`,
		`(par (call "other" ("s" "f") [] x) (fold x i (next i)))`,
	}
	for _, script := range scripts {
		out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)
		assert.Equal(t, trace.Trace{trace.Par{Left: 1}, trace.SentBy("other")}, out.trace, script)
		assert.False(t, out.result.Complete, script)
		assert.Nil(t, out.result.Err, script)
	}
}

func TestMatchAndMismatch(t *testing.T) {
	tests := []struct {
		script   string
		complete bool
		kind     CatchableKind
	}{
		{script: `(match "a" "a" (ap 1 x))`, complete: true},
		{script: `(match 1 1 (null))`, complete: true},
		{script: `(match "a" "b" (null))`, kind: MatchValuesNotEqual},
		{script: `(mismatch "a" "b" (null))`, complete: true},
		{script: `(mismatch "a" "a" (null))`, kind: MismatchValuesEqual},
		{script: `(xor (match 1 2 (null)) (null))`, complete: true},
	}

	for _, tt := range tests {
		out := newPeer(t, "init", tt.script).mustRun(turn{}, turn{}, nil)
		assert.Equal(t, tt.complete, out.result.Complete, tt.script)
		if tt.kind == 0 {
			assert.Nil(t, out.result.Err, tt.script)
			continue
		}
		require.NotNil(t, out.result.Err, tt.script)
		assert.Equal(t, tt.kind, out.result.Err.Kind, tt.script)
	}
}

func TestFail(t *testing.T) {
	t.Run("literal", func(t *testing.T) {
		out := newPeer(t, "init", `(fail 42 "bad things")`).mustRun(turn{}, turn{}, nil)
		require.NotNil(t, out.result.Err)
		assert.Equal(t, &CatchableError{
			Kind:        UserError,
			ErrorCode:   42,
			Message:     "bad things",
			Instruction: `(fail 42 "bad things")`,
			PeerID:      "init",
		}, out.result.Err)
		assert.Equal(t, int64(10012), out.result.Err.ReturnCode())
	})

	t.Run("scalar", func(t *testing.T) {
		p := newPeer(t, "init", `(seq (call %init_peer_id% ("s" "err") [] e) (fail e))`)
		out := p.serve(turn{}, func(CallRequest) CallResult {
			return CallResult{Result: ir.Object{"error_code": ir.Int(7), "message": ir.String("m")}}
		})
		require.NotNil(t, out.result.Err)
		assert.Equal(t, UserError, out.result.Err.Kind)
		assert.Equal(t, int64(7), out.result.Err.ErrorCode)
		assert.Equal(t, "m", out.result.Err.Message)
	})

	invalid := []struct {
		name    string
		result  ir.Value
		message string
	}{
		{"scalar not an object", ir.String("oops"), `scalar e must be an object, found '"oops"'`},
		{"scalar without message", ir.Object{"error_code": ir.Int(7)}, "scalar e must contain the field message"},
		{"scalar without error code", ir.Object{"message": ir.String("m")}, "scalar e must contain the field error_code"},
		{"error code of wrong type", ir.Object{"error_code": ir.String("7"), "message": ir.String("m")},
			`field error_code of scalar e must be an integer, found '"7"'`},
		{"message of wrong type", ir.Object{"error_code": ir.Int(7), "message": ir.Int(1)},
			"field message of scalar e must be a string, found '1'"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			p := newPeer(t, "init", `(seq (call %init_peer_id% ("s" "err") [] e) (fail e))`)
			out := p.serve(turn{}, func(CallRequest) CallResult { return CallResult{Result: tc.result} })
			require.NotNil(t, out.result.Err)
			assert.Equal(t, InvalidLastErrorObject, out.result.Err.Kind)
			assert.Contains(t, out.result.Err.Message, tc.message)
		})
	}

	t.Run("rethrow", func(t *testing.T) {
		script := `(xor (xor (fail 3 "inner") (fail %last_error%)) (fail :error:))`
		out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)
		require.NotNil(t, out.result.Err)
		assert.Equal(t, int64(3), out.result.Err.ErrorCode)
		assert.Equal(t, "inner", out.result.Err.Message)
		assert.Equal(t, `(fail 3 "inner")`, out.result.Err.Instruction)
	})

	t.Run("rethrow without error", func(t *testing.T) {
		out := newPeer(t, "init", `(fail %last_error%)`).mustRun(turn{}, turn{}, nil)
		assert.Nil(t, out.result.Err)
		assert.True(t, out.result.Complete)
	})
}

func TestLastErrorIsVisibleAfterXor(t *testing.T) {
	script := `(seq (xor (fail 9 "x") (null)) (call %init_peer_id% ("s" "f") [%last_error%.$.error_code :error:.$.error_code]))`
	out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)

	require.Contains(t, out.result.CallRequests, uint32(1))
	assert.Equal(t, []ir.Value{ir.Int(9), ir.Int(0)}, out.result.CallRequests[1].Arguments)
}

func TestFoldOverArrayLiteral(t *testing.T) {
	script := `
		(seq
			(fold ["a" "b" "c"] i (seq (ap i $out) (next i)))
			(seq
				(canon %init_peer_id% $out #c)
				(call %init_peer_id% ("s" "f") [#c #c.length])))`
	out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)

	require.Len(t, out.trace, 5)
	for _, st := range out.trace[:3] {
		assert.Equal(t, trace.Ap{Generations: []uint32{0}}, st)
	}
	assert.IsType(t, trace.Canon{}, out.trace[3])
	assert.Equal(t, trace.SentByWithID("init", 1), out.trace[4])

	req := out.result.CallRequests[1]
	assert.Equal(t, []ir.Value{
		ir.Array{ir.String("a"), ir.String("b"), ir.String("c")},
		ir.Int(3),
	}, req.Arguments)
	lit := ir.Tetraplet{PeerPK: "init"}
	assert.Equal(t, [][]ir.Tetraplet{
		{lit, lit, lit},
		{{PeerPK: "init", LambdaPath: ".length"}},
	}, req.Tetraplets)
}

func TestFoldLast(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   ir.Value
	}{
		{
			name:   "empty array",
			script: `(seq (fold [] i (next i) (ap "empty" x)) (call %init_peer_id% ("s" "f") [x]))`,
			want:   ir.String("empty"),
		},
		{
			name:   "after last next",
			script: `(seq (fold [1 2] i (next i) (ap "done" x)) (call %init_peer_id% ("s" "f") [x]))`,
			want:   ir.String("done"),
		},
		{
			name:   "empty stream",
			script: `(seq (fold $s i (next i) (ap "none" x)) (call %init_peer_id% ("s" "f") [x]))`,
			want:   ir.String("none"),
		},
		{
			name:   "after nested iterations",
			script: `(seq (fold [1 2 3] i (seq (ap i y) (next i)) (ap "done" x)) (call %init_peer_id% ("s" "f") [x]))`,
			want:   ir.String("done"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newPeer(t, "init", tt.script).mustRun(turn{}, turn{}, nil)
			require.Contains(t, out.result.CallRequests, uint32(1))
			assert.Equal(t, []ir.Value{tt.want}, out.result.CallRequests[1].Arguments)
		})
	}
}

func TestFoldLastNeedsNext(t *testing.T) {
	script := `(seq (fold [1 2] i (null) (ap "done" x)) (call %init_peer_id% ("s" "f") [x]))`
	out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)
	assert.Empty(t, out.result.CallRequests)
	assert.False(t, out.result.Complete)
}

func TestFoldOverScalarExtendsTetraplets(t *testing.T) {
	script := `(seq (call %init_peer_id% ("s" "list") [] xs) (fold xs i (seq (call %init_peer_id% ("s" "use") [i]) (next i))))`
	var uses [][]ir.Tetraplet
	p := newPeer(t, "init", script)
	out := p.serve(turn{}, func(req CallRequest) CallResult {
		if req.FunctionName == "list" {
			return CallResult{Result: ir.Array{ir.Int(1), ir.Int(2)}}
		}
		uses = append(uses, req.Tetraplets[0])
		return CallResult{Result: ir.Null{}}
	})

	assert.True(t, out.result.Complete)
	assert.Equal(t, [][]ir.Tetraplet{
		{{PeerPK: "init", ServiceID: "s", FunctionName: "list", LambdaPath: ".$.[0]"}},
		{{PeerPK: "init", ServiceID: "s", FunctionName: "list", LambdaPath: ".$.[1]"}},
	}, uses)
}

func TestFoldOverNonArray(t *testing.T) {
	out := newPeer(t, "init", `(seq (ap "x" s) (fold s i (next i)))`).mustRun(turn{}, turn{}, nil)
	require.NotNil(t, out.result.Err)
	assert.Equal(t, FoldIteratesOverNonArray, out.result.Err.Kind)
}

func TestStreamFold(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out := newPeer(t, "init", `(fold $s i (next i))`).mustRun(turn{}, turn{}, nil)
		assert.Equal(t, trace.Trace{trace.Fold{Lore: []trace.SubTraceLore{}}}, out.trace)
		assert.True(t, out.result.Complete)
	})

	t.Run("lore", func(t *testing.T) {
		script := `(seq (seq (ap 1 $s) (ap 2 $s)) (fold $s i (seq (ap i $t) (next i))))`
		out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)

		gen0 := trace.Ap{Generations: []uint32{0}}
		assert.Equal(t, trace.Trace{
			gen0,
			gen0,
			trace.Fold{Lore: []trace.SubTraceLore{
				{ValuePos: 0, Descs: []trace.SubTraceDesc{{BeginPos: 3, SubtraceLen: 1}, {BeginPos: 5}}},
				{ValuePos: 1, Descs: []trace.SubTraceDesc{{BeginPos: 4, SubtraceLen: 1}, {BeginPos: 5}}},
			}},
			gen0,
			gen0,
		}, out.trace)
		assert.True(t, out.result.Complete)
	})
}

func TestRecursiveStreamFoldWithEarlyExit(t *testing.T) {
	script := `
		(seq
			(seq (ap "seed" $s) (ap "seed" $s))
			(fold $s i
				(seq
					(call %init_peer_id% ("stopper" "next") [] r)
					(xor
						(match r "stop" (null))
						(seq (ap r $s) (next i))))))`
	calls := 0
	out := newPeer(t, "init", script).serve(turn{}, func(CallRequest) CallResult {
		calls++
		if calls == 11 {
			return CallResult{Result: ir.String("stop")}
		}
		return CallResult{Result: ir.String("non_stop")}
	})

	assert.Equal(t, 11, calls)
	assert.True(t, out.result.Complete)
	assert.Nil(t, out.result.Err)

	var folds []trace.Fold
	for _, st := range out.trace {
		if f, ok := st.(trace.Fold); ok {
			folds = append(folds, f)
		}
	}
	require.Len(t, folds, 1)
	assert.Len(t, folds[0].Lore, 11)
}

func TestCanonStreamMap(t *testing.T) {
	script := `
		(seq
			(seq (ap ("b" 1) %m) (ap ("a" 2) %m))
			(seq
				(canon %init_peer_id% %m #%c)
				(call %init_peer_id% ("s" "f") [#%c.$.a #%c])))`
	out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)

	require.Contains(t, out.result.CallRequests, uint32(1))
	assert.Equal(t, []ir.Value{
		ir.Int(2),
		ir.Array{
			ir.Object{"key": ir.String("a"), "value": ir.Int(2)},
			ir.Object{"key": ir.String("b"), "value": ir.Int(1)},
		},
	}, out.result.CallRequests[1].Arguments)
}

func TestApMapRejectsKey(t *testing.T) {
	out := newPeer(t, "init", `(ap (true 1) %m)`).mustRun(turn{}, turn{}, nil)
	require.NotNil(t, out.result.Err)
	assert.Equal(t, StreamMapError, out.result.Err.Kind)
	assert.Empty(t, out.trace)
}

func TestCanonOfEmptyStream(t *testing.T) {
	out := newPeer(t, "init", `(canon %init_peer_id% $empty #n)`).mustRun(turn{}, turn{}, nil)

	require.Len(t, out.trace, 1)
	canon := out.trace[0].(trace.Canon)
	res, ok := out.info.CanonResults.Get(canon.CID)
	require.True(t, ok)
	assert.Empty(t, res.Values)
	assert.True(t, out.result.Complete)
}

func TestCanonOnRemotePeerWaits(t *testing.T) {
	out := newPeer(t, "init", `(canon "other" $s #c)`).mustRun(turn{}, turn{}, nil)
	assert.Empty(t, out.trace)
	assert.Equal(t, []string{"other"}, out.result.NextPeers)
	assert.False(t, out.result.Complete)
}

func TestCanonReplayKeepsSnapshot(t *testing.T) {
	script := `(seq (seq (ap 1 $s) (canon %init_peer_id% $s #c)) (call %init_peer_id% ("s" "f") [#c]))`
	p := newPeer(t, "init", script)
	first := p.mustRun(turn{}, turn{}, nil)
	second := p.mustRun(first, turn{}, map[uint32]CallResult{1: {Result: ir.Null{}}})

	assert.Equal(t, first.trace[1], second.trace[1])
	assert.True(t, second.result.Complete)
}

func TestNewScopes(t *testing.T) {
	t.Run("stream", func(t *testing.T) {
		script := `
			(seq
				(new $s (seq (ap 1 $s) (ap 2 $s)))
				(seq (canon %init_peer_id% $s #c) (call %init_peer_id% ("s" "f") [#c])))`
		out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)
		require.Contains(t, out.result.CallRequests, uint32(1))
		assert.Equal(t, []ir.Value{ir.Array{}}, out.result.CallRequests[1].Arguments)
	})

	t.Run("stream inherits enclosing values", func(t *testing.T) {
		script := `
			(seq
				(ap 0 $s)
				(seq
					(new $s (ap 1 $s))
					(seq
						(new $s (seq (ap 2 $s) (seq (canon %init_peer_id% $s #inner) (call %init_peer_id% ("s" "inner") [#inner]))))
						(seq (canon %init_peer_id% $s #outer) (call %init_peer_id% ("s" "outer") [#outer])))))`
		out := newPeer(t, "init", script).mustRun(turn{}, turn{}, nil)
		require.Len(t, out.result.CallRequests, 2)
		assert.Equal(t, []ir.Value{ir.Array{ir.Int(0), ir.Int(2)}}, out.result.CallRequests[1].Arguments)
		assert.Equal(t, []ir.Value{ir.Array{ir.Int(0)}}, out.result.CallRequests[2].Arguments)
	})

	t.Run("scalar", func(t *testing.T) {
		out := newPeer(t, "init", `(seq (new x (ap 1 x)) (ap 2 x))`).mustRun(turn{}, turn{}, nil)
		assert.True(t, out.result.Complete)
	})

	t.Run("redefinition outside new", func(t *testing.T) {
		_, err := newPeer(t, "init", `(seq (ap 1 x) (ap 2 x))`).run(turn{}, turn{}, nil)
		assert.True(t, IsUncatchableKind(err, ScalarAlreadyDefined))
	})
}

func TestCompactificationRewritesGenerations(t *testing.T) {
	prev := trace.Trace{
		trace.Ap{Generations: []uint32{0}},
		trace.Ap{Generations: []uint32{2}},
		trace.Ap{Generations: []uint32{4}},
	}
	p := newPeer(t, "init", `(seq (ap 1 $s) (seq (ap 2 $s) (ap 3 $s)))`)

	out := p.mustRun(turn{trace: prev}, turn{}, nil)

	assert.Equal(t, trace.Trace{
		trace.Ap{Generations: []uint32{0}},
		trace.Ap{Generations: []uint32{1}},
		trace.Ap{Generations: []uint32{2}},
	}, out.trace)
}

func TestUncatchableErrors(t *testing.T) {
	t.Run("unused call results", func(t *testing.T) {
		_, err := newPeer(t, "init", `(null)`).run(turn{}, turn{}, map[uint32]CallResult{5: {}})
		assert.True(t, IsUncatchableKind(err, CallResultsNotEmpty))
	})

	t.Run("ttl exceeded", func(t *testing.T) {
		p := newPeer(t, "init", `(call %init_peer_id% ("s" "f") [])`)
		p.cfg.TTL = 10
		p.cfg.Now = func() time.Time { return time.UnixMilli(2_000) }
		_, err := p.run(turn{}, turn{}, nil)
		assert.True(t, IsUncatchableKind(err, TtlExceeded))
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		p := newPeer(t, "init", `(call %init_peer_id% ("s" "f") [])`)
		p.cfg.Now = func() time.Time { return time.UnixMilli(1 << 40) }
		_, err := p.run(turn{}, turn{}, nil)
		assert.NoError(t, err)
	})

	t.Run("stream size limit", func(t *testing.T) {
		p := newPeer(t, "init", `(seq (ap 1 $s) (seq (ap 2 $s) (ap 3 $s)))`)
		p.cfg.StreamSizeLimit = 2
		_, err := p.run(turn{}, turn{}, nil)
		assert.True(t, IsUncatchableKind(err, StreamSizeLimitExceeded))
	})

	t.Run("state kind mismatch", func(t *testing.T) {
		p := newPeer(t, "init", `(call %init_peer_id% ("s" "f") [])`)
		_, err := p.run(turn{trace: trace.Trace{trace.Ap{Generations: []uint32{0}}}}, turn{}, nil)
		assert.True(t, IsUncatchableKind(err, TraceError))
	})

	t.Run("missing service result", func(t *testing.T) {
		p := newPeer(t, "init", `(call %init_peer_id% ("s" "f") [] x)`)
		_, err := p.run(turn{trace: trace.Trace{trace.ScalarCall("bmissing")}}, turn{}, nil)
		assert.True(t, IsUncatchableKind(err, CidError))
	})
}

func TestNonStringTriplet(t *testing.T) {
	out := newPeer(t, "init", `(call 1 ("s" "f") [])`).mustRun(turn{}, turn{}, nil)
	require.NotNil(t, out.result.Err)
	assert.Equal(t, NonStringValueInTripletResolution, out.result.Err.Kind)
	assert.Empty(t, out.trace)
}
