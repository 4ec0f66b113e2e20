package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/cid"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/stream"
	"github.com/fluencelabs/aquavm-sub001/internal/tracehandler"
)

// Config parameterizes one execution.
type Config struct {
	InitPeerID    string
	CurrentPeerID string

	// Timestamp is the particle creation time in milliseconds.
	Timestamp uint64

	// TTL is the particle lifetime in milliseconds. Zero disables the deadline.
	TTL uint32

	StreamSizeLimit int

	// LastCallRequestID is the last call id this peer handed out.
	LastCallRequestID uint32

	// CallResults are the host's answers, keyed by call id.
	CallResults map[uint32]CallResult

	Logger *slog.Logger
	Now    func() time.Time
}

// Result is the outcome of a completed execution.
type Result struct {
	// Complete reports whether the script ran to its end on this peer.
	Complete bool

	// Err is a catchable error no xor handled.
	Err *CatchableError

	CallRequests      map[uint32]CallRequest
	NextPeers         []string
	LastCallRequestID uint32
}

// Executor walks an instruction tree against a trace handler.
// It is single-use: create one per turn.
type Executor struct {
	handler *tracehandler.Handler
	tracker *cid.Tracker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	scalars   *frames[scalar]
	canons    *frames[*stream.Canon]
	canonMaps *frames[*stream.Canon]
	streams   *streams

	folds      map[string][]*foldState
	nextFoldID uint32

	// lastError is the last error an xor caught; caught holds the error of
	// every xor fallback branch being executed.
	lastError *CatchableError
	caught    []*CatchableError

	results    map[uint32]CallResult
	lastCallID uint32
	requests   map[uint32]CallRequest
	nextPeers  []string
}

// New creates an executor over a trace handler and the CID tracker seeded
// with the incoming stores.
func New(h *tracehandler.Handler, tracker *cid.Tracker, cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		handler:    h,
		tracker:    tracker,
		cfg:        cfg,
		logger:     logger,
		now:        now,
		scalars:    newFrames[scalar](),
		canons:     newFrames[*stream.Canon](),
		canonMaps:  newFrames[*stream.Canon](),
		streams:    newStreams(cfg.StreamSizeLimit),
		folds:      make(map[string][]*foldState),
		results:    maps.Clone(cfg.CallResults),
		lastCallID: cfg.LastCallRequestID,
		requests:   make(map[uint32]CallRequest),
	}
}

// Run executes the script. A catchable error that reaches the top is
// reported in Result.Err; any returned error is uncatchable.
func (e *Executor) Run(root air.Instruction) (*Result, error) {
	complete, err := e.execute(root)

	var ce *CatchableError
	switch {
	case err == nil:
	case errors.As(err, &ce):
	default:
		return nil, err
	}

	if len(e.results) > 0 {
		ids := slices.Sorted(maps.Keys(e.results))
		return nil, uncatchable(CallResultsNotEmpty, nil, fmt.Errorf("call results %v were not used", ids))
	}

	return &Result{
		Complete:          complete && ce == nil,
		Err:               ce,
		CallRequests:      e.requests,
		NextPeers:         e.nextPeers,
		LastCallRequestID: e.lastCallID,
	}, nil
}

// CompactStreams compactifies every global stream and stream map so the
// generations recorded in the result trace are contiguous.
func (e *Executor) CompactStreams() error {
	for _, st := range e.streams.globals() {
		if err := st.Compactify(e.handler); err != nil {
			return uncatchable(GenerationCompactification, nil, err)
		}
	}
	return nil
}

func (e *Executor) execute(instr air.Instruction) (bool, error) {
	complete, err := e.dispatch(instr)
	var ce *CatchableError
	if errors.As(err, &ce) && ce.Instruction == "" {
		ce.Instruction = instr.String()
		if ce.PeerID == "" {
			ce.PeerID = e.cfg.CurrentPeerID
		}
	}
	return complete, err
}

func (e *Executor) dispatch(instr air.Instruction) (bool, error) {
	switch i := instr.(type) {
	case air.Seq:
		return e.seq(i)
	case air.Par:
		return e.par(i)
	case air.Xor:
		return e.xor(i)
	case air.Match:
		return e.match(i.Left, i.Right, i.Body, true)
	case air.Mismatch:
		return e.match(i.Left, i.Right, i.Body, false)
	case air.Fold:
		return e.fold(i)
	case air.Next:
		return e.next(i)
	case air.New:
		return e.newScope(i)
	case air.Null:
		return true, nil
	case air.Ap:
		return e.ap(i)
	case air.ApMap:
		return e.apMap(i)
	case air.Call:
		return e.call(i)
	case air.Canon:
		return e.canon(i)
	case air.Fail:
		return e.fail(i)
	default:
		return false, fmt.Errorf("unsupported instruction %T", instr)
	}
}

// seq runs the right side only when the left side completed.
func (e *Executor) seq(s air.Seq) (bool, error) {
	complete, err := e.execute(s.Left)
	if err != nil || !complete {
		return false, err
	}
	return e.execute(s.Right)
}

// par runs both sides. A catchable error of one side is absorbed unless
// the other side failed too.
func (e *Executor) par(p air.Par) (bool, error) {
	if err := e.handler.MeetParStart(); err != nil {
		return false, e.traceError(p, err)
	}

	leftComplete, leftErr := e.execute(p.Left)
	if IsUncatchable(leftErr) {
		return false, leftErr
	}
	if err := e.handler.MeetParSubtreeEnd(tracehandler.Left); err != nil {
		return false, e.traceError(p, err)
	}

	rightComplete, rightErr := e.execute(p.Right)
	if IsUncatchable(rightErr) {
		return false, rightErr
	}
	if err := e.handler.MeetParSubtreeEnd(tracehandler.Right); err != nil {
		return false, e.traceError(p, err)
	}

	switch {
	case leftErr != nil && rightErr != nil:
		return false, leftErr
	case leftErr != nil:
		return rightComplete, nil
	case rightErr != nil:
		return leftComplete, nil
	}
	return leftComplete || rightComplete, nil
}

// xor runs the right side when the left side fails with a catchable error.
// The error is visible as %last_error% from then on and as :error: inside
// the right side.
func (e *Executor) xor(x air.Xor) (bool, error) {
	complete, err := e.execute(x.Left)
	var ce *CatchableError
	if !errors.As(err, &ce) {
		return complete, err
	}

	e.logger.Debug("xor caught error",
		"kind", ce.Kind.String(),
		"instruction", ce.Instruction,
	)
	e.lastError = ce
	e.caught = append(e.caught, ce)
	defer func() { e.caught = e.caught[:len(e.caught)-1] }()
	return e.execute(x.Right)
}

func (e *Executor) match(left, right air.Value, body air.Instruction, equal bool) (bool, error) {
	l, ok, err := e.resolveValue(left)
	if err != nil || !ok {
		return false, err
	}
	r, ok, err := e.resolveValue(right)
	if err != nil || !ok {
		return false, err
	}

	same := ir.Equal(l.value, r.value)
	switch {
	case same == equal:
		return e.execute(body)
	case equal:
		return false, newCatchable(MatchValuesNotEqual,
			"compared values '%s' and '%s' are not equal", render(l.value), render(r.value))
	default:
		return false, newCatchable(MismatchValuesEqual,
			"compared values '%s' and '%s' are equal", render(l.value), render(r.value))
	}
}

// newScope restricts a variable to the body of new.
func (e *Executor) newScope(n air.New) (bool, error) {
	switch v := n.Variable.(type) {
	case air.Scalar:
		e.scalars.push()
		defer e.scalars.popInto(v.Name)
		return e.execute(n.Body)
	case air.CanonStream:
		e.canons.push()
		defer e.canons.popInto(v.Name)
		return e.execute(n.Body)
	case air.CanonMap:
		e.canonMaps.push()
		defer e.canonMaps.popInto(v.Name)
		return e.execute(n.Body)
	case air.Stream:
		e.streams.pushStream(v.Name)
		complete, err := e.execute(n.Body)
		scoped := e.streams.popStream(v.Name)
		return e.closeScope(n, scoped, complete, err)
	case air.StreamMap:
		e.streams.pushMap(v.Name)
		complete, err := e.execute(n.Body)
		scoped := e.streams.popMap(v.Name)
		return e.closeScope(n, scoped.Stream(), complete, err)
	default:
		return false, fmt.Errorf("new over unsupported variable %s", n.Variable)
	}
}

// closeScope compactifies a stream leaving its new scope.
func (e *Executor) closeScope(n air.New, scoped *stream.Stream, complete bool, err error) (bool, error) {
	if IsUncatchable(err) {
		return false, err
	}
	if cerr := scoped.Compactify(e.handler); cerr != nil {
		return false, uncatchable(GenerationCompactification, n, cerr)
	}
	return complete, err
}

func (e *Executor) addNextPeer(peer string) {
	if !slices.Contains(e.nextPeers, peer) {
		e.nextPeers = append(e.nextPeers, peer)
	}
}

func (e *Executor) traceError(instr air.Instruction, err error) error {
	return uncatchable(TraceError, instr, err)
}

func (e *Executor) cidError(instr air.Instruction, err error) error {
	return uncatchable(CidError, instr, err)
}

func (e *Executor) defineScalar(instr air.Instruction, name string, v scalar) error {
	if err := e.scalars.define(name, v); err != nil {
		return uncatchable(ScalarAlreadyDefined, instr, err)
	}
	return nil
}

// streamError classifies errors from stream writes.
func (e *Executor) streamError(instr air.Instruction, err error) error {
	if stream.IsSizeLimitError(err) {
		return uncatchable(StreamSizeLimitExceeded, instr, err)
	}
	return uncatchable(TraceError, instr, err)
}
