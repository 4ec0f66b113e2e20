package interpreter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/metrics"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
	"github.com/fluencelabs/aquavm-sub001/internal/stream"
)

// RunParameters describe the particle and the peer running it.
type RunParameters struct {
	InitPeerID string

	// CurrentPeerID defaults to the peer id of the interpreter's key pair.
	CurrentPeerID string

	// Timestamp is the particle creation time in milliseconds.
	Timestamp uint64

	// TTL is the particle lifetime in milliseconds. Zero disables it.
	TTL uint32

	// KeyFormat must match the interpreter's key pair.
	KeyFormat signature.KeyFormat

	// ParticleID salts every signature.
	ParticleID string
}

// Outcome is what the host receives after a turn.
type Outcome struct {
	// RetCode is 0 on success, 10000+ for an unhandled catchable error and
	// 20000+ for an error that aborted the turn.
	RetCode      int64
	ErrorMessage string

	// Data is the outgoing data. It is the unchanged previous data when the
	// turn was aborted.
	Data []byte

	CallRequests map[uint32]execution.CallRequest
	NextPeerPKs  []string
}

// Interpreter runs turns on behalf of one peer. It keeps no state between
// calls and is safe for concurrent use.
type Interpreter struct {
	keyPair         *signature.KeyPair
	logger          *slog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
	streamSizeLimit int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = l
	}
}

// WithMetrics records every turn on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(in *Interpreter) {
		in.metrics = m
	}
}

// WithClock replaces the host clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(in *Interpreter) {
		in.now = now
	}
}

// WithStreamSizeLimit bounds the number of values a stream may hold.
//
// Default: 1024 (stream.DefaultSizeLimit)
func WithStreamSizeLimit(n int) Option {
	return func(in *Interpreter) {
		in.streamSizeLimit = n
	}
}

// New creates an interpreter signing with kp.
func New(kp *signature.KeyPair, opts ...Option) *Interpreter {
	in := &Interpreter{
		keyPair:         kp,
		logger:          slog.Default(),
		now:             time.Now,
		streamSizeLimit: stream.DefaultSizeLimit,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// PeerID returns the peer id of the interpreter's key pair.
func (in *Interpreter) PeerID() string {
	return in.keyPair.PeerID()
}

// Call runs one turn. It never returns an error: every failure is encoded
// in the outcome's RetCode and ErrorMessage.
func (in *Interpreter) Call(
	ctx context.Context,
	script string,
	prevData, curData []byte,
	params RunParameters,
	callResults map[uint32]execution.CallResult,
) Outcome {
	if params.CurrentPeerID == "" {
		params.CurrentPeerID = in.keyPair.PeerID()
	}
	start := in.now()
	logger := in.logger.With("particle_id", params.ParticleID, "peer_id", params.CurrentPeerID)
	logger.InfoContext(ctx, "interpreter turn started",
		"prev_data", len(prevData),
		"current_data", len(curData),
		"call_results", len(callResults))

	out, traceLen, err := in.run(ctx, script, prevData, curData, params, callResults, logger)
	class := metrics.ResultSuccess
	if err != nil {
		out = aborted(prevData, err)
		class = errorClass(err)
		logger.WarnContext(ctx, "interpreter turn aborted", "ret_code", out.RetCode, "error", err)
	} else if out.RetCode != 0 {
		class = metrics.ResultCatchable
	}

	logger.InfoContext(ctx, "interpreter turn finished",
		"ret_code", out.RetCode,
		"trace_len", traceLen,
		"call_requests", len(out.CallRequests),
		"next_peers", out.NextPeerPKs)
	in.metrics.ObserveTurn(metrics.Turn{
		Result:       class,
		TraceLength:  traceLen,
		CallRequests: len(out.CallRequests),
		NextPeers:    len(out.NextPeerPKs),
		Duration:     in.now().Sub(start),
	})
	return out
}

func (in *Interpreter) run(
	ctx context.Context,
	script string,
	prevData, curData []byte,
	params RunParameters,
	callResults map[uint32]execution.CallResult,
	logger *slog.Logger,
) (Outcome, int, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, 0, &PreparationError{Kind: Interrupted, Err: err}
	}
	if params.KeyFormat != in.keyPair.Format() {
		return Outcome{}, 0, &PreparationError{
			Kind: KeyFormatMismatch,
			Err:  fmt.Errorf("key format %s does not match key pair format %s", params.KeyFormat, in.keyPair.Format()),
		}
	}

	root, err := air.Parse(script)
	if err != nil {
		return Outcome{}, 0, &PreparationError{Kind: AIRParseError, Err: err}
	}

	prepared, err := Prepare(prevData, curData, params.ParticleID)
	if err != nil {
		return Outcome{}, 0, err
	}

	// prevData is this peer's own stored data; call ids continue from it.
	exec := execution.New(prepared.Handler, prepared.Tracker, execution.Config{
		InitPeerID:        params.InitPeerID,
		CurrentPeerID:     params.CurrentPeerID,
		Timestamp:         params.Timestamp,
		TTL:               params.TTL,
		StreamSizeLimit:   in.streamSizeLimit,
		LastCallRequestID: prepared.Prev.LastCallRequestID,
		CallResults:       callResults,
		Logger:            logger,
		Now:               in.now,
	})
	res, err := exec.Run(root)
	if err != nil {
		return Outcome{}, 0, err
	}
	if err := exec.CompactStreams(); err != nil {
		return Outcome{}, 0, err
	}

	data, result, err := Finalize(prepared, in.keyPair, params.CurrentPeerID, params.ParticleID, res.LastCallRequestID)
	if err != nil {
		return Outcome{}, 0, err
	}

	out := Outcome{
		Data:         data,
		CallRequests: res.CallRequests,
		NextPeerPKs:  res.NextPeers,
	}
	if res.Err != nil {
		out.RetCode = res.Err.ReturnCode()
		out.ErrorMessage = res.Err.Error()
		if !slices.Contains(out.NextPeerPKs, params.InitPeerID) {
			out.NextPeerPKs = append(out.NextPeerPKs, params.InitPeerID)
		}
	}
	if out.NextPeerPKs == nil {
		out.NextPeerPKs = []string{}
	}
	return out, len(result), nil
}

func aborted(prevData []byte, err error) Outcome {
	return Outcome{
		RetCode:      ReturnCode(err),
		ErrorMessage: err.Error(),
		Data:         prevData,
		CallRequests: map[uint32]execution.CallRequest{},
		NextPeerPKs:  []string{},
	}
}

func errorClass(err error) string {
	switch {
	case IsPreparationError(err):
		return metrics.ResultPreparation
	case IsFinalizationError(err):
		return metrics.ResultFinalize
	default:
		return metrics.ResultUncatchable
	}
}
