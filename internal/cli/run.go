package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fluencelabs/aquavm-sub001/internal/config"
	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/interpreter"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/metrics"
	"github.com/fluencelabs/aquavm-sub001/internal/store"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config      string
	Script      string
	Prev        string
	Current     string
	Results     string
	InitPeer    string
	ParticleID  string
	Timestamp   uint64
	TTL         uint32
	Database    string
	Out         string
	MetricsFile string

	// ParticleIDs allows overriding the particle id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	ParticleIDs ParticleIDGenerator

	// Now allows overriding the host clock (for testing).
	Now func() time.Time
}

// RunReport is the outcome of one turn as the CLI prints it.
type RunReport struct {
	PeerID       string                     `json:"peer_id"`
	RetCode      int64                      `json:"ret_code"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	TraceLen     int                        `json:"trace_len"`
	NextPeers    []string                   `json:"next_peer_pks"`
	CallRequests map[string]json.RawMessage `json:"call_requests"`
	Seq          int64                      `json:"seq,omitempty"`

	requests map[uint32]execution.CallRequest
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one interpreter turn",
		Long: `Run one interpreter turn of a particle on the configured peer.

The peer's key and defaults come from a CUE config file. Previous data is
read from --prev, or from the database when one is configured. Call results
are a JSON object keyed by call id:

  {"1": {"ret_code": 0, "result": "hello"}}

With a database the outgoing data, the turn and its call requests are
stored, so the next turn of the same particle only needs --particle-id.

Exit codes:
  0 - The turn succeeded
  1 - The turn returned a non-zero ret_code
  2 - Command error (unreadable files, bad config, database errors)

Examples:
  air run --config alice.cue --script hello.air
  air run --config alice.cue --script hello.air --particle-id p1 --results results.json
  air run --config alice.cue --script hello.air --current incoming.json --out outgoing.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to the peer CUE config (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Script, "script", "", "path to the AIR script (required)")
	_ = cmd.MarkFlagRequired("script")
	cmd.Flags().StringVar(&opts.Prev, "prev", "", "file with the data this peer holds")
	cmd.Flags().StringVar(&opts.Current, "current", "", "file with the data that arrived")
	cmd.Flags().StringVar(&opts.Results, "results", "", "JSON file with call results by call id")
	cmd.Flags().StringVar(&opts.InitPeer, "init-peer", "", "peer id that started the particle (default: this peer)")
	cmd.Flags().StringVar(&opts.ParticleID, "particle-id", "", "particle id (default: a new UUIDv7)")
	cmd.Flags().Uint64Var(&opts.Timestamp, "timestamp", 0, "particle creation time in ms (default: now)")
	cmd.Flags().Uint32Var(&opts.TTL, "ttl", 0, "particle TTL in ms (default: ttl_ms from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: database from config)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write the outgoing data to this file")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write turn metrics in Prometheus text format")

	return cmd
}

func runTurn(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	kp, err := cfg.KeyPair()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid secret_key", err)
	}

	logger, closeLog, err := newLogger(opts.RootOptions, cmd.ErrOrStderr(), cfg.Level())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	defer closeLog()

	script, err := os.ReadFile(opts.Script)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}
	cur, err := readOptional(opts.Current)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read current data", err)
	}
	results, err := readCallResults(opts.Results)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read call results", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	params := interpreter.RunParameters{
		InitPeerID:    opts.InitPeer,
		CurrentPeerID: kp.PeerID(),
		Timestamp:     opts.Timestamp,
		TTL:           cfg.TTLMs,
		KeyFormat:     kp.Format(),
		ParticleID:    opts.ParticleID,
	}
	if params.InitPeerID == "" {
		params.InitPeerID = kp.PeerID()
	}
	if params.Timestamp == 0 {
		params.Timestamp = uint64(now().UnixMilli())
	}
	if cmd.Flags().Changed("ttl") {
		params.TTL = opts.TTL
	}
	if params.ParticleID == "" {
		gen := opts.ParticleIDs
		if gen == nil {
			gen = UUIDv7Generator{}
		}
		params.ParticleID = gen.Generate()
	}
	logger = logger.With("peer", cfg.Peer)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Database
	}
	var st *store.Store
	if dbPath != "" {
		logger.Debug("opening database", "path", dbPath)
		st, err = store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	prev, err := loadPrev(ctx, opts.Prev, st, params)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load previous data", err)
	}

	reg := prometheus.NewRegistry()
	in := interpreter.New(kp,
		interpreter.WithLogger(logger),
		interpreter.WithMetrics(metrics.New(reg)),
		interpreter.WithStreamSizeLimit(cfg.StreamSizeLimit),
		interpreter.WithClock(now),
	)
	out := in.Call(ctx, string(script), prev, cur, params, results)

	report, err := newRunReport(kp.PeerID(), out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render call requests", err)
	}
	if st != nil {
		if report.Seq, err = saveTurn(ctx, st, params, out, report.TraceLen); err != nil {
			return WrapExitError(ExitCommandError, "failed to store turn", err)
		}
	}
	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, out.Data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write outgoing data", err)
		}
	}
	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	formatter.ParticleID = params.ParticleID
	if out.RetCode != 0 {
		if err := formatter.Error(fmt.Sprint(out.RetCode), out.ErrorMessage, report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("turn returned %d", out.RetCode))
	}
	return formatter.Success(report)
}

func commandContext(cmd *cobra.Command) context.Context {
	// Use command's context if available (for testing), otherwise create one
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

// readCallResults decodes a JSON object of call results keyed by call id.
func readCallResults(path string) (map[uint32]execution.CallResult, error) {
	raw, err := readOptional(path)
	if err != nil || raw == nil {
		return nil, err
	}
	var results map[uint32]execution.CallResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return results, nil
}

// loadPrev reads the data this peer holds: the --prev file when given,
// otherwise the data stored for the particle.
func loadPrev(ctx context.Context, path string, st *store.Store, params interpreter.RunParameters) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	if st == nil {
		return nil, nil
	}
	return st.LoadData(ctx, params.CurrentPeerID, params.ParticleID)
}

// saveTurn logs the turn and stores the outgoing data in one seq.
func saveTurn(ctx context.Context, st *store.Store, params interpreter.RunParameters, out interpreter.Outcome, traceLen int) (int64, error) {
	seq, err := st.LogTurn(ctx, store.TurnRecord{
		PeerID:       params.CurrentPeerID,
		ParticleID:   params.ParticleID,
		RetCode:      out.RetCode,
		ErrorMessage: out.ErrorMessage,
		TraceLen:     traceLen,
		NextPeers:    out.NextPeerPKs,
	})
	if err != nil {
		return 0, err
	}
	if err := st.SaveData(ctx, params.CurrentPeerID, params.ParticleID, out.Data, seq); err != nil {
		return 0, err
	}
	if err := st.LogCallRequests(ctx, params.CurrentPeerID, params.ParticleID, seq, out.CallRequests); err != nil {
		return 0, err
	}
	return seq, nil
}

func newRunReport(peerID string, out interpreter.Outcome) (*RunReport, error) {
	report := &RunReport{
		PeerID:       peerID,
		RetCode:      out.RetCode,
		ErrorMessage: out.ErrorMessage,
		NextPeers:    out.NextPeerPKs,
		CallRequests: make(map[string]json.RawMessage, len(out.CallRequests)),
		requests:     out.CallRequests,
	}
	if report.NextPeers == nil {
		report.NextPeers = []string{}
	}
	for id, req := range out.CallRequests {
		raw, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("call request %d: %w", id, err)
		}
		report.CallRequests[fmt.Sprint(id)] = raw
	}

	// Aborted turns carry the previous data, which may not decode.
	if data, err := trace.DecodeData(out.Data); err == nil {
		report.TraceLen = len(data.Trace)
	} else if out.RetCode < interpreter.PreparationBase {
		return nil, err
	}
	return report, nil
}

func (r *RunReport) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Peer:      %s\n", r.PeerID)
	fmt.Fprintf(w, "Ret code:  %d\n", r.RetCode)
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.ErrorMessage)
	}
	fmt.Fprintf(w, "Trace len: %d\n", r.TraceLen)
	if r.Seq != 0 {
		fmt.Fprintf(w, "Seq:       %d\n", r.Seq)
	}

	fmt.Fprintln(w, "Next peers:")
	if len(r.NextPeers) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range r.NextPeers {
		fmt.Fprintf(w, "  %s\n", p)
	}

	fmt.Fprintln(w, "Call requests:")
	if len(r.requests) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, id := range slices.Sorted(maps.Keys(r.requests)) {
		req := r.requests[id]
		args := ir.Array(req.Arguments)
		if args == nil {
			args = ir.Array{}
		}
		fmt.Fprintf(w, "  [%d] %s.%s %s\n", id, req.ServiceID, req.FunctionName, ir.MustMarshalCanonical(args))
		if verbose {
			for i, tps := range req.Tetraplets {
				for _, tp := range tps {
					fmt.Fprintf(w, "       arg %d from %s\n", i, tp.PeerPK)
				}
			}
		}
	}
}
