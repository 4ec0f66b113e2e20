package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluencelabs/aquavm-sub001/internal/interpreter"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/store"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	ParticleID string
	Peer       string // optional - show call requests of this peer
}

// DataReport describes one data blob.
type DataReport struct {
	Version            string         `json:"version"`
	InterpreterVersion string         `json:"interpreter_version"`
	States             []string       `json:"states"`
	Stores             map[string]int `json:"stores"`
	Signers            []string       `json:"signers"`
	LastCallRequestID  uint32         `json:"last_call_request_id"`

	// Verified is set when the blob was checked against a particle id.
	Verified    bool   `json:"verified,omitempty"`
	VerifyError string `json:"verify_error,omitempty"`
}

// TurnLog is the stored history of a particle.
type TurnLog struct {
	ParticleID   string             `json:"particle_id"`
	Turns        []TurnEntry        `json:"turns"`
	CallRequests []CallRequestEntry `json:"call_requests,omitempty"`
	Stats        TurnStats          `json:"stats"`
}

// TurnEntry is one logged turn.
type TurnEntry struct {
	Seq          int64    `json:"seq"`
	PeerID       string   `json:"peer_id"`
	RetCode      int64    `json:"ret_code"`
	ErrorMessage string   `json:"error_message,omitempty"`
	TraceLen     int      `json:"trace_len"`
	NextPeers    []string `json:"next_peers"`
}

// CallRequestEntry is one logged call request.
type CallRequestEntry struct {
	Seq          int64    `json:"seq"`
	CallID       uint32   `json:"call_id"`
	ServiceID    string   `json:"service_id"`
	FunctionName string   `json:"function_name"`
	Arguments    ir.Array `json:"arguments"`
}

// TurnStats holds summary statistics for a particle.
type TurnStats struct {
	Turns   int `json:"turns"`
	Peers   int `json:"peers"`
	Aborted int `json:"aborted"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [data-file]",
		Short: "Inspect particle data or a particle's turn log",
		Long: `Inspect interpreter data.

With a data file, prints its versions, its executed states and the size of
its CID stores. Adding --particle-id verifies the CID stores and signatures
the way the interpreter does before a turn.

Without a data file, prints every turn the database logged for a particle.
Adding --peer lists the call requests that peer emitted.

Examples:
  air trace outgoing.json
  air trace outgoing.json --particle-id p1
  air trace --db ./alice.db --particle-id p1
  air trace --db ./alice.db --particle-id p1 --peer 12D3Koo... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runTraceData(opts, args[0], cmd)
			}
			return runTraceLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.ParticleID, "particle-id", "", "particle to trace or to verify the data against")
	cmd.Flags().StringVar(&opts.Peer, "peer", "", "peer id whose call requests to list")

	return cmd
}

func runTraceData(opts *TraceOptions, path string, cmd *cobra.Command) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read data", err)
	}
	data, err := trace.DecodeData(raw)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to decode data", err)
	}

	report := newDataReport(data)
	if opts.ParticleID != "" {
		if _, err := interpreter.Prepare(raw, nil, opts.ParticleID); err != nil {
			report.VerifyError = err.Error()
		} else {
			report.Verified = true
		}
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	formatter.ParticleID = opts.ParticleID
	if report.VerifyError != "" {
		if err := formatter.Error("verification_failed", report.VerifyError, report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "data failed verification")
	}
	return formatter.Success(report)
}

func newDataReport(data *trace.Data) *DataReport {
	report := &DataReport{
		Version:            data.Version,
		InterpreterVersion: data.InterpreterVersion,
		States:             make([]string, len(data.Trace)),
		Stores: map[string]int{
			"value":          data.CIDInfo.Values.Len(),
			"tetraplet":      data.CIDInfo.Tetraplets.Len(),
			"canon_element":  data.CIDInfo.CanonElements.Len(),
			"canon_result":   data.CIDInfo.CanonResults.Len(),
			"service_result": data.CIDInfo.ServiceResults.Len(),
		},
		Signers:           make([]string, 0, len(data.Signatures)),
		LastCallRequestID: data.LastCallRequestID,
	}
	for i, s := range data.Trace {
		report.States[i] = fmt.Sprint(s)
	}
	for peer := range data.Signatures {
		report.Signers = append(report.Signers, peer)
	}
	slices.Sort(report.Signers)
	return report
}

func (r *DataReport) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Version: %s (interpreter %s)\n", r.Version, r.InterpreterVersion)
	if r.Verified {
		fmt.Fprintln(w, "Verified: yes")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Trace ===")
	if len(r.States) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for i, s := range r.States {
		fmt.Fprintf(w, "  [%d] %s\n", i, s)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stores ===")
	for _, name := range []string{"value", "tetraplet", "canon_element", "canon_result", "service_result"} {
		fmt.Fprintf(w, "  %-15s %d\n", name+":", r.Stores[name])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Signers ===")
	if len(r.Signers) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range r.Signers {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if verbose {
		fmt.Fprintf(w, "\nLast call request id: %d\n", r.LastCallRequestID)
	}
}

func runTraceLog(opts *TraceOptions, cmd *cobra.Command) error {
	if opts.Database == "" || opts.ParticleID == "" {
		return NewExitError(ExitCommandError, "either a data file or both --db and --particle-id are required")
	}
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	turns, err := st.Turns(ctx, opts.ParticleID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read turns", err)
	}
	log := newTurnLog(opts.ParticleID, turns)

	if opts.Peer != "" {
		reqs, err := st.CallRequests(ctx, opts.Peer, opts.ParticleID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read call requests", err)
		}
		for _, r := range reqs {
			args := ir.Array(r.Request.Arguments)
			if args == nil {
				args = ir.Array{}
			}
			log.CallRequests = append(log.CallRequests, CallRequestEntry{
				Seq:          r.Seq,
				CallID:       r.CallID,
				ServiceID:    r.Request.ServiceID,
				FunctionName: r.Request.FunctionName,
				Arguments:    args,
			})
		}
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	formatter.ParticleID = opts.ParticleID
	if len(log.Turns) == 0 && opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "No turns found for particle: %s\n", opts.ParticleID)
		return nil
	}
	return formatter.Success(log)
}

func newTurnLog(particleID string, turns []store.TurnRecord) *TurnLog {
	log := &TurnLog{
		ParticleID: particleID,
		Turns:      make([]TurnEntry, len(turns)),
	}
	peers := make(map[string]bool)
	for i, t := range turns {
		next := t.NextPeers
		if next == nil {
			next = []string{}
		}
		log.Turns[i] = TurnEntry{
			Seq:          t.Seq,
			PeerID:       t.PeerID,
			RetCode:      t.RetCode,
			ErrorMessage: t.ErrorMessage,
			TraceLen:     t.TraceLen,
			NextPeers:    next,
		}
		peers[t.PeerID] = true
		if t.RetCode >= interpreter.PreparationBase {
			log.Stats.Aborted++
		}
	}
	log.Stats.Turns = len(turns)
	log.Stats.Peers = len(peers)
	return log
}

func (l *TurnLog) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Turns for particle: %s\n", l.ParticleID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Turns ===")
	for _, t := range l.Turns {
		fmt.Fprintf(w, "  [%d] %s ret_code=%d trace_len=%d\n", t.Seq, truncateID(t.PeerID), t.RetCode, t.TraceLen)
		if t.ErrorMessage != "" {
			fmt.Fprintf(w, "       Error: %s\n", t.ErrorMessage)
		}
		if len(t.NextPeers) > 0 {
			next := t.NextPeers
			if !verbose {
				next = make([]string, len(t.NextPeers))
				for i, p := range t.NextPeers {
					next[i] = truncateID(p)
				}
			}
			fmt.Fprintf(w, "       Next: %s\n", strings.Join(next, ", "))
		}
	}
	fmt.Fprintln(w)

	if len(l.CallRequests) > 0 {
		fmt.Fprintln(w, "=== Call requests ===")
		for _, r := range l.CallRequests {
			fmt.Fprintf(w, "  [%d] #%d %s.%s %s\n", r.Seq, r.CallID, r.ServiceID, r.FunctionName, ir.MustMarshalCanonical(r.Arguments))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Turns:   %d\n", l.Stats.Turns)
	fmt.Fprintf(w, "  Peers:   %d\n", l.Stats.Peers)
	fmt.Fprintf(w, "  Aborted: %d\n", l.Stats.Aborted)
}

// truncateID truncates a long peer id for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
