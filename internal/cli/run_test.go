package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/store"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

const localCall = `(call %init_peer_id% ("s" "f") [] x)`

func runReport(t *testing.T, out string) (jsonResponse, RunReport) {
	t.Helper()
	resp := decodeResponse(t, out)
	raw := resp.Data
	if resp.Error != nil {
		details, err := json.Marshal(resp.Error.Details)
		require.NoError(t, err)
		raw = details
	}
	var report RunReport
	require.NoError(t, json.Unmarshal(raw, &report))
	return resp, report
}

func TestRunMissingConfigFlag(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "s.air", localCall)

	_, err := execute(t, &RootOptions{Format: "text"}, NewRunCommand, "--script", script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "config")
}

func TestRunInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "bad.cue", `secret_key: "0OIl"`)
	script := writeFile(t, dir, "s.air", localCall)

	_, err := execute(t, &RootOptions{Format: "text"}, NewRunCommand, "--config", cfg, "--script", script)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunMissingScript(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := writePeerConfig(t, dir, "alice")

	_, err := execute(t, &RootOptions{Format: "text"}, NewRunCommand, "--config", cfg, "--script", filepath.Join(dir, "missing.air"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read script")
}

func TestRunInvalidCallResults(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", localCall)
	results := writeFile(t, dir, "results.json", `{"one": {}}`)

	_, err := execute(t, &RootOptions{Format: "text"}, NewRunCommand,
		"--config", cfg, "--script", script, "--results", results)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read call results")
}

func TestRunLocalCallAcrossTurns(t *testing.T) {
	dir := t.TempDir()
	cfg, peerID := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", localCall)
	db := filepath.Join(dir, "alice.db")
	opts := &RootOptions{Format: "json"}

	out, err := execute(t, opts, NewRunCommand,
		"--config", cfg, "--script", script, "--db", db, "--particle-id", "p1")
	require.NoError(t, err)
	resp, first := runReport(t, out)
	assert.Equal(t, "p1", resp.ParticleID)
	assert.Equal(t, peerID, first.PeerID)
	assert.Equal(t, int64(0), first.RetCode)
	assert.Equal(t, 1, first.TraceLen)
	require.Contains(t, first.CallRequests, "1")
	var req execution.CallRequest
	require.NoError(t, json.Unmarshal(first.CallRequests["1"], &req))
	assert.Equal(t, "s", req.ServiceID)
	assert.Equal(t, "f", req.FunctionName)
	assert.Empty(t, req.Arguments)

	results := writeFile(t, dir, "results.json", `{"1": {"ret_code": 0, "result": "hi"}}`)
	out, err = execute(t, opts, NewRunCommand,
		"--config", cfg, "--script", script, "--db", db, "--particle-id", "p1", "--results", results)
	require.NoError(t, err)
	_, second := runReport(t, out)
	assert.Equal(t, int64(0), second.RetCode)
	assert.Empty(t, second.CallRequests)
	assert.Equal(t, 1, second.TraceLen)
	assert.Greater(t, second.Seq, first.Seq)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	turns, err := st.Turns(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, peerID, turns[1].PeerID)

	reqs, err := st.CallRequests(ctx, peerID, "p1")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "s", reqs[0].Request.ServiceID)

	raw, err := st.LoadData(ctx, peerID, "p1")
	require.NoError(t, err)
	data, err := trace.DecodeData(raw)
	require.NoError(t, err)
	require.Len(t, data.Trace, 1)
	assert.Contains(t, data.Signatures, peerID)
}

func TestRunWithFiles(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", localCall)
	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")
	results := writeFile(t, dir, "results.json", `{"1": {"ret_code": 0, "result": [1, 2]}}`)
	opts := &RootOptions{Format: "json"}

	_, err := execute(t, opts, NewRunCommand,
		"--config", cfg, "--script", script, "--particle-id", "p1", "--out", first)
	require.NoError(t, err)

	out, err := execute(t, opts, NewRunCommand,
		"--config", cfg, "--script", script, "--particle-id", "p1",
		"--prev", first, "--results", results, "--out", second)
	require.NoError(t, err)
	_, report := runReport(t, out)
	assert.Equal(t, int64(0), report.RetCode)

	raw, err := os.ReadFile(second)
	require.NoError(t, err)
	data, err := trace.DecodeData(raw)
	require.NoError(t, err)
	require.Len(t, data.Trace, 1)
	call, ok := data.Trace[0].(trace.Call)
	require.True(t, ok)
	_, ok = call.Result.(trace.Executed)
	assert.True(t, ok, "the call result turned the request into an executed call")
}

func TestRunCatchableError(t *testing.T) {
	dir := t.TempDir()
	cfg, peerID := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "fail.air", `(fail 42 "bad things")`)

	out, err := execute(t, &RootOptions{Format: "json"}, NewRunCommand,
		"--config", cfg, "--script", script, "--particle-id", "p1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "turn returned 10012")

	resp, report := runReport(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "10012", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "bad things")
	assert.Equal(t, []string{peerID}, report.NextPeers, "a top-level error goes back to the init peer")
}

func TestRunTTLExceeded(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", localCall)

	out, err := execute(t, &RootOptions{Format: "text"}, NewRunCommand,
		"--config", cfg, "--script", script, "--particle-id", "p1", "--timestamp", "1", "--ttl", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [20105]")
	assert.Contains(t, out, "Trace len: 0")
}

func TestRunTextOutput(t *testing.T) {
	dir := t.TempDir()
	cfg, peerID := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", `(seq (call %init_peer_id% ("s" "f") ["a" 1] x) (call "elsewhere" ("t" "g") [x]))`)

	out, err := execute(t, &RootOptions{Format: "text"}, NewRunCommand,
		"--config", cfg, "--script", script, "--particle-id", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Peer:      "+peerID)
	assert.Contains(t, out, "Ret code:  0")
	assert.Contains(t, out, `[1] s.f ["a",1]`)
	assert.Contains(t, out, "Next peers:\n  (none)")
}

func TestRunDefaultParticleIDIsUUIDv7(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", localCall)

	out, err := execute(t, &RootOptions{Format: "json"}, NewRunCommand, "--config", cfg, "--script", script)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	id, err := uuid.Parse(resp.ParticleID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestRunWritesMetrics(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", localCall)
	metricsFile := filepath.Join(dir, "turn.prom")

	_, err := execute(t, &RootOptions{Format: "json"}, NewRunCommand,
		"--config", cfg, "--script", script, "--particle-id", "p1", "--metrics-file", metricsFile)
	require.NoError(t, err)

	raw, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `air_interpreter_turns_total{result="success"} 1`)
	assert.Contains(t, string(raw), "air_interpreter_call_requests_total 1")
}

func TestRunLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := writePeerConfig(t, dir, "alice")
	script := writeFile(t, dir, "s.air", localCall)
	logFile := filepath.Join(dir, "air.log")

	_, err := execute(t, &RootOptions{Format: "json", Verbose: true, LogFile: logFile}, NewRunCommand,
		"--config", cfg, "--script", script, "--particle-id", "p1")
	require.NoError(t, err)

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"interpreter turn finished"`)
	assert.Contains(t, string(raw), `"particle_id":"p1"`)
	assert.Contains(t, string(raw), `"peer":"alice"`)
}

func TestRunHelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "call id")
	assert.Contains(t, cmd.Long, "Exit codes")
}
