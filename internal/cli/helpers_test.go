package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/config"
	"github.com/fluencelabs/aquavm-sub001/internal/testutil"
)

// writePeerConfig writes a config for the test peer called name and returns
// its path and peer id.
func writePeerConfig(t *testing.T, dir, name string) (string, string) {
	t.Helper()

	kp := testutil.KeyPair(name)
	src := fmt.Sprintf("peer: %q\nsecret_key: %q\nlog_level: \"error\"\n", name, config.EncodeSecret(kp))
	path := filepath.Join(dir, name+".cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path, kp.PeerID()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs a command built by newCmd and returns its stdout.
func execute(t *testing.T, opts *RootOptions, newCmd func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newCmd(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// jsonResponse is CLIResponse with the payload left undecoded.
type jsonResponse struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data"`
	Error      *CLIError       `json:"error"`
	ParticleID string          `json:"particle_id"`
}

func decodeResponse(t *testing.T, out string) jsonResponse {
	t.Helper()

	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}
