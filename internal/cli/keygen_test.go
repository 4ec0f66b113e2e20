package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/config"
)

func TestKeygenText(t *testing.T) {
	out, err := execute(t, &RootOptions{Format: "text"}, NewKeygenCommand, "--peer", "alice")
	require.NoError(t, err)

	assert.Contains(t, out, "Peer id:")
	assert.Contains(t, out, "Key format: ed25519")
	assert.Contains(t, out, `peer:       "alice"`)
	assert.Contains(t, out, "secret_key:")
}

func TestKeygenJSON(t *testing.T) {
	for _, format := range []string{"ed25519", "secp256k1"} {
		t.Run(format, func(t *testing.T) {
			out, err := execute(t, &RootOptions{Format: "json"}, NewKeygenCommand, "--key-format", format)
			require.NoError(t, err)

			resp := decodeResponse(t, out)
			assert.Equal(t, "ok", resp.Status)

			var report KeyReport
			require.NoError(t, json.Unmarshal(resp.Data, &report))
			assert.Equal(t, format, report.KeyFormat)

			cfg, err := config.Parse([]byte(report.Config), "generated.cue")
			require.NoError(t, err)
			kp, err := cfg.KeyPair()
			require.NoError(t, err)
			assert.Equal(t, report.PeerID, kp.PeerID())
		})
	}
}

func TestKeygenFreshKeys(t *testing.T) {
	first, err := execute(t, &RootOptions{Format: "json"}, NewKeygenCommand)
	require.NoError(t, err)
	second, err := execute(t, &RootOptions{Format: "json"}, NewKeygenCommand)
	require.NoError(t, err)

	var a, b KeyReport
	require.NoError(t, json.Unmarshal(decodeResponse(t, first).Data, &a))
	require.NoError(t, json.Unmarshal(decodeResponse(t, second).Data, &b))
	assert.NotEqual(t, a.PeerID, b.PeerID)
}

func TestKeygenWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bob.cue")

	out, err := execute(t, &RootOptions{Format: "json"}, NewKeygenCommand, "--peer", "bob", "--key-format", "secp256k1", "-o", path)
	require.NoError(t, err)

	var report KeyReport
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &report))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Peer)
	assert.Equal(t, "secp256k1", cfg.KeyFormat)
	kp, err := cfg.KeyPair()
	require.NoError(t, err)
	assert.Equal(t, report.PeerID, kp.PeerID())
}

func TestKeygenInvalidFormat(t *testing.T) {
	_, err := execute(t, &RootOptions{Format: "text"}, NewKeygenCommand, "--key-format", "rsa")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid key format")
}
