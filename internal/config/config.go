// Package config loads peer configuration written in CUE.
//
// A config file is unified with an embedded closed schema, so unknown
// fields and out-of-range values are rejected before anything is decoded:
//
//	peer:       "alice"
//	key_format: "ed25519"
//	secret_key: "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
//	ttl_ms:     60000
//	database:   "alice.db"
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/btcsuite/btcutil/base58"

	"github.com/fluencelabs/aquavm-sub001/internal/signature"
)

//go:embed schema.cue
var schemaSrc string

// PeerConfig is the decoded configuration of one peer.
type PeerConfig struct {
	Peer            string `json:"peer,omitempty"`
	KeyFormat       string `json:"key_format"`
	SecretKey       string `json:"secret_key"`
	TTLMs           uint32 `json:"ttl_ms"`
	Database        string `json:"database"`
	StreamSizeLimit int    `json:"stream_size_limit"`
	LogLevel        string `json:"log_level"`
}

// Error reports a config file that failed to load.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads, validates and decodes the config file at path.
func Load(path string) (PeerConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return PeerConfig{}, &Error{Path: path, Err: err}
	}
	cfg, err := Parse(content, path)
	if err != nil {
		return PeerConfig{}, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse validates and decodes config source. filename is used in CUE
// error positions only.
func Parse(src []byte, filename string) (PeerConfig, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Peer"))
	if err := schema.Err(); err != nil {
		return PeerConfig{}, fmt.Errorf("compile schema: %w", err)
	}

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return PeerConfig{}, err
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return PeerConfig{}, err
	}

	var cfg PeerConfig
	if err := unified.Decode(&cfg); err != nil {
		return PeerConfig{}, fmt.Errorf("decode: %w", err)
	}
	return cfg, nil
}

// KeyPair decodes the configured secret.
func (c PeerConfig) KeyPair() (*signature.KeyPair, error) {
	format, err := signature.ParseKeyFormat(c.KeyFormat)
	if err != nil {
		return nil, err
	}
	secret := base58.Decode(c.SecretKey)
	if len(secret) == 0 {
		return nil, &signature.KeyError{Reason: "secret_key is not base58"}
	}
	return signature.KeyPairFromSecret(format, secret)
}

// Level returns the configured log level.
func (c PeerConfig) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// EncodeSecret renders a key pair's secret the way secret_key expects it.
func EncodeSecret(kp *signature.KeyPair) string {
	return base58.Encode(kp.Secret())
}
