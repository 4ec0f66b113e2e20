package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// marshalArguments converts call arguments to canonical JSON TEXT.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalArguments(args []ir.Value) (string, error) {
	if args == nil {
		args = []ir.Value{}
	}
	data, err := ir.MarshalCanonical(ir.Array(args))
	if err != nil {
		return "", fmt.Errorf("marshal arguments: %w", err)
	}
	return string(data), nil
}

// unmarshalArguments parses canonical JSON TEXT back into values.
// Large integers survive because ir.UnmarshalValue decodes via json.Number.
func unmarshalArguments(data string) ([]ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal arguments: %w", err)
	}
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, fmt.Errorf("unmarshal arguments: expected array, got %s", ir.TypeName(v))
	}
	return []ir.Value(arr), nil
}

// marshalTetraplets converts per-argument tetraplets to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled; struct field order is
// fixed, so the output is deterministic.
func marshalTetraplets(tps [][]ir.Tetraplet) (string, error) {
	if tps == nil {
		tps = [][]ir.Tetraplet{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tps); err != nil {
		return "", fmt.Errorf("marshal tetraplets: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalTetraplets(data string) ([][]ir.Tetraplet, error) {
	var tps [][]ir.Tetraplet
	if err := json.Unmarshal([]byte(data), &tps); err != nil {
		return nil, fmt.Errorf("unmarshal tetraplets: %w", err)
	}
	return tps, nil
}

func marshalPeers(peers []string) (string, error) {
	if peers == nil {
		peers = []string{}
	}
	data, err := json.Marshal(peers)
	if err != nil {
		return "", fmt.Errorf("marshal next peers: %w", err)
	}
	return string(data), nil
}

func unmarshalPeers(data string) ([]string, error) {
	var peers []string
	if err := json.Unmarshal([]byte(data), &peers); err != nil {
		return nil, fmt.Errorf("unmarshal next peers: %w", err)
	}
	return peers, nil
}
