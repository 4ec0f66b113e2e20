package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/fluencelabs/aquavm-sub001/internal/execution"
)

// TurnRecord is one logged interpreter turn.
type TurnRecord struct {
	Seq          int64
	PeerID       string
	ParticleID   string
	RetCode      int64
	ErrorMessage string
	TraceLen     int
	NextPeers    []string
}

// CallRequestRecord is one logged call request.
type CallRequestRecord struct {
	PeerID     string
	ParticleID string
	CallID     uint32
	Request    execution.CallRequest
	Seq        int64
}

// SaveData stores the latest data of a particle on a peer, replacing any
// previous value. seq orders the update among the turn log.
func (s *Store) SaveData(ctx context.Context, peerID, particleID string, data []byte, seq int64) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO particles (peer_id, particle_id, data, updated_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(peer_id, particle_id) DO UPDATE SET
			data = excluded.data,
			updated_seq = excluded.updated_seq
	`, peerID, particleID, data, seq)
	if err != nil {
		return fmt.Errorf("save data: %w", err)
	}
	return nil
}

// LogTurn appends a turn and returns its seq.
func (s *Store) LogTurn(ctx context.Context, turn TurnRecord) (int64, error) {
	peers, err := marshalPeers(turn.NextPeers)
	if err != nil {
		return 0, fmt.Errorf("log turn: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (peer_id, particle_id, ret_code, error_message, trace_len, next_peers)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		turn.PeerID,
		turn.ParticleID,
		turn.RetCode,
		turn.ErrorMessage,
		turn.TraceLen,
		peers,
	)
	if err != nil {
		return 0, fmt.Errorf("log turn: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log turn: last insert id: %w", err)
	}
	return seq, nil
}

// LogCallRequests records the call requests of one turn atomically.
// Uses ON CONFLICT DO NOTHING for idempotency - a request logged twice
// keeps its first row.
func (s *Store) LogCallRequests(ctx context.Context, peerID, particleID string, seq int64, reqs map[uint32]execution.CallRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("log call requests: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, id := range slices.Sorted(maps.Keys(reqs)) {
		req := reqs[id]
		args, err := marshalArguments(req.Arguments)
		if err != nil {
			return fmt.Errorf("log call requests: call %d: %w", id, err)
		}
		tps, err := marshalTetraplets(req.Tetraplets)
		if err != nil {
			return fmt.Errorf("log call requests: call %d: %w", id, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO call_requests
			(peer_id, particle_id, call_id, service_id, function_name, arguments, tetraplets, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, peerID, particleID, id, req.ServiceID, req.FunctionName, args, tps, seq)
		if err != nil {
			return fmt.Errorf("log call requests: call %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("log call requests: commit: %w", err)
	}
	return nil
}
