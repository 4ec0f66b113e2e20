package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LoadData returns the latest data of a particle on a peer, or nil if the
// peer has not seen the particle.
func (s *Store) LoadData(ctx context.Context, peerID, particleID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM particles
		WHERE peer_id = ? AND particle_id = ?
	`, peerID, particleID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}
	return data, nil
}

// CallRequests returns the call requests a peer logged for a particle,
// ordered by call id.
//
// Returns an empty slice (not nil) if no requests exist.
func (s *Store) CallRequests(ctx context.Context, peerID, particleID string) ([]CallRequestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, service_id, function_name, arguments, tetraplets, seq
		FROM call_requests
		WHERE peer_id = ? AND particle_id = ?
		ORDER BY call_id ASC
	`, peerID, particleID)
	if err != nil {
		return nil, fmt.Errorf("query call requests: %w", err)
	}
	defer rows.Close()

	records := []CallRequestRecord{}
	for rows.Next() {
		rec := CallRequestRecord{PeerID: peerID, ParticleID: particleID}
		var args, tps string
		if err := rows.Scan(&rec.CallID, &rec.Request.ServiceID, &rec.Request.FunctionName, &args, &tps, &rec.Seq); err != nil {
			return nil, fmt.Errorf("scan call request: %w", err)
		}
		if rec.Request.Arguments, err = unmarshalArguments(args); err != nil {
			return nil, fmt.Errorf("call request %d: %w", rec.CallID, err)
		}
		if rec.Request.Tetraplets, err = unmarshalTetraplets(tps); err != nil {
			return nil, fmt.Errorf("call request %d: %w", rec.CallID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call requests: %w", err)
	}
	return records, nil
}

// Turns returns every logged turn of a particle in seq order.
//
// Returns an empty slice (not nil) if no turns exist.
func (s *Store) Turns(ctx context.Context, particleID string) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, peer_id, particle_id, ret_code, error_message, trace_len, next_peers
		FROM turns
		WHERE particle_id = ?
		ORDER BY seq ASC
	`, particleID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := []TurnRecord{}
	for rows.Next() {
		var turn TurnRecord
		var peers string
		if err := rows.Scan(&turn.Seq, &turn.PeerID, &turn.ParticleID, &turn.RetCode, &turn.ErrorMessage, &turn.TraceLen, &peers); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if turn.NextPeers, err = unmarshalPeers(peers); err != nil {
			return nil, fmt.Errorf("turn %d: %w", turn.Seq, err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}
