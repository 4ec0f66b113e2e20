package interpreter

import (
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// Finalize encodes the outgoing data of a turn whose streams have already
// been compacted. The current peer signs every CID it authored in the
// result trace; signatures of other peers are carried over from the inputs.
func Finalize(p *Prepared, kp *signature.KeyPair, peerID, salt string, lastCallID uint32) ([]byte, trace.Trace, error) {
	result := p.Handler.ResultTrace()

	authors, err := collectAuthors(result, p.Tracker)
	if err != nil {
		return nil, nil, &FinalizationError{Kind: SigningFailed, Err: err}
	}

	sigs := signature.Store{}
	for _, peer := range authors.Peers() {
		cids := authors.CIDs(peer)
		if peer == peerID {
			if kp.PeerID() != peerID {
				return nil, nil, &FinalizationError{
					Kind: KeyPeerMismatch,
					Err:  fmt.Errorf("key of peer %s cannot sign for %s", kp.PeerID(), peerID),
				}
			}
			sig, err := signature.SignCIDs(kp, cids, salt)
			if err != nil {
				return nil, nil, &FinalizationError{Kind: SigningFailed, Err: err}
			}
			sigs[peer] = sig
			continue
		}
		if sig, ok := carriedSignature(peer, cids, salt, p.Prev.Signatures, p.Cur.Signatures); ok {
			sigs[peer] = sig
		}
	}

	data := &trace.Data{
		Version:            ir.DataVersion,
		InterpreterVersion: ir.InterpreterVersion,
		Trace:              result,
		CIDInfo:            p.Tracker.Info(),
		Signatures:         sigs,
		LastCallRequestID:  lastCallID,
	}
	encoded, err := data.Encode()
	if err != nil {
		return nil, nil, &FinalizationError{Kind: DataEncodeFailed, Err: err}
	}
	return encoded, result, nil
}

// carriedSignature picks the input signature of peer that covers cids.
// When none does, the first one found is kept so the next peer reports the
// mismatch.
func carriedSignature(peer string, cids []ir.CID, salt string, stores ...signature.Store) (signature.Signature, bool) {
	var fallback signature.Signature
	for _, store := range stores {
		sig, ok := store[peer]
		if !ok {
			continue
		}
		if signature.VerifyCIDs(peer, cids, salt, sig) == nil {
			return sig, true
		}
		if fallback == nil {
			fallback = sig
		}
	}
	return fallback, fallback != nil
}
