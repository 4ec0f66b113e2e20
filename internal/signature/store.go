package signature

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/btcsuite/btcutil/base58"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Signature is a raw signature. It is written to JSON as base58.
type Signature []byte

// MarshalJSON encodes the signature as a base58 string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(base58.Encode(s))
}

// UnmarshalJSON decodes a base58 string.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	raw := base58.Decode(text)
	if len(raw) == 0 && text != "" {
		return fmt.Errorf("signature %q is not base58", text)
	}
	*s = raw
	return nil
}

// Store maps peer ids to their signatures.
type Store map[string]Signature

// SigningMessage returns the canonical bytes a signature covers.
// CIDs are deduplicated and sorted.
func SigningMessage(cids []ir.CID, salt string) ([]byte, error) {
	sorted := slices.Clone(cids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	arr := make(ir.Array, len(sorted))
	for i, c := range sorted {
		arr[i] = ir.String(string(c))
	}
	return ir.MarshalCanonical(ir.Object{
		"cids": arr,
		"salt": ir.String(salt),
	})
}

// SignCIDs signs a CID set with salt.
func SignCIDs(kp *KeyPair, cids []ir.CID, salt string) (Signature, error) {
	msg, err := SigningMessage(cids, salt)
	if err != nil {
		return nil, err
	}
	return kp.Sign(msg)
}

// VerifyCIDs checks that sig is peerID's signature over cids and salt.
func VerifyCIDs(peerID string, cids []ir.CID, salt string, sig Signature) error {
	pub, err := PublicKeyFromPeerID(peerID)
	if err != nil {
		return err
	}
	msg, err := SigningMessage(cids, salt)
	if err != nil {
		return err
	}
	return pub.Verify(msg, sig)
}

// Verify checks the signature of every peer the tracker knows about.
// Signatures of peers that authored nothing are ignored.
func (s Store) Verify(tracker *PeerCIDTracker, salt string) error {
	for _, peer := range tracker.Peers() {
		sig, ok := s[peer]
		if !ok {
			return &VerificationError{PeerID: peer, Err: ErrMissingSignature}
		}
		if err := VerifyCIDs(peer, tracker.CIDs(peer), salt, sig); err != nil {
			return &VerificationError{PeerID: peer, Err: err}
		}
	}
	return nil
}

// Clone returns a shallow copy.
func (s Store) Clone() Store {
	out := make(Store, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// PeerCIDTracker collects the CIDs each peer authored.
type PeerCIDTracker struct {
	byPeer map[string]map[ir.CID]struct{}
}

// NewPeerCIDTracker creates an empty tracker.
func NewPeerCIDTracker() *PeerCIDTracker {
	return &PeerCIDTracker{byPeer: make(map[string]map[ir.CID]struct{})}
}

// Register records that peer authored c.
func (t *PeerCIDTracker) Register(peer string, c ir.CID) {
	set, ok := t.byPeer[peer]
	if !ok {
		set = make(map[ir.CID]struct{})
		t.byPeer[peer] = set
	}
	set[c] = struct{}{}
}

// Peers returns all authors in ascending order.
func (t *PeerCIDTracker) Peers() []string {
	peers := make([]string, 0, len(t.byPeer))
	for p := range t.byPeer {
		peers = append(peers, p)
	}
	slices.Sort(peers)
	return peers
}

// CIDs returns the CIDs peer authored in ascending order.
func (t *PeerCIDTracker) CIDs(peer string) []ir.CID {
	set := t.byPeer[peer]
	out := make([]ir.CID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
