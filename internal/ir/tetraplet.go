package ir

import (
	"encoding/json"
	"fmt"
)

// Tetraplet is the security quadruple attached to every produced value:
// which peer claims it, which service and function produced it, and which
// lambda path was applied to reach it.
type Tetraplet struct {
	PeerPK       string `json:"peer_pk"`
	ServiceID    string `json:"service_id"`
	FunctionName string `json:"function_name"`
	LambdaPath   string `json:"json_path"`
}

// LiteralTetraplet marks a value that was a literal in a script running on peerID.
func LiteralTetraplet(peerID string) Tetraplet {
	return Tetraplet{PeerPK: peerID}
}

// WithLambda returns a copy with path appended to the lambda path.
func (t Tetraplet) WithLambda(path string) Tetraplet {
	t.LambdaPath += path
	return t
}

// CanonicalValue implements Addressable.
func (t Tetraplet) CanonicalValue() Value {
	return Object{
		"peer_pk":       String(t.PeerPK),
		"service_id":    String(t.ServiceID),
		"function_name": String(t.FunctionName),
		"json_path":     String(t.LambdaPath),
	}
}

// ProvenanceKind says where a value came from.
type ProvenanceKind string

const (
	ProvenanceLiteral       ProvenanceKind = "literal"
	ProvenanceServiceResult ProvenanceKind = "service_result"
	ProvenanceCanon         ProvenanceKind = "canon"
)

// Provenance records the origin of a value. CID is empty for literals.
type Provenance struct {
	Kind ProvenanceKind `json:"type"`
	CID  CID            `json:"cid,omitempty"`
}

// LiteralProvenance is the provenance of a script literal.
func LiteralProvenance() Provenance {
	return Provenance{Kind: ProvenanceLiteral}
}

// ServiceResultProvenance points at the service result aggregate that produced a value.
func ServiceResultProvenance(c CID) Provenance {
	return Provenance{Kind: ProvenanceServiceResult, CID: c}
}

// CanonProvenance points at the canon result a value was taken from.
func CanonProvenance(c CID) Provenance {
	return Provenance{Kind: ProvenanceCanon, CID: c}
}

// CanonicalValue returns the provenance as an IR object.
func (p Provenance) CanonicalValue() Value {
	obj := Object{"type": String(string(p.Kind))}
	if p.CID != "" {
		obj["cid"] = String(string(p.CID))
	}
	return obj
}

// UnmarshalJSON validates the provenance kind.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	type raw Provenance
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	switch r.Kind {
	case ProvenanceLiteral:
		if r.CID != "" {
			return fmt.Errorf("literal provenance must not carry a cid")
		}
	case ProvenanceServiceResult, ProvenanceCanon:
		if r.CID == "" {
			return fmt.Errorf("%s provenance requires a cid", r.Kind)
		}
	default:
		return fmt.Errorf("unknown provenance type %q", r.Kind)
	}
	*p = Provenance(r)
	return nil
}

// ServiceResultAggregate is the full record of one completed call.
type ServiceResultAggregate struct {
	ValueCID     CID    `json:"value_cid"`
	TetrapletCID CID    `json:"tetraplet_cid"`
	ArgumentHash string `json:"argument_hash"`
	TracePos     uint32 `json:"trace_position"`
}

// CanonicalValue implements Addressable.
func (a ServiceResultAggregate) CanonicalValue() Value {
	return Object{
		"value_cid":      String(string(a.ValueCID)),
		"tetraplet_cid":  String(string(a.TetrapletCID)),
		"argument_hash":  String(a.ArgumentHash),
		"trace_position": Int(a.TracePos),
	}
}

// CanonElement is one value of a canonicalized stream.
type CanonElement struct {
	ValueCID     CID        `json:"value_cid"`
	TetrapletCID CID        `json:"tetraplet_cid"`
	Provenance   Provenance `json:"provenance"`
}

// CanonicalValue implements Addressable.
func (e CanonElement) CanonicalValue() Value {
	return Object{
		"value_cid":     String(string(e.ValueCID)),
		"tetraplet_cid": String(string(e.TetrapletCID)),
		"provenance":    e.Provenance.CanonicalValue(),
	}
}

// CanonResultAggregate is the frozen snapshot of a stream.
type CanonResultAggregate struct {
	TetrapletCID CID   `json:"tetraplet_cid"`
	Values       []CID `json:"values"`
}

// CanonicalValue implements Addressable.
func (r CanonResultAggregate) CanonicalValue() Value {
	values := make(Array, len(r.Values))
	for i, c := range r.Values {
		values[i] = String(string(c))
	}
	return Object{
		"tetraplet_cid": String(string(r.TetrapletCID)),
		"values":        values,
	}
}

// ValuePayload wraps a plain value so it can live in a CID store.
type ValuePayload struct {
	Value Value
}

// CanonicalValue implements Addressable.
func (p ValuePayload) CanonicalValue() Value {
	if p.Value == nil {
		return Null{}
	}
	return p.Value
}

// MarshalJSON writes the wrapped value.
func (p ValuePayload) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(p.CanonicalValue())
}

// UnmarshalJSON reads the wrapped value.
func (p *ValuePayload) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	p.Value = v
	return nil
}
