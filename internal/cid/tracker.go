package cid

import (
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Tracker accumulates every payload produced or referenced during one turn.
// It is seeded from the merged incoming stores so that values met in either
// input trace can be resolved by CID.
type Tracker struct {
	info *Info
}

// NewTracker creates a tracker over the union of the given stores.
func NewTracker(inputs ...*Info) *Tracker {
	info := NewInfo()
	for _, in := range inputs {
		info.Merge(in)
	}
	return &Tracker{info: info}
}

// Info returns the accumulated stores.
func (t *Tracker) Info() *Info {
	return t.info
}

// TrackValue stores a value and returns its CID.
func (t *Tracker) TrackValue(v ir.Value) (ir.CID, error) {
	return t.info.Values.Put(ir.ValuePayload{Value: v})
}

// TrackTetraplet stores a tetraplet and returns its CID.
func (t *Tracker) TrackTetraplet(tp ir.Tetraplet) (ir.CID, error) {
	return t.info.Tetraplets.Put(tp)
}

// TrackServiceResult stores a call result with its value and tetraplet.
func (t *Tracker) TrackServiceResult(v ir.Value, tp ir.Tetraplet, argumentHash string, pos uint32) (ir.CID, error) {
	valueCID, err := t.TrackValue(v)
	if err != nil {
		return "", err
	}
	tetrapletCID, err := t.TrackTetraplet(tp)
	if err != nil {
		return "", err
	}
	return t.info.ServiceResults.Put(ir.ServiceResultAggregate{
		ValueCID:     valueCID,
		TetrapletCID: tetrapletCID,
		ArgumentHash: argumentHash,
		TracePos:     pos,
	})
}

// TrackCanonElement stores one canon element with its value and tetraplet.
func (t *Tracker) TrackCanonElement(v ir.Value, tp ir.Tetraplet, prov ir.Provenance) (ir.CID, error) {
	valueCID, err := t.TrackValue(v)
	if err != nil {
		return "", err
	}
	tetrapletCID, err := t.TrackTetraplet(tp)
	if err != nil {
		return "", err
	}
	return t.info.CanonElements.Put(ir.CanonElement{
		ValueCID:     valueCID,
		TetrapletCID: tetrapletCID,
		Provenance:   prov,
	})
}

// TrackCanonResult stores a canon result over already tracked elements.
func (t *Tracker) TrackCanonResult(tp ir.Tetraplet, elements []ir.CID) (ir.CID, error) {
	tetrapletCID, err := t.TrackTetraplet(tp)
	if err != nil {
		return "", err
	}
	if elements == nil {
		elements = []ir.CID{}
	}
	return t.info.CanonResults.Put(ir.CanonResultAggregate{
		TetrapletCID: tetrapletCID,
		Values:       elements,
	})
}

// Value resolves a value CID.
func (t *Tracker) Value(c ir.CID) (ir.Value, error) {
	p, ok := t.info.Values.Get(c)
	if !ok {
		return nil, &NotFoundError{TypeName: TypeValue, CID: c}
	}
	return p.CanonicalValue(), nil
}

// Tetraplet resolves a tetraplet CID.
func (t *Tracker) Tetraplet(c ir.CID) (ir.Tetraplet, error) {
	tp, ok := t.info.Tetraplets.Get(c)
	if !ok {
		return ir.Tetraplet{}, &NotFoundError{TypeName: TypeTetraplet, CID: c}
	}
	return tp, nil
}

// ServiceResult resolves a service result CID.
func (t *Tracker) ServiceResult(c ir.CID) (ir.ServiceResultAggregate, error) {
	agg, ok := t.info.ServiceResults.Get(c)
	if !ok {
		return ir.ServiceResultAggregate{}, &NotFoundError{TypeName: TypeServiceResult, CID: c}
	}
	return agg, nil
}

// CanonElement resolves a canon element CID.
func (t *Tracker) CanonElement(c ir.CID) (ir.CanonElement, error) {
	elem, ok := t.info.CanonElements.Get(c)
	if !ok {
		return ir.CanonElement{}, &NotFoundError{TypeName: TypeCanonElement, CID: c}
	}
	return elem, nil
}

// CanonResult resolves a canon result CID.
func (t *Tracker) CanonResult(c ir.CID) (ir.CanonResultAggregate, error) {
	res, ok := t.info.CanonResults.Get(c)
	if !ok {
		return ir.CanonResultAggregate{}, &NotFoundError{TypeName: TypeCanonResult, CID: c}
	}
	return res, nil
}

// AuthorOfServiceResult returns the peer named by a service result's tetraplet.
func (t *Tracker) AuthorOfServiceResult(c ir.CID) (string, error) {
	agg, err := t.ServiceResult(c)
	if err != nil {
		return "", err
	}
	tp, err := t.Tetraplet(agg.TetrapletCID)
	if err != nil {
		return "", err
	}
	return tp.PeerPK, nil
}

// AuthorOfCanonResult returns the peer named by a canon result's tetraplet.
func (t *Tracker) AuthorOfCanonResult(c ir.CID) (string, error) {
	res, err := t.CanonResult(c)
	if err != nil {
		return "", err
	}
	tp, err := t.Tetraplet(res.TetrapletCID)
	if err != nil {
		return "", err
	}
	return tp.PeerPK, nil
}
