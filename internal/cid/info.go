package cid

import (
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Store type names used in verification errors.
const (
	TypeValue         = "value"
	TypeTetraplet     = "tetraplet"
	TypeCanonElement  = "canon_element"
	TypeCanonResult   = "canon_result"
	TypeServiceResult = "service_result"
)

// Info is the persisted set of CID stores.
type Info struct {
	Values         *Store[ir.ValuePayload]           `json:"value_store"`
	Tetraplets     *Store[ir.Tetraplet]              `json:"tetraplet_store"`
	CanonElements  *Store[ir.CanonElement]           `json:"canon_element_store"`
	CanonResults   *Store[ir.CanonResultAggregate]   `json:"canon_result_store"`
	ServiceResults *Store[ir.ServiceResultAggregate] `json:"service_result_store"`
}

// NewInfo creates an Info with empty stores.
func NewInfo() *Info {
	return &Info{
		Values:         NewStore[ir.ValuePayload](),
		Tetraplets:     NewStore[ir.Tetraplet](),
		CanonElements:  NewStore[ir.CanonElement](),
		CanonResults:   NewStore[ir.CanonResultAggregate](),
		ServiceResults: NewStore[ir.ServiceResultAggregate](),
	}
}

// normalize replaces stores missing from decoded JSON with empty ones.
func (i *Info) normalize() {
	if i.Values == nil {
		i.Values = NewStore[ir.ValuePayload]()
	}
	if i.Tetraplets == nil {
		i.Tetraplets = NewStore[ir.Tetraplet]()
	}
	if i.CanonElements == nil {
		i.CanonElements = NewStore[ir.CanonElement]()
	}
	if i.CanonResults == nil {
		i.CanonResults = NewStore[ir.CanonResultAggregate]()
	}
	if i.ServiceResults == nil {
		i.ServiceResults = NewStore[ir.ServiceResultAggregate]()
	}
}

// Verify checks every store's integrity and then every cross-store reference.
//
// Integrity is checked first, store by store in a fixed order, so a
// tampered value is always reported as a value error even if a service
// result also references it.
func (i *Info) Verify() error {
	i.normalize()

	checks := []struct {
		name   string
		verify func(string) error
	}{
		{TypeValue, i.Values.Verify},
		{TypeTetraplet, i.Tetraplets.Verify},
		{TypeCanonElement, i.CanonElements.Verify},
		{TypeCanonResult, i.CanonResults.Verify},
		{TypeServiceResult, i.ServiceResults.Verify},
	}
	for _, c := range checks {
		if err := c.verify(c.name); err != nil {
			return err
		}
	}

	return i.verifyReferences()
}

func (i *Info) verifyReferences() error {
	for _, key := range i.ServiceResults.CIDs() {
		agg, _ := i.ServiceResults.Get(key)
		if !i.Values.Has(agg.ValueCID) {
			return &DanglingReferenceError{From: TypeServiceResult, FromCID: key, To: TypeValue, ToCID: agg.ValueCID}
		}
		if !i.Tetraplets.Has(agg.TetrapletCID) {
			return &DanglingReferenceError{From: TypeServiceResult, FromCID: key, To: TypeTetraplet, ToCID: agg.TetrapletCID}
		}
	}
	for _, key := range i.CanonElements.CIDs() {
		elem, _ := i.CanonElements.Get(key)
		if !i.Values.Has(elem.ValueCID) {
			return &DanglingReferenceError{From: TypeCanonElement, FromCID: key, To: TypeValue, ToCID: elem.ValueCID}
		}
		if !i.Tetraplets.Has(elem.TetrapletCID) {
			return &DanglingReferenceError{From: TypeCanonElement, FromCID: key, To: TypeTetraplet, ToCID: elem.TetrapletCID}
		}
	}
	for _, key := range i.CanonResults.CIDs() {
		res, _ := i.CanonResults.Get(key)
		if !i.Tetraplets.Has(res.TetrapletCID) {
			return &DanglingReferenceError{From: TypeCanonResult, FromCID: key, To: TypeTetraplet, ToCID: res.TetrapletCID}
		}
		for _, elem := range res.Values {
			if !i.CanonElements.Has(elem) {
				return &DanglingReferenceError{From: TypeCanonResult, FromCID: key, To: TypeCanonElement, ToCID: elem}
			}
		}
	}
	return nil
}

// Merge copies every entry from other into i.
func (i *Info) Merge(other *Info) {
	if other == nil {
		return
	}
	i.normalize()
	other.normalize()
	i.Values.Merge(other.Values)
	i.Tetraplets.Merge(other.Tetraplets)
	i.CanonElements.Merge(other.CanonElements)
	i.CanonResults.Merge(other.CanonResults)
	i.ServiceResults.Merge(other.ServiceResults)
}
