package interpreter

import (
	"errors"

	"github.com/fluencelabs/aquavm-sub001/internal/cid"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
	"github.com/fluencelabs/aquavm-sub001/internal/tracehandler"
)

// Blob names used in preparation errors.
const (
	SourcePrevious = "previous"
	SourceCurrent  = "current"
)

// Prepared is the verified input of one turn.
type Prepared struct {
	Prev *trace.Data
	Cur  *trace.Data

	// Handler merges the two traces.
	Handler *tracehandler.Handler

	// Tracker is seeded with both blobs' CID stores and collects what the
	// turn produces.
	Tracker *cid.Tracker
}

// Prepare decodes and verifies both blobs. salt is the particle id every
// signature must be bound to.
func Prepare(prevData, curData []byte, salt string) (*Prepared, error) {
	prev, err := prepareData(prevData, SourcePrevious, salt)
	if err != nil {
		return nil, err
	}
	cur, err := prepareData(curData, SourceCurrent, salt)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		Prev:    prev,
		Cur:     cur,
		Handler: tracehandler.New(prev.Trace, cur.Trace),
		Tracker: cid.NewTracker(prev.CIDInfo, cur.CIDInfo),
	}, nil
}

func prepareData(raw []byte, source, salt string) (*trace.Data, error) {
	data, err := trace.DecodeData(raw)
	if err != nil {
		kind := DataDecodeFailed
		if trace.IsVersionError(err) {
			kind = UnsupportedDataVersion
		}
		return nil, &PreparationError{Kind: kind, Source: source, Err: err}
	}

	if err := data.CIDInfo.Verify(); err != nil {
		return nil, storeError(source, err)
	}

	authors, err := collectAuthors(data.Trace, cid.NewTracker(data.CIDInfo))
	if err != nil {
		return nil, &PreparationError{Kind: CidStoreVerification, Source: source, Err: err}
	}
	if err := data.Signatures.Verify(authors, salt); err != nil {
		return nil, &PreparationError{Kind: SignatureVerification, Source: source, Err: err}
	}
	return data, nil
}

func storeError(source string, err error) *PreparationError {
	pe := &PreparationError{Kind: CidStoreVerification, Source: source, Err: err}

	var ve *cid.VerificationError
	var de *cid.DanglingReferenceError
	switch {
	case errors.As(err, &ve):
		pe.TypeName = ve.TypeName
		pe.CIDRepr = string(ve.CID)
	case errors.As(err, &de):
		pe.TypeName = de.From
		pe.CIDRepr = string(de.FromCID)
	}
	return pe
}

// collectAuthors maps every peer to the service result and canon CIDs its
// tetraplets claim in t.
func collectAuthors(t trace.Trace, tracker *cid.Tracker) (*signature.PeerCIDTracker, error) {
	authors := signature.NewPeerCIDTracker()
	for _, state := range t {
		var err error
		switch s := state.(type) {
		case trace.Call:
			err = addCallAuthor(authors, tracker, s.Result)
		case trace.Canon:
			err = addCanonAuthor(authors, tracker, s.CID)
		}
		if err != nil {
			return nil, err
		}
	}
	return authors, nil
}

func addCallAuthor(authors *signature.PeerCIDTracker, tracker *cid.Tracker, result trace.CallResult) error {
	var c ir.CID
	switch r := result.(type) {
	case trace.Executed:
		c = r.Value.ServiceResultCID()
	case trace.Failed:
		c = r.CID
	default:
		return nil
	}
	peer, err := tracker.AuthorOfServiceResult(c)
	if err != nil {
		return err
	}
	authors.Register(peer, c)
	return nil
}

func addCanonAuthor(authors *signature.PeerCIDTracker, tracker *cid.Tracker, c ir.CID) error {
	peer, err := tracker.AuthorOfCanonResult(c)
	if err != nil {
		return err
	}
	authors.Register(peer, c)
	return nil
}
