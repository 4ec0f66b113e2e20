package trace

import (
	"encoding/json"
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Wire shapes. Every state is an object with exactly one key naming its kind.
type (
	wireStreamRef struct {
		CID        ir.CID `json:"cid"`
		Generation uint32 `json:"generation"`
	}
	wireValueRef struct {
		Scalar *ir.CID        `json:"scalar,omitempty"`
		Stream *wireStreamRef `json:"stream,omitempty"`
		Unused *ir.CID        `json:"unused,omitempty"`
	}
	wireSender struct {
		PeerID string  `json:"peer_id"`
		CallID *uint32 `json:"call_id,omitempty"`
	}
	wireCall struct {
		Executed *wireValueRef `json:"executed,omitempty"`
		Failed   *ir.CID       `json:"failed,omitempty"`
		SentBy   *wireSender   `json:"sent_by,omitempty"`
	}
	wireAp struct {
		Generations []uint32 `json:"gens"`
	}
	wireFold struct {
		Lore []SubTraceLore `json:"lore"`
	}
	wireCanon struct {
		CID ir.CID `json:"cid"`
	}
)

// MarshalState encodes one state.
func MarshalState(s State) ([]byte, error) {
	switch st := s.(type) {
	case Par:
		return json.Marshal(map[string][2]uint32{"par": {st.Left, st.Right}})
	case Call:
		wc, err := encodeCallResult(st.Result)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]wireCall{"call": wc})
	case Ap:
		gens := st.Generations
		if gens == nil {
			gens = []uint32{}
		}
		return json.Marshal(map[string]wireAp{"ap": {Generations: gens}})
	case Fold:
		lore := st.Lore
		if lore == nil {
			lore = []SubTraceLore{}
		}
		return json.Marshal(map[string]wireFold{"fold": {Lore: lore}})
	case Canon:
		return json.Marshal(map[string]wireCanon{"canon": {CID: st.CID}})
	default:
		return nil, fmt.Errorf("unknown executed state %T", s)
	}
}

func encodeCallResult(r CallResult) (wireCall, error) {
	switch res := r.(type) {
	case Executed:
		ref := &wireValueRef{}
		switch v := res.Value.(type) {
		case Scalar:
			ref.Scalar = &v.CID
		case Stream:
			ref.Stream = &wireStreamRef{CID: v.CID, Generation: v.Generation}
		case Unused:
			ref.Unused = &v.CID
		default:
			return wireCall{}, fmt.Errorf("unknown value ref %T", res.Value)
		}
		return wireCall{Executed: ref}, nil
	case Failed:
		return wireCall{Failed: &res.CID}, nil
	case RequestSentBy:
		return wireCall{SentBy: &wireSender{PeerID: res.PeerID, CallID: res.CallID}}, nil
	default:
		return wireCall{}, fmt.Errorf("unknown call result %T", r)
	}
}

// UnmarshalState decodes one state. Besides the five state kinds it accepts
// the bare {"sent_by": …} and {"failed": cid} atoms and reads them as the
// equivalent call results.
func UnmarshalState(data []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode executed state: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("executed state must have exactly one key, got %d", len(raw))
	}

	for kind, body := range raw {
		switch kind {
		case "par":
			var lr [2]uint32
			if err := json.Unmarshal(body, &lr); err != nil {
				return nil, fmt.Errorf("decode par: %w", err)
			}
			return Par{Left: lr[0], Right: lr[1]}, nil
		case "call":
			var wc wireCall
			if err := json.Unmarshal(body, &wc); err != nil {
				return nil, fmt.Errorf("decode call: %w", err)
			}
			res, err := decodeCallResult(wc)
			if err != nil {
				return nil, err
			}
			return Call{Result: res}, nil
		case "sent_by":
			sender, err := decodeSender(body)
			if err != nil {
				return nil, err
			}
			return Call{Result: sender}, nil
		case "failed":
			var c ir.CID
			if err := json.Unmarshal(body, &c); err != nil {
				return nil, fmt.Errorf("decode failed: %w", err)
			}
			return FailedCall(c), nil
		case "ap":
			var wa wireAp
			if err := json.Unmarshal(body, &wa); err != nil {
				return nil, fmt.Errorf("decode ap: %w", err)
			}
			if len(wa.Generations) == 0 || len(wa.Generations) > 2 {
				return nil, fmt.Errorf("ap must record one or two generations, got %d", len(wa.Generations))
			}
			return Ap{Generations: wa.Generations}, nil
		case "fold":
			var wf wireFold
			if err := json.Unmarshal(body, &wf); err != nil {
				return nil, fmt.Errorf("decode fold: %w", err)
			}
			if wf.Lore == nil {
				wf.Lore = []SubTraceLore{}
			}
			return Fold{Lore: wf.Lore}, nil
		case "canon":
			var wc wireCanon
			if err := json.Unmarshal(body, &wc); err != nil {
				return nil, fmt.Errorf("decode canon: %w", err)
			}
			return Canon{CID: wc.CID}, nil
		default:
			return nil, fmt.Errorf("unknown executed state kind %q", kind)
		}
	}
	panic("unreachable")
}

func decodeCallResult(wc wireCall) (CallResult, error) {
	set := 0
	if wc.Executed != nil {
		set++
	}
	if wc.Failed != nil {
		set++
	}
	if wc.SentBy != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("call result must have exactly one variant, got %d", set)
	}

	switch {
	case wc.Failed != nil:
		return Failed{CID: *wc.Failed}, nil
	case wc.SentBy != nil:
		return RequestSentBy{PeerID: wc.SentBy.PeerID, CallID: wc.SentBy.CallID}, nil
	}

	ref := wc.Executed
	switch {
	case ref.Scalar != nil && ref.Stream == nil && ref.Unused == nil:
		return Executed{Value: Scalar{CID: *ref.Scalar}}, nil
	case ref.Stream != nil && ref.Scalar == nil && ref.Unused == nil:
		return Executed{Value: Stream{CID: ref.Stream.CID, Generation: ref.Stream.Generation}}, nil
	case ref.Unused != nil && ref.Scalar == nil && ref.Stream == nil:
		return Executed{Value: Unused{CID: *ref.Unused}}, nil
	default:
		return nil, fmt.Errorf("executed value must have exactly one of scalar, stream, unused")
	}
}

// decodeSender accepts both a bare peer id string and a {peer_id, call_id} object.
func decodeSender(body json.RawMessage) (RequestSentBy, error) {
	var peer string
	if err := json.Unmarshal(body, &peer); err == nil {
		return RequestSentBy{PeerID: peer}, nil
	}
	var ws wireSender
	if err := json.Unmarshal(body, &ws); err != nil {
		return RequestSentBy{}, fmt.Errorf("decode sent_by: %w", err)
	}
	return RequestSentBy{PeerID: ws.PeerID, CallID: ws.CallID}, nil
}
