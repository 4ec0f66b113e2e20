package harness

import (
	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// Hop is one interpreter turn of the scenario network.
type Hop struct {
	Seq int `json:"seq"`

	// Peer is the name of the peer that ran the turn.
	Peer string `json:"peer"`

	// From names the peer whose data was delivered. It equals Peer for a
	// turn that only carries call results, and is empty for the first turn.
	From string `json:"from"`

	RetCode      int64  `json:"ret_code"`
	ErrorMessage string `json:"error_message,omitempty"`

	CallRequests map[uint32]execution.CallRequest `json:"call_requests"`

	// NextPeers are the names of the peers the particle was sent to.
	// Ids of peers outside the network are kept as is.
	NextPeers []string `json:"next_peers"`

	// Trace is the trace of the outgoing data.
	Trace trace.Trace `json:"trace"`

	data *trace.Data
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	ParticleID string `json:"particle_id"`

	// Hops contains every turn in execution order.
	Hops []Hop `json:"hops"`

	// Calls are the call requests each peer's host served, in order.
	Calls map[string][]execution.CallRequest `json:"calls"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// final holds the data each peer stored last, by peer name.
	final map[string]*trace.Data

	// names maps peer ids to peer names.
	names map[string]string
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Hops:   []Hop{},
		Calls:  make(map[string][]execution.CallRequest),
		Errors: []string{},
		final:  make(map[string]*trace.Data),
		names:  make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// HopsOf returns the turns run by peer, in order.
func (r *Result) HopsOf(peer string) []Hop {
	var hops []Hop
	for _, h := range r.Hops {
		if h.Peer == peer {
			hops = append(hops, h)
		}
	}
	return hops
}

// FinalData returns the data peer stored last, or nil if it never ran.
func (r *Result) FinalData(peer string) *trace.Data {
	return r.final[peer]
}

// PeerName returns the name of the peer with peerID, or peerID itself for a
// peer outside the network.
func (r *Result) PeerName(peerID string) string {
	if name, ok := r.names[peerID]; ok {
		return name
	}
	return peerID
}
