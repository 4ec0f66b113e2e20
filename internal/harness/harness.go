package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/interpreter"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
	"github.com/fluencelabs/aquavm-sub001/internal/store"
	"github.com/fluencelabs/aquavm-sub001/internal/testutil"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// DefaultMaxHops bounds the turns of a scenario that sets no max_hops.
const DefaultMaxHops = 256

// startMillis is the network clock at the first turn.
const startMillis = 1_000_000

// peer is one running node of the scenario network.
type peer struct {
	name   string
	id     string
	in     *interpreter.Interpreter
	format signature.KeyFormat
	host   *testutil.Host
	params interpreter.RunParameters
	tamper bool
}

// delivery is a particle on its way to a peer.
type delivery struct {
	to   string
	from string
	data []byte
}

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and fixed particle ids.
type Harness struct {
	store    *store.Store
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	script   string
	particle string
	maxHops  int
	delay    time.Duration

	peers  map[string]*peer
	byID   map[string]string
	queue  []delivery
	result *Result
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Create one interpreter and service host per peer
// 3. Start the particle on the init peer and route it by next peers
// 4. Answer call requests with the peers' canned services
// 5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := h.run(ctx, scenario.Init); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, PeerIDs: h.peerIDs()}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func newHarness(s *Scenario, st *store.Store) (*Harness, error) {
	particle := s.ParticleID
	if particle == "" {
		particle = testutil.NewSequentialParticleIDs("").Generate()
	}
	maxHops := s.MaxHops
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}

	h := &Harness{
		store:    st,
		clock:    testutil.NewDeterministicClock(startMillis),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		particle: particle,
		maxHops:  maxHops,
		delay:    time.Duration(s.HopDelayMs) * time.Millisecond,
		peers:    make(map[string]*peer, len(s.Peers)),
		byID:     make(map[string]string, len(s.Peers)),
		result:   NewResult(),
	}
	h.result.ParticleID = particle

	for _, spec := range s.Peers {
		format, err := keyFormat(spec.KeyFormat)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", spec.Name, err)
		}
		kp := testutil.KeyPairWithFormat(spec.Name, format)

		host := testutil.NewHost()
		for _, svc := range spec.Services {
			fn, err := svc.service()
			if err != nil {
				return nil, fmt.Errorf("peer %s: %w", spec.Name, err)
			}
			host.Register(svc.Service, svc.Function, fn)
		}

		p := &peer{
			name:   spec.Name,
			id:     kp.PeerID(),
			format: format,
			in:     interpreter.New(kp, interpreter.WithLogger(h.logger), interpreter.WithClock(h.clock.Now)),
			host:   host,
			tamper: spec.Tamper,
		}
		h.peers[p.name] = p
		h.byID[p.id] = p.name
		h.result.names[p.id] = p.name
	}

	initID := h.peers[s.Init].id
	timestamp := uint64(h.clock.Millis())
	for _, p := range h.peers {
		p.params = interpreter.RunParameters{
			InitPeerID:    initID,
			CurrentPeerID: p.id,
			Timestamp:     timestamp,
			TTL:           s.TTLMs,
			KeyFormat:     p.format,
			ParticleID:    particle,
		}
	}

	h.script = substitutePeers(s.Script, h.peerIDs())
	return h, nil
}

// substitutePeers replaces "{{name}}" with the peer id of name.
func substitutePeers(script string, ids map[string]string) string {
	pairs := make([]string, 0, 2*len(ids))
	for _, name := range slices.Sorted(maps.Keys(ids)) {
		pairs = append(pairs, "{{"+name+"}}", ids[name])
	}
	return strings.NewReplacer(pairs...).Replace(script)
}

func (h *Harness) peerIDs() map[string]string {
	ids := make(map[string]string, len(h.peers))
	for name, p := range h.peers {
		ids[name] = p.id
	}
	return ids
}

// run delivers the particle until no peer has anything left to do.
func (h *Harness) run(ctx context.Context, init string) error {
	h.queue = append(h.queue, delivery{to: init})
	for len(h.queue) > 0 {
		d := h.queue[0]
		h.queue = h.queue[1:]
		if err := h.deliver(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// deliver runs the turns one delivery causes on its peer: the turn over the
// incoming data and one more turn for every batch of call results.
func (h *Harness) deliver(ctx context.Context, d delivery) error {
	p := h.peers[d.to]
	prev, err := h.store.LoadData(ctx, p.id, h.particle)
	if err != nil {
		return fmt.Errorf("load data of %s: %w", p.name, err)
	}

	cur, from := d.data, d.from
	var results map[uint32]execution.CallResult
	for {
		if len(h.result.Hops) >= h.maxHops {
			return fmt.Errorf("scenario exceeded %d hops", h.maxHops)
		}
		h.clock.Advance(h.delay)

		out := p.in.Call(ctx, h.script, prev, cur, p.params, results)
		if err := h.record(ctx, p, from, out); err != nil {
			return err
		}
		if out.RetCode >= interpreter.PreparationBase {
			return nil
		}

		if err := h.route(p, out); err != nil {
			return err
		}
		if len(out.CallRequests) == 0 {
			return nil
		}

		results = p.host.Answer(out.CallRequests)
		h.result.Calls[p.name] = p.host.Calls()
		prev, cur, from = out.Data, nil, p.name
	}
}

// record persists the turn and appends it to the result.
func (h *Harness) record(ctx context.Context, p *peer, from string, out interpreter.Outcome) error {
	data, err := trace.DecodeData(out.Data)
	if err != nil {
		return fmt.Errorf("decode data of %s: %w", p.name, err)
	}

	seq, err := h.store.LogTurn(ctx, store.TurnRecord{
		PeerID:       p.id,
		ParticleID:   h.particle,
		RetCode:      out.RetCode,
		ErrorMessage: out.ErrorMessage,
		TraceLen:     len(data.Trace),
		NextPeers:    out.NextPeerPKs,
	})
	if err != nil {
		return err
	}
	if err := h.store.SaveData(ctx, p.id, h.particle, out.Data, seq); err != nil {
		return err
	}
	if err := h.store.LogCallRequests(ctx, p.id, h.particle, seq, out.CallRequests); err != nil {
		return err
	}

	h.result.final[p.name] = data
	h.result.Hops = append(h.result.Hops, Hop{
		Seq:          len(h.result.Hops) + 1,
		Peer:         p.name,
		From:         from,
		RetCode:      out.RetCode,
		ErrorMessage: out.ErrorMessage,
		CallRequests: out.CallRequests,
		NextPeers:    h.names(out.NextPeerPKs),
		Trace:        data.Trace,
		data:         data,
	})
	return nil
}

// route queues the outgoing data for every next peer.
func (h *Harness) route(p *peer, out interpreter.Outcome) error {
	if len(out.NextPeerPKs) == 0 {
		return nil
	}

	data := out.Data
	if p.tamper {
		tampered, err := tamperValue(data)
		if err != nil {
			return fmt.Errorf("tamper data of %s: %w", p.name, err)
		}
		data = tampered
	}

	for _, id := range out.NextPeerPKs {
		name, ok := h.byID[id]
		if !ok {
			h.result.AddError(fmt.Sprintf("%s sent the particle to unknown peer %s", p.name, id))
			continue
		}
		h.queue = append(h.queue, delivery{to: name, from: p.name, data: data})
	}
	return nil
}

func (h *Harness) names(ids []string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = h.result.PeerName(id)
	}
	return names
}

// tamperValue replaces the first stored value with a different one while
// keeping its CID, so the store no longer matches its addresses.
func tamperValue(raw []byte) ([]byte, error) {
	data, err := trace.DecodeData(raw)
	if err != nil {
		return nil, err
	}
	cids := data.CIDInfo.Values.CIDs()
	if len(cids) == 0 {
		return raw, nil
	}
	victim := cids[0]
	payload, _ := data.CIDInfo.Values.Get(victim)
	canonical, err := ir.MarshalCanonical(payload.CanonicalValue())
	if err != nil {
		return nil, err
	}
	data.CIDInfo.Values.Set(victim, ir.ValuePayload{Value: ir.String("tampered:" + string(canonical))})
	return data.Encode()
}
