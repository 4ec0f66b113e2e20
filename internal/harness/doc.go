// Package harness runs AIR scripts over a simulated network of peers.
//
// A scenario declares the peers, the canned services each peer hosts and one
// script. The harness starts the particle on the init peer with empty data
// and then behaves like the hosts of a real network would:
//
//  1. Every peer keeps the last data it produced in an in-memory store and
//     passes it as previous data to its next turn.
//  2. The outgoing data of a turn is delivered to every next peer, in the
//     order the interpreter reported them.
//  3. Call requests are answered by the peer's service host and fed back in
//     a follow-up turn on the same peer.
//
// Deliveries are processed first in, first out until no peer has anything
// left to do. Every turn is recorded as a Hop; assertions then check return
// codes, service calls, visit order and trace lengths.
//
// # Golden files
//
// RunWithGolden renders the hops as canonical JSON, with CIDs resolved to
// the values they address and peer ids replaced by peer names, and compares
// the result with testdata/golden/{name}.golden. Key pairs and particle ids
// are derived from names, so snapshots are reproducible.
//
// # Scenario format
//
//	name: relay_chain
//	description: A value produced on relay reaches target
//	init: init
//	peers:
//	  - name: init
//	  - name: relay
//	    services:
//	      - service: greeter
//	        function: hello
//	        result: hi
//	script: |
//	  (call "{{relay}}" ("greeter" "hello") [] greeting)
//	assertions:
//	  - type: call_count
//	    peer: relay
//	    service: greeter
//	    count: 1
package harness
