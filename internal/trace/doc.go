// Package trace defines the executed-state trace and the persisted data
// format that carries it between peers.
//
// A trace is a flat sequence of states. Par states prefix the lengths of
// their two subtrees so a reader can skip a subtree in O(1); Fold states
// record, per iteration, which value was processed and where the body's
// states live. Call results do not carry values inline: they reference
// service result aggregates in the CID store.
//
// JSON encoding (one key per state):
//
//	{"par": [left, right]}
//	{"call": {"executed": {"scalar": cid}}}
//	{"call": {"executed": {"stream": {"cid": cid, "generation": n}}}}
//	{"call": {"executed": {"unused": cid}}}
//	{"call": {"failed": cid}}
//	{"call": {"sent_by": {"peer_id": peer, "call_id": n}}}
//	{"ap": {"gens": [n]}}
//	{"fold": {"lore": [{"pos": p, "desc": [{"pos": p, "len": n}, …]}]}}
//	{"canon": {"cid": cid}}
package trace
