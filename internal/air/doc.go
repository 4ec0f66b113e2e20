// Package air parses AIR scripts into an instruction tree.
//
// AIR is an S-expression language:
//
//	(seq
//	    (call "peer" ("service" "function") [arg1 arg2] result)
//	    (fold $stream item
//	        (seq
//	            (ap item $collected)
//	            (next item))))
//
// Instructions: seq, par, xor, match, mismatch, fold, next, new, null, ap,
// call, canon, fail. Operand prefixes select the variable kind:
//
//	name      scalar (or fold iterator)
//	$name     stream
//	%name     stream map
//	#name     canon stream
//	#%name    canon stream map
//
// Special operands are %init_peer_id%, %last_error%, :error:, %timestamp% and
// %ttl%. A lambda may follow scalars, canons and error objects: .$.field,
// .$.[0], .$.[scalar] chain value accessors, .length applies the length
// functor, and a trailing ! is accepted for compatibility.
//
// Parse runs the lexer, the parser and Validate. Validate reports every
// problem it finds instead of stopping at the first one.
package air
