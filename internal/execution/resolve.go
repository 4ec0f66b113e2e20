package execution

import (
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// resolved is an operand after variable lookup and lambda application.
type resolved struct {
	value      ir.Value
	tetraplets []ir.Tetraplet
	provenance ir.Provenance
}

// tetraplet returns the single tetraplet of a scalar-like operand.
func (r resolved) tetraplet() ir.Tetraplet {
	if len(r.tetraplets) == 0 {
		return ir.Tetraplet{}
	}
	return r.tetraplets[0]
}

func (e *Executor) literal(v ir.Value, peer string) resolved {
	return resolved{
		value:      v,
		tetraplets: []ir.Tetraplet{ir.LiteralTetraplet(peer)},
		provenance: ir.LiteralProvenance(),
	}
}

func (e *Executor) lookupScalar(name string) (ir.Value, bool) {
	s, ok := e.scalars.get(name)
	return s.value, ok
}

// resolveValue evaluates an operand. It reports false when the operand names
// a scalar or canon that is not bound yet; the caller must then leave its
// subgraph incomplete without touching the trace.
func (e *Executor) resolveValue(v air.Value) (resolved, bool, error) {
	switch val := v.(type) {
	case air.Literal:
		return e.literal(val.Value, e.cfg.CurrentPeerID), true, nil
	case air.InitPeerID:
		return e.literal(ir.String(e.cfg.InitPeerID), e.cfg.InitPeerID), true, nil
	case air.Timestamp:
		return e.literal(ir.Int(e.cfg.Timestamp), e.cfg.CurrentPeerID), true, nil
	case air.TTL:
		return e.literal(ir.Int(e.cfg.TTL), e.cfg.CurrentPeerID), true, nil
	case air.LastError:
		return e.errorValue(e.lastError, val.Lambda)
	case air.ErrorObject:
		return e.errorValue(e.currentError(), val.Lambda)
	case air.ArrayLiteral:
		return e.resolveArray(val)
	case air.Scalar:
		s, ok := e.scalars.get(val.Name)
		if !ok {
			return resolved{}, false, nil
		}
		out, ok, err := applyLambda(s.value, val.Lambda, e.lookupScalar)
		if err != nil || !ok {
			return resolved{}, ok, err
		}
		return resolved{
			value:      out,
			tetraplets: []ir.Tetraplet{s.tetraplet.WithLambda(val.Lambda.String())},
			provenance: s.provenance,
		}, true, nil
	case air.CanonStream:
		c, ok := e.canons.get(val.Name)
		if !ok {
			return resolved{}, false, nil
		}
		return applyCanonLambda(c, val.Lambda, e.lookupScalar)
	case air.CanonMap:
		c, ok := e.canonMaps.get(val.Name)
		if !ok {
			return resolved{}, false, nil
		}
		return applyCanonLambda(c, val.Lambda, e.lookupScalar)
	default:
		return resolved{}, false, fmt.Errorf("%s cannot be used as a value", v)
	}
}

// currentError returns the error of the innermost xor fallback branch.
func (e *Executor) currentError() *CatchableError {
	if n := len(e.caught); n > 0 {
		return e.caught[n-1]
	}
	return nil
}

func (e *Executor) errorValue(ce *CatchableError, l air.Lambda) (resolved, bool, error) {
	obj := NoErrorObject()
	peer := e.cfg.CurrentPeerID
	if ce != nil {
		obj = ce.Object()
		peer = ce.PeerID
	}
	out, ok, err := applyLambda(obj, l, e.lookupScalar)
	if err != nil || !ok {
		return resolved{}, ok, err
	}
	return resolved{
		value:      out,
		tetraplets: []ir.Tetraplet{ir.LiteralTetraplet(peer).WithLambda(l.String())},
		provenance: ir.LiteralProvenance(),
	}, true, nil
}

// resolveArray keeps one tetraplet per item so a fold over the literal can
// hand each iteration its own.
func (e *Executor) resolveArray(a air.ArrayLiteral) (resolved, bool, error) {
	items := make(ir.Array, 0, len(a.Items))
	tetraplets := make([]ir.Tetraplet, 0, len(a.Items))
	for _, item := range a.Items {
		r, ok, err := e.resolveValue(item)
		if err != nil || !ok {
			return resolved{}, ok, err
		}
		items = append(items, r.value)
		tetraplets = append(tetraplets, r.tetraplet())
	}
	return resolved{value: items, tetraplets: tetraplets, provenance: ir.LiteralProvenance()}, true, nil
}

// resolveString evaluates a triplet component, which must be a string.
func (e *Executor) resolveString(v air.Value) (string, ir.Tetraplet, bool, error) {
	r, ok, err := e.resolveValue(v)
	if err != nil || !ok {
		return "", ir.Tetraplet{}, ok, err
	}
	s, isString := r.value.(ir.String)
	if !isString {
		return "", ir.Tetraplet{}, false, newCatchable(NonStringValueInTripletResolution,
			"call triplet part %s resolved to %s, expected a string", v, ir.TypeName(r.value))
	}
	return string(s), r.tetraplet(), true, nil
}

// triplet is a resolved call target.
type triplet struct {
	peer     string
	service  string
	function string

	// peerTetraplet is the tetraplet of the value the peer came from.
	peerTetraplet ir.Tetraplet
}

func (e *Executor) resolveTriplet(t air.Triplet) (triplet, bool, error) {
	var out triplet
	var ok bool
	var err error
	if out.peer, out.peerTetraplet, ok, err = e.resolveString(t.Peer); err != nil || !ok {
		return triplet{}, ok, err
	}
	if out.service, _, ok, err = e.resolveString(t.Service); err != nil || !ok {
		return triplet{}, ok, err
	}
	if out.function, _, ok, err = e.resolveString(t.Function); err != nil || !ok {
		return triplet{}, ok, err
	}
	return out, true, nil
}

// resolveArgs evaluates call arguments. A canon argument passes the
// tetraplets of all its elements.
func (e *Executor) resolveArgs(args []air.Value) ([]ir.Value, [][]ir.Tetraplet, bool, error) {
	values := make([]ir.Value, 0, len(args))
	tetraplets := make([][]ir.Tetraplet, 0, len(args))
	for _, arg := range args {
		r, ok, err := e.resolveValue(arg)
		if err != nil || !ok {
			return nil, nil, ok, err
		}
		values = append(values, r.value)
		tetraplets = append(tetraplets, r.tetraplets)
	}
	return values, tetraplets, true, nil
}
