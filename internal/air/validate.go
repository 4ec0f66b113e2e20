package air

import (
	"fmt"
	"slices"
	"strings"
)

// Validation error codes (E200-E299)
const (
	ErrUndefinedVariable   = "E201" // scalar is never defined and is not an iterator in scope
	ErrIteratorOutsideFold = "E202" // next refers to an iterator with no enclosing fold
	ErrIteratorShadowed    = "E203" // nested fold reuses an iterator name
	ErrStreamAsValue       = "E204" // stream or stream map used where a value is expected
	ErrUndefinedCanon      = "E205" // canon stream is never produced by a canon instruction
	ErrIteratorAssigned    = "E206" // result variable names an iterator in scope
)

// ValidationError is a variable-usage problem in a parsed script.
type ValidationError struct {
	Instruction string `json:"instruction"`
	Message     string `json:"message"`
	Code        string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Instruction, e.Message)
}

// ValidationErrors is every problem Validate found.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "air: invalid script: " + strings.Join(msgs, "; ")
}

// Validate checks variable usage across the script.
// Returns all errors found (does not fail-fast).
//
// A scalar is valid wherever it is used if any call or ap in the script
// defines it; definitions may sit in a branch another peer executes.
// Iterators are lexical to their fold.
func Validate(root Instruction) []ValidationError {
	v := &validator{
		scalars:   make(map[string]bool),
		canons:    make(map[string]bool),
		canonMaps: make(map[string]bool),
	}
	v.collect(root)
	v.walk(root)
	return v.errs
}

type validator struct {
	scalars   map[string]bool
	canons    map[string]bool
	canonMaps map[string]bool
	iterators []string
	errs      []ValidationError
}

// collect records every variable definition.
func (v *validator) collect(instr Instruction) {
	switch i := instr.(type) {
	case Seq:
		v.collect(i.Left)
		v.collect(i.Right)
	case Par:
		v.collect(i.Left)
		v.collect(i.Right)
	case Xor:
		v.collect(i.Left)
		v.collect(i.Right)
	case Match:
		v.collect(i.Body)
	case Mismatch:
		v.collect(i.Body)
	case Fold:
		v.collect(i.Body)
		if i.Last != nil {
			v.collect(i.Last)
		}
	case New:
		v.collect(i.Body)
	case Call:
		if s, ok := i.Output.(Scalar); ok {
			v.scalars[s.Name] = true
		}
	case Ap:
		if s, ok := i.Result.(Scalar); ok {
			v.scalars[s.Name] = true
		}
	case Canon:
		switch c := i.Result.(type) {
		case CanonStream:
			v.canons[c.Name] = true
		case CanonMap:
			v.canonMaps[c.Name] = true
		}
	}
}

func (v *validator) walk(instr Instruction) {
	switch i := instr.(type) {
	case Seq:
		v.walk(i.Left)
		v.walk(i.Right)
	case Par:
		v.walk(i.Left)
		v.walk(i.Right)
	case Xor:
		v.walk(i.Left)
		v.walk(i.Right)
	case Match:
		v.values(i, i.Left, i.Right)
		v.walk(i.Body)
	case Mismatch:
		v.values(i, i.Left, i.Right)
		v.walk(i.Body)
	case Fold:
		switch it := i.Iterable.(type) {
		case Stream, StreamMap:
		default:
			v.use(i, it)
		}
		if v.iteratorInScope(i.Iterator) {
			v.report(i, ErrIteratorShadowed, "iterator %q shadows an iterator of an enclosing fold", i.Iterator)
		}
		v.iterators = append(v.iterators, i.Iterator)
		v.walk(i.Body)
		if i.Last != nil {
			v.walk(i.Last)
		}
		v.iterators = v.iterators[:len(v.iterators)-1]
	case Next:
		if !v.iteratorInScope(i.Iterator) {
			v.report(i, ErrIteratorOutsideFold, "next refers to %q outside of its fold", i.Iterator)
		}
	case New:
		v.walk(i.Body)
	case Ap:
		v.values(i, i.Arg)
		v.result(i, i.Result)
	case ApMap:
		v.values(i, i.Key, i.Value)
	case Call:
		v.values(i, i.Triplet.Peer, i.Triplet.Service, i.Triplet.Function)
		v.values(i, i.Args...)
		v.result(i, i.Output)
	case Canon:
		v.values(i, i.Peer)
	case Fail:
		if i.Kind == FailScalar {
			v.use(i, i.Scalar)
		}
	}
}

// values checks operands that must resolve to a single value.
func (v *validator) values(instr Instruction, vals ...Value) {
	for _, val := range vals {
		switch val := val.(type) {
		case Stream, StreamMap:
			v.report(instr, ErrStreamAsValue, "%s cannot be used as a value; canonicalize it first", val)
		case ArrayLiteral:
			v.values(instr, val.Items...)
		default:
			v.use(instr, val)
		}
	}
}

func (v *validator) use(instr Instruction, val Value) {
	switch val := val.(type) {
	case Scalar:
		v.scalar(instr, val.Name)
		v.lambda(instr, val.Lambda)
	case CanonStream:
		if !v.canons[val.Name] {
			v.report(instr, ErrUndefinedCanon, "canon stream #%s is never produced", val.Name)
		}
		v.lambda(instr, val.Lambda)
	case CanonMap:
		if !v.canonMaps[val.Name] {
			v.report(instr, ErrUndefinedCanon, "canon stream map #%%%s is never produced", val.Name)
		}
		v.lambda(instr, val.Lambda)
	case LastError:
		v.lambda(instr, val.Lambda)
	case ErrorObject:
		v.lambda(instr, val.Lambda)
	case ArrayLiteral:
		for _, item := range val.Items {
			v.use(instr, item)
		}
	}
}

func (v *validator) lambda(instr Instruction, l Lambda) {
	for _, a := range l.Path {
		if s, ok := a.(FieldByScalar); ok {
			v.scalar(instr, s.Name)
		}
	}
}

func (v *validator) scalar(instr Instruction, name string) {
	if v.iteratorInScope(name) || v.scalars[name] {
		return
	}
	v.report(instr, ErrUndefinedVariable, "variable %q is not defined", name)
}

func (v *validator) result(instr Instruction, out Value) {
	if s, ok := out.(Scalar); ok && v.iteratorInScope(s.Name) {
		v.report(instr, ErrIteratorAssigned, "result %q would overwrite an iterator", s.Name)
	}
}

func (v *validator) iteratorInScope(name string) bool {
	return slices.Contains(v.iterators, name)
}

func (v *validator) report(instr Instruction, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Instruction: instr.String(),
		Message:     fmt.Sprintf(format, args...),
		Code:        code,
	})
}
