package air

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Parse parses and validates an AIR script.
func Parse(src string) (Instruction, error) {
	root, err := ParseUnchecked(src)
	if err != nil {
		return nil, err
	}
	if errs := Validate(root); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return root, nil
}

// ParseUnchecked parses an AIR script without running the variable validator.
func ParseUnchecked(src string) (Instruction, error) {
	toks, err := NewLexer(src).Tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.instruction()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != EOF {
		return nil, p.errorAt(tok, "unexpected %s after the script", describe(tok))
	}
	return root, nil
}

type parser struct {
	toks []Token
	i    int
}

func (p *parser) peek() Token { return p.toks[p.i] }

func (p *parser) next() Token {
	tok := p.toks[p.i]
	if tok.Type != EOF {
		p.i++
	}
	return tok
}

func (p *parser) need(tt TokenType, what string) (Token, error) {
	tok := p.next()
	if tok.Type != tt {
		return Token{}, p.errorAt(tok, "expected %s, found %s", what, describe(tok))
	}
	return tok, nil
}

func (p *parser) errorAt(tok Token, format string, args ...any) error {
	return &ParseError{Line: tok.Line, Col: tok.Col, Msg: fmt.Sprintf(format, args...)}
}

func describe(tok Token) string {
	if tok.Type == EOF {
		return tok.Type.String()
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Lexeme)
}

func (p *parser) instruction() (Instruction, error) {
	if _, err := p.need(LPAREN, "'(' starting an instruction"); err != nil {
		return nil, err
	}
	kw, err := p.need(SYMBOL, "instruction name")
	if err != nil {
		return nil, err
	}

	var instr Instruction
	switch kw.Lexeme {
	case "seq", "par", "xor":
		instr, err = p.binary(kw.Lexeme)
	case "match", "mismatch":
		instr, err = p.match(kw.Lexeme == "match")
	case "fold":
		instr, err = p.fold()
	case "next":
		instr, err = p.nextInstr()
	case "new":
		instr, err = p.newInstr()
	case "null":
		instr = Null{}
	case "ap":
		instr, err = p.ap()
	case "call":
		instr, err = p.call()
	case "canon":
		instr, err = p.canon()
	case "fail":
		instr, err = p.fail()
	default:
		return nil, p.errorAt(kw, "unknown instruction %q", kw.Lexeme)
	}
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RPAREN, "')' closing "+kw.Lexeme); err != nil {
		return nil, err
	}
	return instr, nil
}

func (p *parser) binary(kind string) (Instruction, error) {
	left, err := p.instruction()
	if err != nil {
		return nil, err
	}
	right, err := p.instruction()
	if err != nil {
		return nil, err
	}
	switch kind {
	case "seq":
		return Seq{Left: left, Right: right}, nil
	case "par":
		return Par{Left: left, Right: right}, nil
	default:
		return Xor{Left: left, Right: right}, nil
	}
}

func (p *parser) match(equal bool) (Instruction, error) {
	left, err := p.value()
	if err != nil {
		return nil, err
	}
	right, err := p.value()
	if err != nil {
		return nil, err
	}
	body, err := p.instruction()
	if err != nil {
		return nil, err
	}
	if equal {
		return Match{Left: left, Right: right, Body: body}, nil
	}
	return Mismatch{Left: left, Right: right, Body: body}, nil
}

func (p *parser) fold() (Instruction, error) {
	tok := p.peek()
	iterable, err := p.value()
	if err != nil {
		return nil, err
	}
	switch it := iterable.(type) {
	case Scalar, Stream, StreamMap, CanonMap, ArrayLiteral:
	case CanonStream:
		if !it.Lambda.IsEmpty() {
			return nil, p.errorAt(tok, "a lambda cannot be applied to a folded canon stream")
		}
	default:
		return nil, p.errorAt(tok, "%s cannot be folded", iterable)
	}

	iterator, err := p.plainName("fold iterator")
	if err != nil {
		return nil, err
	}
	body, err := p.instruction()
	if err != nil {
		return nil, err
	}
	fold := Fold{Iterable: iterable, Iterator: iterator, Body: body}
	if p.peek().Type == LPAREN {
		if fold.Last, err = p.instruction(); err != nil {
			return nil, err
		}
	}
	return fold, nil
}

func (p *parser) nextInstr() (Instruction, error) {
	iterator, err := p.plainName("fold iterator")
	if err != nil {
		return nil, err
	}
	return Next{Iterator: iterator}, nil
}

func (p *parser) newInstr() (Instruction, error) {
	tok := p.peek()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case Stream, StreamMap:
	case Scalar:
		if !v.Lambda.IsEmpty() {
			return nil, p.errorAt(tok, "new expects a variable name, found %s", v)
		}
	case CanonStream:
		if !v.Lambda.IsEmpty() {
			return nil, p.errorAt(tok, "new expects a variable name, found %s", v)
		}
	case CanonMap:
		if !v.Lambda.IsEmpty() {
			return nil, p.errorAt(tok, "new expects a variable name, found %s", v)
		}
	default:
		return nil, p.errorAt(tok, "new expects a variable, found %s", v)
	}
	body, err := p.instruction()
	if err != nil {
		return nil, err
	}
	return New{Variable: v, Body: body}, nil
}

func (p *parser) ap() (Instruction, error) {
	if p.peek().Type == LPAREN {
		p.next()
		key, err := p.value()
		if err != nil {
			return nil, err
		}
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RPAREN, "')' closing the key-value pair"); err != nil {
			return nil, err
		}
		tok := p.peek()
		dst, err := p.value()
		if err != nil {
			return nil, err
		}
		m, ok := dst.(StreamMap)
		if !ok {
			return nil, p.errorAt(tok, "a key-value pair can only be appended to a stream map, found %s", dst)
		}
		return ApMap{Key: key, Value: val, Map: m}, nil
	}

	arg, err := p.value()
	if err != nil {
		return nil, err
	}
	if _, ok := arg.(StreamMap); ok {
		return nil, p.errorAt(p.toks[p.i-1], "a stream map cannot be an ap argument")
	}
	tok := p.peek()
	dst, err := p.output("ap result")
	if err != nil {
		return nil, err
	}
	if dst == nil {
		return nil, p.errorAt(tok, "ap requires a result variable")
	}
	return Ap{Arg: arg, Result: dst}, nil
}

func (p *parser) call() (Instruction, error) {
	peer, err := p.value()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(LPAREN, "'(' starting the service and function"); err != nil {
		return nil, err
	}
	service, err := p.value()
	if err != nil {
		return nil, err
	}
	function, err := p.value()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RPAREN, "')' closing the service and function"); err != nil {
		return nil, err
	}

	if _, err := p.need(LSQUARE, "'[' starting the call arguments"); err != nil {
		return nil, err
	}
	var args []Value
	for p.peek().Type != RSQUARE {
		arg, err := p.value()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.next()

	out, err := p.output("call result")
	if err != nil {
		return nil, err
	}
	return Call{
		Triplet: Triplet{Peer: peer, Service: service, Function: function},
		Args:    args,
		Output:  out,
	}, nil
}

// output parses an optional scalar or stream result.
func (p *parser) output(what string) (Value, error) {
	tok := p.peek()
	if tok.Type != SYMBOL {
		return nil, nil
	}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case Stream:
		return v, nil
	case Scalar:
		if v.Lambda.IsEmpty() {
			return v, nil
		}
	}
	return nil, p.errorAt(tok, "%s must be a scalar or a stream, found %s", what, v)
}

func (p *parser) canon() (Instruction, error) {
	peer, err := p.value()
	if err != nil {
		return nil, err
	}
	srcTok := p.peek()
	src, err := p.value()
	if err != nil {
		return nil, err
	}
	dstTok := p.peek()
	dst, err := p.value()
	if err != nil {
		return nil, err
	}

	switch src.(type) {
	case Stream:
		if c, ok := dst.(CanonStream); !ok || !c.Lambda.IsEmpty() {
			return nil, p.errorAt(dstTok, "a stream canonicalizes into a #canon, found %s", dst)
		}
	case StreamMap:
		if c, ok := dst.(CanonMap); !ok || !c.Lambda.IsEmpty() {
			return nil, p.errorAt(dstTok, "a stream map canonicalizes into a #%%canon, found %s", dst)
		}
	default:
		return nil, p.errorAt(srcTok, "canon expects a stream or a stream map, found %s", src)
	}
	return Canon{Peer: peer, Source: src, Result: dst}, nil
}

func (p *parser) fail() (Instruction, error) {
	tok := p.peek()
	if tok.Type == NUMBER {
		p.next()
		code, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.errorAt(tok, "fail code must be an integer, found %s", tok.Lexeme)
		}
		msg, err := p.need(STRING, "fail message")
		if err != nil {
			return nil, err
		}
		return Fail{Kind: FailLiteral, Code: code, Message: msg.Literal}, nil
	}

	v, err := p.value()
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case Scalar:
		return Fail{Kind: FailScalar, Scalar: v}, nil
	case LastError:
		if v.Lambda.IsEmpty() {
			return Fail{Kind: FailLastError}, nil
		}
	case ErrorObject:
		if v.Lambda.IsEmpty() {
			return Fail{Kind: FailError}, nil
		}
	}
	return nil, p.errorAt(tok, "fail expects a scalar, %%last_error%%, :error: or a code and a message, found %s", v)
}

func (p *parser) plainName(what string) (string, error) {
	tok, err := p.need(SYMBOL, what)
	if err != nil {
		return "", err
	}
	name, rest := splitName(tok.Lexeme)
	if name == "" || rest != "" || !isNameStart(tok.Lexeme[0]) {
		return "", p.errorAt(tok, "invalid %s %q", what, tok.Lexeme)
	}
	return name, nil
}

// value parses an operand.
func (p *parser) value() (Value, error) {
	tok := p.next()
	switch tok.Type {
	case STRING:
		return Literal{Value: ir.String(tok.Literal)}, nil
	case NUMBER:
		return p.number(tok)
	case LSQUARE:
		var items []Value
		for p.peek().Type != RSQUARE {
			item, err := p.value()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		p.next()
		return ArrayLiteral{Items: items}, nil
	case SYMBOL:
		v, err := parseOperand(tok.Lexeme)
		if err != nil {
			return nil, p.errorAt(tok, "%s", err)
		}
		return v, nil
	default:
		return nil, p.errorAt(tok, "expected a value, found %s", describe(tok))
	}
}

func (p *parser) number(tok Token) (Value, error) {
	if i, err := strconv.ParseInt(tok.Lexeme, 10, 64); err == nil {
		return Literal{Value: ir.Int(i)}, nil
	}
	f, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil || math.IsInf(f, 0) {
		return nil, p.errorAt(tok, "invalid number %s", tok.Lexeme)
	}
	return Literal{Value: ir.Float(f)}, nil
}

// parseOperand classifies a symbol by its prefix.
func parseOperand(text string) (Value, error) {
	switch text {
	case "true":
		return Literal{Value: ir.Bool(true)}, nil
	case "false":
		return Literal{Value: ir.Bool(false)}, nil
	case "null":
		return Literal{Value: ir.Null{}}, nil
	case "%init_peer_id%":
		return InitPeerID{}, nil
	case "%timestamp%":
		return Timestamp{}, nil
	case "%ttl%":
		return TTL{}, nil
	}

	switch {
	case strings.HasPrefix(text, "%last_error%"):
		l, err := parseLambda(strings.TrimPrefix(text, "%last_error%"))
		return LastError{Lambda: l}, err
	case strings.HasPrefix(text, ":error:"):
		l, err := parseLambda(strings.TrimPrefix(text, ":error:"))
		return ErrorObject{Lambda: l}, err
	case strings.HasPrefix(text, "#%"):
		name, l, err := nameAndLambda(text[2:])
		return CanonMap{Name: name, Lambda: l}, err
	case strings.HasPrefix(text, "#"):
		name, l, err := nameAndLambda(text[1:])
		return CanonStream{Name: name, Lambda: l}, err
	case strings.HasPrefix(text, "$"):
		name, l, err := nameAndLambda(text[1:])
		if err == nil && !l.IsEmpty() {
			err = fmt.Errorf("a lambda cannot be applied to stream $%s; canonicalize it first", name)
		}
		return Stream{Name: name}, err
	case strings.HasPrefix(text, "%"):
		name, l, err := nameAndLambda(text[1:])
		if err == nil && !l.IsEmpty() {
			err = fmt.Errorf("a lambda cannot be applied to stream map %%%s; canonicalize it first", name)
		}
		return StreamMap{Name: name}, err
	}

	name, l, err := nameAndLambda(text)
	return Scalar{Name: name, Lambda: l}, err
}

func nameAndLambda(text string) (string, Lambda, error) {
	name, rest := splitName(text)
	if name == "" || !isNameStart(name[0]) {
		return "", Lambda{}, fmt.Errorf("invalid variable name in %q", text)
	}
	l, err := parseLambda(rest)
	return name, l, err
}

func splitName(text string) (name, rest string) {
	i := 0
	for i < len(text) && isNameByte(text[i]) {
		i++
	}
	return text[:i], text[i:]
}

// parseLambda parses the text following a variable name.
func parseLambda(text string) (Lambda, error) {
	var l Lambda
	if text == "" {
		return l, nil
	}
	if strings.HasSuffix(text, "!") {
		l.Flatten = true
		text = strings.TrimSuffix(text, "!")
	}
	if text == ".length" {
		l.Length = true
		return l, nil
	}
	if !strings.HasPrefix(text, ".$") {
		return Lambda{}, fmt.Errorf("invalid lambda %q", text)
	}

	rest := text[2:]
	if rest == "" {
		return Lambda{}, fmt.Errorf("empty value path in lambda %q", text)
	}
	for rest != "" {
		if rest[0] != '.' {
			return Lambda{}, fmt.Errorf("invalid lambda %q: accessors are separated by '.'", text)
		}
		rest = rest[1:]

		if strings.HasPrefix(rest, "[") {
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return Lambda{}, fmt.Errorf("invalid lambda %q: unclosed '['", text)
			}
			inner := rest[1:end]
			rest = rest[end+1:]
			acc, err := indexAccessor(inner)
			if err != nil {
				return Lambda{}, fmt.Errorf("invalid lambda %q: %w", text, err)
			}
			l.Path = append(l.Path, acc)
			continue
		}

		field, tail := splitName(rest)
		if field == "" {
			return Lambda{}, fmt.Errorf("invalid lambda %q: empty field name", text)
		}
		l.Path = append(l.Path, FieldByName{Name: field})
		rest = tail
	}
	return l, nil
}

func indexAccessor(inner string) (Accessor, error) {
	if inner != "" && isDigit(inner[0]) {
		idx, err := strconv.ParseUint(inner, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("array index %s does not fit u32", inner)
		}
		return ArrayIndex{Index: uint32(idx)}, nil
	}
	name, rest := splitName(inner)
	if name == "" || rest != "" || !isNameStart(name[0]) {
		return nil, fmt.Errorf("invalid accessor [%s]", inner)
	}
	return FieldByScalar{Name: name}, nil
}

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNameByte(ch byte) bool {
	return isNameStart(ch) || isDigit(ch) || ch == '-'
}
