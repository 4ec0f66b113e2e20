package air

import (
	"fmt"
	"strconv"
)

// TokenType is the kind of a lexical token.
type TokenType int

const (
	EOF TokenType = iota
	LPAREN
	RPAREN
	LSQUARE
	RSQUARE
	STRING
	NUMBER
	// SYMBOL covers keywords, variables with their lambdas and special forms.
	SYMBOL
)

func (t TokenType) String() string {
	switch t {
	case EOF:
		return "end of script"
	case LPAREN:
		return "'('"
	case RPAREN:
		return "')'"
	case LSQUARE:
		return "'['"
	case RSQUARE:
		return "']'"
	case STRING:
		return "string"
	case NUMBER:
		return "number"
	default:
		return "symbol"
	}
}

// Token is a lexical token. Literal holds the decoded text of strings.
type Token struct {
	Type    TokenType
	Lexeme  string
	Literal string
	Line    int
	Col     int
}

// ParseError is a lexical or syntax error at a script position.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("air: line %d, col %d: %s", e.Line, e.Col, e.Msg)
}

// Lexer scans an AIR script into tokens.
type Lexer struct {
	src   string
	start int
	cur   int
	line  int
	col   int

	tokLine int
	tokCol  int
}

// NewLexer creates a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) errorf(format string, args ...any) error {
	return &ParseError{Line: l.tokLine, Col: l.tokCol, Msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) token(tt TokenType) Token {
	return Token{Type: tt, Lexeme: l.src[l.start:l.cur], Line: l.tokLine, Col: l.tokCol}
}

// Tokens scans the whole script. The last token is always EOF.
func (l *Lexer) Tokens() ([]Token, error) {
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks, nil
		}
	}
}

// Next scans one token.
func (l *Lexer) Next() (Token, error) {
	l.skipSpaceAndComments()
	l.start = l.cur
	l.tokLine, l.tokCol = l.line, l.col
	if l.isAtEnd() {
		return l.token(EOF), nil
	}

	switch ch := l.advance(); {
	case ch == '(':
		return l.token(LPAREN), nil
	case ch == ')':
		return l.token(RPAREN), nil
	case ch == '[':
		return l.token(LSQUARE), nil
	case ch == ']':
		return l.token(RSQUARE), nil
	case ch == '"':
		return l.scanString()
	case isDigit(ch) || (ch == '-' && isDigit(l.peek())):
		return l.scanNumber(), nil
	case isSymbolByte(ch):
		return l.scanSymbol()
	default:
		return Token{}, l.errorf("unexpected character %q", ch)
	}
}

// skipSpaceAndComments skips whitespace and ';' line comments.
func (l *Lexer) skipSpaceAndComments() {
	for !l.isAtEnd() {
		switch l.peek() {
		case ' ', '\t', '\r', '\n':
			l.advance()
		case ';':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) scanString() (Token, error) {
	for {
		if l.isAtEnd() {
			return Token{}, l.errorf("unterminated string")
		}
		ch := l.advance()
		if ch == '\\' {
			if l.isAtEnd() {
				return Token{}, l.errorf("unterminated string")
			}
			l.advance()
			continue
		}
		if ch == '"' {
			break
		}
	}
	tok := l.token(STRING)
	text, err := strconv.Unquote(tok.Lexeme)
	if err != nil {
		return Token{}, l.errorf("invalid string literal %s", tok.Lexeme)
	}
	tok.Literal = text
	return tok, nil
}

func (l *Lexer) scanNumber() Token {
	for !l.isAtEnd() {
		ch := l.peek()
		if !isDigit(ch) && ch != '.' && ch != 'e' && ch != 'E' && ch != '+' && ch != '-' {
			break
		}
		l.advance()
	}
	return l.token(NUMBER)
}

// scanSymbol reads a symbol. A '[' directly after '.' opens an accessor
// that runs to the matching ']'.
func (l *Lexer) scanSymbol() (Token, error) {
	for !l.isAtEnd() {
		ch := l.peek()
		if ch == '[' && l.src[l.cur-1] == '.' {
			for !l.isAtEnd() && l.peek() != ']' {
				l.advance()
			}
			if l.isAtEnd() {
				return Token{}, l.errorf("unterminated accessor in %s", l.src[l.start:l.cur])
			}
			l.advance()
			continue
		}
		if !isSymbolByte(ch) {
			break
		}
		l.advance()
	}
	return l.token(SYMBOL), nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isSymbolByte(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', isDigit(ch):
		return true
	}
	switch ch {
	case '_', '-', '.', '$', '%', '#', ':', '!':
		return true
	}
	return false
}
