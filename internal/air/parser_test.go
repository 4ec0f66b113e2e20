package air

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

func str(s string) Literal { return Literal{Value: ir.String(s)} }

func TestParseLinearSeq(t *testing.T) {
	root, err := Parse(`(seq (call "p1" ("s" "f") [] x) (call "p2" ("s" "f") [x]))`)
	require.NoError(t, err)

	expected := Seq{
		Left: Call{
			Triplet: Triplet{Peer: str("p1"), Service: str("s"), Function: str("f")},
			Output:  Scalar{Name: "x"},
		},
		Right: Call{
			Triplet: Triplet{Peer: str("p2"), Service: str("s"), Function: str("f")},
			Args:    []Value{Scalar{Name: "x"}},
		},
	}
	assert.Equal(t, expected, root)
}

func TestParseInstructions(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected Instruction
	}{
		{
			name:     "null",
			src:      "(null)",
			expected: Null{},
		},
		{
			name: "fold with last instruction",
			src:  "(fold $s i (next i) (null))",
			expected: Fold{
				Iterable: Stream{Name: "s"},
				Iterator: "i",
				Body:     Next{Iterator: "i"},
				Last:     Null{},
			},
		},
		{
			name: "fold over empty array",
			src:  "(fold [] i (null))",
			expected: Fold{
				Iterable: ArrayLiteral{},
				Iterator: "i",
				Body:     Null{},
			},
		},
		{
			name: "ap into stream",
			src:  `(ap "v" $s)`,
			expected: Ap{
				Arg:    str("v"),
				Result: Stream{Name: "s"},
			},
		},
		{
			name: "ap into stream map",
			src:  `(ap ("k" 1) %m)`,
			expected: ApMap{
				Key:   str("k"),
				Value: Literal{Value: ir.Int(1)},
				Map:   StreamMap{Name: "m"},
			},
		},
		{
			name: "canon stream map",
			src:  `(canon %init_peer_id% %m #%cm)`,
			expected: Canon{
				Peer:   InitPeerID{},
				Source: StreamMap{Name: "m"},
				Result: CanonMap{Name: "cm"},
			},
		},
		{
			name: "new stream",
			src:  "(new $s (null))",
			expected: New{
				Variable: Stream{Name: "s"},
				Body:     Null{},
			},
		},
		{
			name: "mismatch",
			src:  `(mismatch %timestamp% 1.5 (null))`,
			expected: Mismatch{
				Left:  Timestamp{},
				Right: Literal{Value: ir.Float(1.5)},
				Body:  Null{},
			},
		},
		{
			name:     "fail literal",
			src:      `(fail -1 "boom")`,
			expected: Fail{Kind: FailLiteral, Code: -1, Message: "boom"},
		},
		{
			name:     "fail last error",
			src:      "(fail %last_error%)",
			expected: Fail{Kind: FailLastError},
		},
		{
			name:     "fail error object",
			src:      "(fail :error:)",
			expected: Fail{Kind: FailError},
		},
		{
			name: "call into stream with array argument",
			src:  `(call %init_peer_id% ("s" "f") [[1 true null] %ttl%] $out)`,
			expected: Call{
				Triplet: Triplet{Peer: InitPeerID{}, Service: str("s"), Function: str("f")},
				Args: []Value{
					ArrayLiteral{Items: []Value{
						Literal{Value: ir.Int(1)},
						Literal{Value: ir.Bool(true)},
						Literal{Value: ir.Null{}},
					}},
					TTL{},
				},
				Output: Stream{Name: "out"},
			},
		},
		{
			name: "comments are skipped",
			src:  "; leading\n(seq (null) ; inline\n (null))",
			expected: Seq{
				Left:  Null{},
				Right: Null{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnchecked(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseOperand(t *testing.T) {
	tests := []struct {
		text     string
		expected Value
	}{
		{"x", Scalar{Name: "x"}},
		{"x.$.a.[0]", Scalar{Name: "x", Lambda: Lambda{Path: []Accessor{FieldByName{Name: "a"}, ArrayIndex{Index: 0}}}}},
		{"x.$.[i]", Scalar{Name: "x", Lambda: Lambda{Path: []Accessor{FieldByScalar{Name: "i"}}}}},
		{"x.length", Scalar{Name: "x", Lambda: Lambda{Length: true}}},
		{"x.$.a!", Scalar{Name: "x", Lambda: Lambda{Path: []Accessor{FieldByName{Name: "a"}}, Flatten: true}}},
		{"some-name_2", Scalar{Name: "some-name_2"}},
		{"%last_error%.$.message", LastError{Lambda: Lambda{Path: []Accessor{FieldByName{Name: "message"}}}}},
		{":error:.$.error_code", ErrorObject{Lambda: Lambda{Path: []Accessor{FieldByName{Name: "error_code"}}}}},
		{"#c.$.[1]", CanonStream{Name: "c", Lambda: Lambda{Path: []Accessor{ArrayIndex{Index: 1}}}}},
		{"#c.length", CanonStream{Name: "c", Lambda: Lambda{Length: true}}},
		{"#%cm.$.key", CanonMap{Name: "cm", Lambda: Lambda{Path: []Accessor{FieldByName{Name: "key"}}}}},
		{"$s", Stream{Name: "s"}},
		{"%m", StreamMap{Name: "m"}},
		{"%init_peer_id%", InitPeerID{}},
		{"%timestamp%", Timestamp{}},
		{"%ttl%", TTL{}},
		{"true", Literal{Value: ir.Bool(true)}},
		{"null", Literal{Value: ir.Null{}}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := parseOperand(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.text, got.String())
		})
	}
}

func TestParseOperandErrors(t *testing.T) {
	for _, text := range []string{
		"$s.$.a",
		"%m.length",
		"x.$",
		"x.foo",
		"x.$..a",
		"x.$.[4294967296]",
		"x.$.[a.b]",
		"9x",
		"%init_peer_id%.$.a",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := parseOperand(text)
			assert.Error(t, err)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		col  int
	}{
		{"unknown instruction", "(seq\n  (nul) (null))", 2, 4},
		{"missing right branch", "(seq (null))", 1, 12},
		{"trailing instruction", "(null) (null)", 1, 8},
		{"unterminated string", `(call "p`, 1, 7},
		{"unexpected character", "(null) {", 1, 8},
		{"canon into wrong kind", `(canon "p" $s #%cm)`, 1, 15},
		{"ap pair into stream", `(ap ("k" "v") $s)`, 1, 15},
		{"call output with lambda", `(call "p" ("s" "f") [] x.$.a)`, 1, 24},
		{"fold over literal", `(fold "abc" i (null))`, 1, 7},
		{"fail with string", `(fail "boom")`, 1, 7},
		{"empty script", "", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line, perr.Error())
			assert.Equal(t, tt.col, perr.Col, perr.Error())
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	scripts := []string{
		`(seq (call "p1" ("s" "f") [] x) (call "p2" ("s" "f") [x]))`,
		`(xor (call "p" ("s" "f") []) (call %init_peer_id% ("e" "h") [:error:.$.message]))`,
		`(new $s (seq (ap "a" $s) (seq (canon "p" $s #c) (fold #c i (seq (call "p" ("s" "f") [i #c.length]) (next i))))))`,
		`(par (ap ("k" -3) %m) (seq (canon "p" %m #%cm) (ap #%cm.$.k x)))`,
		`(seq (call "p" ("s" "f") [] x) (match x.$.a.[0] "v" (fail 7 "quote \" me")))`,
		`(fold $s i (null) (fail %last_error%))`,
	}
	for _, src := range scripts {
		t.Run(src, func(t *testing.T) {
			root, err := Parse(src)
			require.NoError(t, err)
			assert.Equal(t, src, root.String())

			again, err := Parse(root.String())
			require.NoError(t, err)
			assert.Equal(t, root, again)
		})
	}
}
