package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

func TestCatchableErrorObject(t *testing.T) {
	ce := newCatchable(MatchValuesNotEqual, "values %d and %d differ", 1, 2)
	ce.Instruction = "(match 1 2 (null))"
	ce.PeerID = "peer"

	assert.Equal(t, int64(10014), ce.ReturnCode())
	assert.Equal(t, ir.Object{
		"error_code":  ir.Int(10014),
		"message":     ir.String("values 1 and 2 differ"),
		"instruction": ir.String("(match 1 2 (null))"),
		"peer_id":     ir.String("peer"),
	}, ce.Object())
}

func TestLocalServiceErrorUsesServiceCode(t *testing.T) {
	ce := localServiceError(3, ir.Object{"reason": ir.String("down")}, "p")

	assert.Equal(t, LocalServiceError, ce.Kind)
	assert.Equal(t, int64(3), ce.ErrorCode)
	assert.Equal(t, int64(10001), ce.ReturnCode())
	assert.Equal(t, `Local service error, ret_code is 3, error message is '{"reason":"down"}'`, ce.Message)
	assert.Equal(t, "p", ce.PeerID)
}

func TestNoErrorObject(t *testing.T) {
	assert.Equal(t, ir.Object{
		"error_code":  ir.Int(0),
		"message":     ir.String(""),
		"instruction": ir.String(""),
		"peer_id":     ir.String(""),
	}, NoErrorObject())
}

func TestUncatchableError(t *testing.T) {
	cause := errors.New("boom")
	err := uncatchable(TtlExceeded, air.Null{}, cause)

	assert.Equal(t, int64(20105), err.ReturnCode())
	assert.Equal(t, "TtlExceeded: boom (instruction=(null))", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("turn failed: %w", err)
	assert.True(t, IsUncatchable(wrapped))
	assert.True(t, IsUncatchableKind(wrapped, TtlExceeded))
	assert.False(t, IsUncatchableKind(wrapped, CidError))
	assert.False(t, IsCatchable(wrapped))
}

func TestKindNames(t *testing.T) {
	assert.Equal(t, "InvalidLastErrorObjectError", InvalidLastErrorObject.String())
	assert.Equal(t, "CatchableKind(99)", CatchableKind(99).String())
	assert.Equal(t, "GenerationCompactificationError", GenerationCompactification.String())
	assert.Equal(t, "UncatchableKind(0)", UncatchableKind(0).String())
}

func TestCallResultJSON(t *testing.T) {
	var r CallResult
	require.NoError(t, json.Unmarshal([]byte(`{"ret_code": 0, "result": {"n": 9007199254740993}}`), &r))
	assert.Equal(t, ir.Object{"n": ir.Int(9007199254740993)}, r.Result)

	require.NoError(t, json.Unmarshal([]byte(`{"ret_code": 2}`), &r))
	assert.Equal(t, int32(2), r.RetCode)
	assert.Equal(t, ir.Null{}, r.Result)
}

func TestCallRequestJSON(t *testing.T) {
	req := CallRequest{
		ServiceID:    "s",
		FunctionName: "f",
		Arguments:    []ir.Value{ir.String("a"), ir.Object{"k": ir.Int(1)}},
		Tetraplets:   [][]ir.Tetraplet{{{PeerPK: "p"}}, {}},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var back CallRequest
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, req, back)
}
