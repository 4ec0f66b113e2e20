package execution

import (
	"encoding/json"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// CallResult is the host's answer to a call request.
type CallResult struct {
	RetCode int32    `json:"ret_code"`
	Result  ir.Value `json:"result"`
}

// UnmarshalJSON decodes the result keeping integer precision.
func (r *CallResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		RetCode int32           `json:"ret_code"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.RetCode = raw.RetCode
	r.Result = ir.Null{}
	if len(raw.Result) == 0 {
		return nil
	}
	v, err := ir.UnmarshalValue(raw.Result)
	if err != nil {
		return err
	}
	r.Result = v
	return nil
}

// CallRequest asks the host to invoke a local service.
type CallRequest struct {
	ServiceID    string           `json:"service_id"`
	FunctionName string           `json:"function_name"`
	Arguments    []ir.Value       `json:"arguments"`
	Tetraplets   [][]ir.Tetraplet `json:"tetraplets"`
}

// MarshalJSON writes the arguments as one canonical array.
func (r CallRequest) MarshalJSON() ([]byte, error) {
	type wire struct {
		ServiceID    string           `json:"service_id"`
		FunctionName string           `json:"function_name"`
		Arguments    ir.Array         `json:"arguments"`
		Tetraplets   [][]ir.Tetraplet `json:"tetraplets"`
	}
	args := ir.Array(r.Arguments)
	if args == nil {
		args = ir.Array{}
	}
	return json.Marshal(wire{
		ServiceID:    r.ServiceID,
		FunctionName: r.FunctionName,
		Arguments:    args,
		Tetraplets:   r.Tetraplets,
	})
}

// UnmarshalJSON decodes the arguments as IR values.
func (r *CallRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		ServiceID    string           `json:"service_id"`
		FunctionName string           `json:"function_name"`
		Arguments    ir.Array         `json:"arguments"`
		Tetraplets   [][]ir.Tetraplet `json:"tetraplets"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = CallRequest{
		ServiceID:    raw.ServiceID,
		FunctionName: raw.FunctionName,
		Arguments:    []ir.Value(raw.Arguments),
		Tetraplets:   raw.Tetraplets,
	}
	return nil
}
