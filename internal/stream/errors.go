package stream

import (
	"errors"
	"fmt"

	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// SizeLimitError is returned when a write would exceed the stream size limit.
type SizeLimitError struct {
	Limit int
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("stream size limit of %d values exceeded", e.Limit)
}

// CompactificationError wraps a failure to rewrite a generation in the trace.
type CompactificationError struct {
	Pos        trace.Pos
	Generation uint32
	Err        error
}

func (e *CompactificationError) Error() string {
	return fmt.Sprintf("rewrite generation at trace position %d to %d: %v", e.Pos, e.Generation, e.Err)
}

func (e *CompactificationError) Unwrap() error {
	return e.Err
}

// UnsupportedMapKeyError is returned when a stream map key is neither a
// string nor an integer.
type UnsupportedMapKeyError struct {
	TypeName string
}

func (e *UnsupportedMapKeyError) Error() string {
	return fmt.Sprintf("unsupported map key type %s: keys must be strings or integers", e.TypeName)
}

// IsSizeLimitError returns true if err is or wraps a *SizeLimitError.
func IsSizeLimitError(err error) bool {
	var se *SizeLimitError
	return errors.As(err, &se)
}
