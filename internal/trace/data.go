package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/mod/semver"

	"github.com/fluencelabs/aquavm-sub001/internal/cid"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
)

// Data is the persisted state a peer sends along with a particle.
type Data struct {
	Version            string          `json:"version"`
	InterpreterVersion string          `json:"interpreter_version"`
	Trace              Trace           `json:"trace"`
	CIDInfo            *cid.Info       `json:"cid_info"`
	Signatures         signature.Store `json:"signatures"`
	LastCallRequestID  uint32          `json:"last_call_request_id"`
}

// NewData returns empty data stamped with the current versions.
func NewData() *Data {
	return &Data{
		Version:            ir.DataVersion,
		InterpreterVersion: ir.InterpreterVersion,
		Trace:              Trace{},
		CIDInfo:            cid.NewInfo(),
		Signatures:         signature.Store{},
	}
}

// VersionError reports data written by an incompatible format version.
type VersionError struct {
	Got      string
	Expected string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("data version %q is not compatible with supported version %q", e.Got, e.Expected)
}

// IsVersionError returns true if err is or wraps a *VersionError.
func IsVersionError(err error) bool {
	var ve *VersionError
	return errors.As(err, &ve)
}

// DecodeData parses persisted data. Empty input decodes to NewData().
//
// The version is checked before anything else so a newer format is reported
// as a version mismatch rather than as a decoding failure.
func DecodeData(raw []byte) (*Data, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return NewData(), nil
	}

	var header struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if err := CheckVersion(header.Version); err != nil {
		return nil, err
	}

	data := NewData()
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if data.CIDInfo == nil {
		data.CIDInfo = cid.NewInfo()
	}
	if data.Signatures == nil {
		data.Signatures = signature.Store{}
	}
	if data.Trace == nil {
		data.Trace = Trace{}
	}
	return data, nil
}

// Encode serializes data.
func (d *Data) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// CheckVersion accepts versions whose major and minor match ir.DataVersion.
func CheckVersion(version string) error {
	got := "v" + version
	expected := "v" + ir.DataVersion
	if !semver.IsValid(got) || semver.MajorMinor(got) != semver.MajorMinor(expected) {
		return &VersionError{Got: version, Expected: ir.DataVersion}
	}
	return nil
}
