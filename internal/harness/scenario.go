package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
	"github.com/fluencelabs/aquavm-sub001/internal/testutil"
)

// Scenario describes a network of peers running one particle.
// The particle starts on the Init peer with empty data and is routed by the
// next peers every turn reports, until no peer has anything left to do.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Init is the name of the peer the particle starts on.
	Init string `yaml:"init"`

	// Peers lists every peer of the network.
	Peers []PeerSpec `yaml:"peers"`

	// Script is the AIR script. "{{name}}" is replaced by the peer id of
	// the peer called name.
	Script string `yaml:"script"`

	// ParticleID salts every signature. If empty, a fixed test id is used
	// so golden traces stay stable.
	ParticleID string `yaml:"particle_id,omitempty"`

	// TTLMs is the particle lifetime. Zero disables it.
	TTLMs uint32 `yaml:"ttl_ms,omitempty"`

	// HopDelayMs advances the network clock before every turn.
	HopDelayMs int64 `yaml:"hop_delay_ms,omitempty"`

	// MaxHops bounds the number of interpreter turns. Default: 256.
	MaxHops int `yaml:"max_hops,omitempty"`

	// Assertions validate the network after the particle settled.
	Assertions []Assertion `yaml:"assertions"`
}

// PeerSpec is one peer of a scenario network.
type PeerSpec struct {
	Name string `yaml:"name"`

	// KeyFormat is "ed25519" (default) or "secp256k1".
	KeyFormat string `yaml:"key_format,omitempty"`

	Services []ServiceSpec `yaml:"services,omitempty"`

	// Tamper makes the peer corrupt a value in the data it sends on,
	// after signing it.
	Tamper bool `yaml:"tamper,omitempty"`
}

// ServiceSpec is a canned local service.
type ServiceSpec struct {
	Service string `yaml:"service"`

	// Function restricts the service to one function. Empty matches all.
	Function string `yaml:"function,omitempty"`

	// Result is returned by every call.
	Result any `yaml:"result,omitempty"`

	// RetCode makes the call fail with Result.
	RetCode int32 `yaml:"ret_code,omitempty"`

	// Echo returns the call arguments instead of Result.
	Echo bool `yaml:"echo,omitempty"`

	// StopAt switches to returning Stop from the StopAt-th call on.
	StopAt int `yaml:"stop_at,omitempty"`
	Stop   any `yaml:"stop,omitempty"`
}

// Assertion validates the settled network.
type Assertion struct {
	// Type specifies the assertion type:
	// - "ret_code": the last turn on Peer returned Code
	// - "call_count": Peer served Service/Function exactly Count times
	// - "call_args": the calls Peer served for Service/Function had exactly Args, in order
	// - "visit_order": the particle first reached Peers in this order
	// - "trace_length": the data Peer holds has a trace of Length states
	Type string `yaml:"type"`

	Peer     string `yaml:"peer,omitempty"`
	Service  string `yaml:"service,omitempty"`
	Function string `yaml:"function,omitempty"`

	// Code is the expected return code (used by ret_code).
	Code int64 `yaml:"code,omitempty"`

	// Message must be contained in the error message (used by ret_code).
	Message string `yaml:"message,omitempty"`

	// Count is the expected number of calls (used by call_count).
	Count int `yaml:"count,omitempty"`

	// Args are the expected argument lists (used by call_args).
	Args [][]any `yaml:"args,omitempty"`

	// Peers is the expected visit order (used by visit_order).
	Peers []string `yaml:"peers,omitempty"`

	// Length is the expected trace length (used by trace_length).
	Length int `yaml:"length,omitempty"`
}

// Assertion type constants.
const (
	AssertRetCode     = "ret_code"
	AssertCallCount   = "call_count"
	AssertCallArgs    = "call_args"
	AssertVisitOrder  = "visit_order"
	AssertTraceLength = "trace_length"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if strings.TrimSpace(s.Script) == "" {
		return fmt.Errorf("script is required")
	}

	if len(s.Peers) == 0 {
		return fmt.Errorf("peers list is required and must be non-empty")
	}

	if s.MaxHops < 0 {
		return fmt.Errorf("max_hops must be non-negative")
	}

	names := make(map[string]bool, len(s.Peers))
	for i, p := range s.Peers {
		if p.Name == "" {
			return fmt.Errorf("peers[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("peers[%d]: duplicate peer %q", i, p.Name)
		}
		names[p.Name] = true

		if _, err := keyFormat(p.KeyFormat); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}
		for j, svc := range p.Services {
			if err := validateService(svc); err != nil {
				return fmt.Errorf("peers[%d].services[%d]: %w", i, j, err)
			}
		}
	}

	if s.Init == "" {
		return fmt.Errorf("init is required")
	}
	if !names[s.Init] {
		return fmt.Errorf("init peer %q is not declared", s.Init)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}

	return nil
}

func validateService(s ServiceSpec) error {
	if s.Service == "" {
		return fmt.Errorf("service is required")
	}
	if s.Echo && (s.Result != nil || s.StopAt != 0) {
		return fmt.Errorf("echo cannot be combined with result or stop_at")
	}
	if s.StopAt < 0 {
		return fmt.Errorf("stop_at must be non-negative")
	}
	if s.StopAt > 0 && s.RetCode != 0 {
		return fmt.Errorf("stop_at cannot be combined with ret_code")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, peers map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needPeer := func() error {
		if a.Peer == "" {
			return fmt.Errorf("assertions[%d]: peer is required for %s", index, a.Type)
		}
		if !peers[a.Peer] {
			return fmt.Errorf("assertions[%d]: unknown peer %q", index, a.Peer)
		}
		return nil
	}

	switch a.Type {
	case AssertRetCode, AssertTraceLength:
		if err := needPeer(); err != nil {
			return err
		}
		if a.Length < 0 {
			return fmt.Errorf("assertions[%d]: length must be non-negative", index)
		}
	case AssertCallCount, AssertCallArgs:
		if err := needPeer(); err != nil {
			return err
		}
		if a.Service == "" {
			return fmt.Errorf("assertions[%d]: service is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertVisitOrder:
		if len(a.Peers) == 0 {
			return fmt.Errorf("assertions[%d]: peers list is required for visit_order", index)
		}
		for _, p := range a.Peers {
			if !peers[p] {
				return fmt.Errorf("assertions[%d]: unknown peer %q", index, p)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func keyFormat(name string) (signature.KeyFormat, error) {
	if name == "" {
		return signature.Ed25519, nil
	}
	return signature.ParseKeyFormat(name)
}

// service builds the canned service s describes.
func (s ServiceSpec) service() (testutil.Service, error) {
	result, err := ir.FromGo(s.Result)
	if err != nil {
		return nil, fmt.Errorf("service %s result: %w", s.Service, err)
	}

	switch {
	case s.Echo:
		return testutil.Echo(), nil
	case s.StopAt > 0:
		stop, err := ir.FromGo(s.Stop)
		if err != nil {
			return nil, fmt.Errorf("service %s stop: %w", s.Service, err)
		}
		return testutil.CountingStopper(s.StopAt, stop, result), nil
	case s.RetCode != 0:
		code := s.RetCode
		return func(execution.CallRequest) execution.CallResult {
			return execution.CallResult{RetCode: code, Result: result}
		}, nil
	default:
		return testutil.Value(result), nil
	}
}
