package testutil

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/fluencelabs/aquavm-sub001/internal/execution"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// Service answers one call request.
type Service func(req execution.CallRequest) execution.CallResult

// ServiceNotFoundCode is returned for calls no service is registered for.
const ServiceNotFoundCode = 404

// Host is a canned service host. Services are looked up by
// "service/function" first, then by "service" alone.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Host struct {
	mu       sync.Mutex
	services map[string]Service
	calls    []execution.CallRequest
}

// NewHost creates a host with no services.
func NewHost() *Host {
	return &Host{services: make(map[string]Service)}
}

// Register installs s for serviceID and function. An empty function
// matches every function of the service.
func (h *Host) Register(serviceID, function string, s Service) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[serviceKey(serviceID, function)] = s
	return h
}

func serviceKey(serviceID, function string) string {
	if function == "" {
		return serviceID
	}
	return serviceID + "/" + function
}

// Answer runs every request in ascending call id order.
func (h *Host) Answer(reqs map[uint32]execution.CallRequest) map[uint32]execution.CallResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	results := make(map[uint32]execution.CallResult, len(reqs))
	for _, id := range slices.Sorted(maps.Keys(reqs)) {
		req := reqs[id]
		h.calls = append(h.calls, req)
		results[id] = h.lookup(req)(req)
	}
	return results
}

func (h *Host) lookup(req execution.CallRequest) Service {
	if s, ok := h.services[serviceKey(req.ServiceID, req.FunctionName)]; ok {
		return s
	}
	if s, ok := h.services[req.ServiceID]; ok {
		return s
	}
	return Failing(ServiceNotFoundCode, fmt.Sprintf("service %s/%s not found", req.ServiceID, req.FunctionName))
}

// Calls returns every request the host answered, in order.
func (h *Host) Calls() []execution.CallRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// Echo returns its arguments as an array.
func Echo() Service {
	return func(req execution.CallRequest) execution.CallResult {
		args := ir.Array(slices.Clone(req.Arguments))
		if args == nil {
			args = ir.Array{}
		}
		return execution.CallResult{Result: args}
	}
}

// Value always returns v.
func Value(v ir.Value) Service {
	return func(execution.CallRequest) execution.CallResult {
		return execution.CallResult{Result: v}
	}
}

// Failing always fails with code and message.
func Failing(code int32, message string) Service {
	return func(execution.CallRequest) execution.CallResult {
		return execution.CallResult{RetCode: code, Result: ir.String(message)}
	}
}

// CountingStopper returns cont until its stopAt-th call, which returns stop.
// Later calls return stop as well.
func CountingStopper(stopAt int, stop, cont ir.Value) Service {
	var (
		mu sync.Mutex
		n  int
	)
	return func(execution.CallRequest) execution.CallResult {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n >= stopAt {
			return execution.CallResult{Result: stop}
		}
		return execution.CallResult{Result: cont}
	}
}
