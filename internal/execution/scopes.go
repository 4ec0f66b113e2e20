package execution

import (
	"fmt"
	"maps"
	"slices"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/stream"
)

// scalar is a bound scalar value.
type scalar struct {
	value      ir.Value
	tetraplet  ir.Tetraplet
	provenance ir.Provenance
}

// frames is a stack of name-keyed binding maps.
// Lookups walk from the innermost frame outwards.
type frames[T any] struct {
	stack []map[string]T
}

func newFrames[T any]() *frames[T] {
	return &frames[T]{stack: []map[string]T{{}}}
}

func (f *frames[T]) push() {
	f.stack = append(f.stack, map[string]T{})
}

// pop drops the innermost frame.
func (f *frames[T]) pop() {
	f.stack = f.stack[:len(f.stack)-1]
}

// popInto drops the innermost frame, moving every binding except
// restricted into the enclosing frame.
func (f *frames[T]) popInto(restricted string) {
	top := f.stack[len(f.stack)-1]
	f.pop()
	parent := f.stack[len(f.stack)-1]
	for name, v := range top {
		if name == restricted {
			continue
		}
		if _, ok := parent[name]; !ok {
			parent[name] = v
		}
	}
}

// define binds name in the innermost frame. Rebinding within one frame fails.
func (f *frames[T]) define(name string, v T) error {
	top := f.stack[len(f.stack)-1]
	if _, ok := top[name]; ok {
		return fmt.Errorf("variable %q is already defined in this scope", name)
	}
	top[name] = v
	return nil
}

func (f *frames[T]) get(name string) (T, bool) {
	for i := len(f.stack) - 1; i >= 0; i-- {
		if v, ok := f.stack[i][name]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// streams holds the stream and stream map bindings. Each name has a stack
// of values; new pushes, the end of its body pops. The bottom entry is the
// global stream created on first use.
type streams struct {
	limit   int
	streams map[string][]*stream.Stream
	maps    map[string][]*stream.Map
}

func newStreams(limit int) *streams {
	return &streams{
		limit:   limit,
		streams: make(map[string][]*stream.Stream),
		maps:    make(map[string][]*stream.Map),
	}
}

func (s *streams) stream(name string) *stream.Stream {
	stack := s.streams[name]
	if len(stack) == 0 {
		st := stream.New(s.limit)
		s.streams[name] = []*stream.Stream{st}
		return st
	}
	return stack[len(stack)-1]
}

func (s *streams) streamMap(name string) *stream.Map {
	stack := s.maps[name]
	if len(stack) == 0 {
		m := stream.NewMap(s.limit)
		s.maps[name] = []*stream.Map{m}
		return m
	}
	return stack[len(stack)-1]
}

// pushStream opens a new scope for name. The scoped stream starts with the
// values visible before the new.
func (s *streams) pushStream(name string) {
	outer := s.stream(name)
	s.streams[name] = append(s.streams[name], outer.Scope())
}

func (s *streams) popStream(name string) *stream.Stream {
	stack := s.streams[name]
	top := stack[len(stack)-1]
	s.streams[name] = stack[:len(stack)-1]
	return top
}

func (s *streams) pushMap(name string) {
	outer := s.streamMap(name)
	s.maps[name] = append(s.maps[name], outer.Scope())
}

func (s *streams) popMap(name string) *stream.Map {
	stack := s.maps[name]
	top := stack[len(stack)-1]
	s.maps[name] = stack[:len(stack)-1]
	return top
}

// globals returns the global streams in name order, stream maps after streams.
func (s *streams) globals() []*stream.Stream {
	var out []*stream.Stream
	for _, name := range slices.Sorted(maps.Keys(s.streams)) {
		if stack := s.streams[name]; len(stack) > 0 {
			out = append(out, stack[0])
		}
	}
	for _, name := range slices.Sorted(maps.Keys(s.maps)) {
		if stack := s.maps[name]; len(stack) > 0 {
			out = append(out, stack[0].Stream())
		}
	}
	return out
}
