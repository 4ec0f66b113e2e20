package stream

// ValuesMatrix is a sequence of generations.
type ValuesMatrix struct {
	gens [][]Value
}

// AddToGeneration inserts v into generation idx, extending the matrix with
// empty generations as needed.
func (m *ValuesMatrix) AddToGeneration(v Value, idx uint32) {
	for uint32(len(m.gens)) <= idx {
		m.gens = append(m.gens, nil)
	}
	m.gens[idx] = append(m.gens[idx], v)
}

// AddToLastGeneration appends v to the final generation, creating one if the
// matrix is empty. It returns the generation index.
func (m *ValuesMatrix) AddToLastGeneration(v Value) uint32 {
	if len(m.gens) == 0 {
		m.gens = append(m.gens, nil)
	}
	last := len(m.gens) - 1
	m.gens[last] = append(m.gens[last], v)
	return uint32(last)
}

// NewGeneration appends an empty generation.
func (m *ValuesMatrix) NewGeneration() {
	m.gens = append(m.gens, nil)
}

// Generations returns the number of generations, empty ones included.
func (m *ValuesMatrix) Generations() int {
	return len(m.gens)
}

// Count returns the number of values.
func (m *ValuesMatrix) Count() int {
	n := 0
	for _, g := range m.gens {
		n += len(g)
	}
	return n
}

// Iter returns all values in generation order.
func (m *ValuesMatrix) Iter() []Value {
	out := make([]Value, 0, m.Count())
	for _, g := range m.gens {
		out = append(out, g...)
	}
	return out
}

// SliceIter returns one slice per non-empty generation starting at start.
func (m *ValuesMatrix) SliceIter(start int) [][]Value {
	var out [][]Value
	for i := start; i < len(m.gens); i++ {
		if len(m.gens[i]) == 0 {
			continue
		}
		out = append(out, m.gens[i])
	}
	return out
}

// RemoveEmptyGenerations drops empty generations and returns how many remain.
func (m *ValuesMatrix) RemoveEmptyGenerations() int {
	kept := m.gens[:0]
	for _, g := range m.gens {
		if len(g) > 0 {
			kept = append(kept, g)
		}
	}
	m.gens = kept
	return len(m.gens)
}
