package markov

import (
	"strconv"
	"strings"
)

// Transition is one possible successor of a context.
type Transition[N comparable] struct {
	Note  N
	Count int
	Prob  float64
}

// state holds the successors of a single context in first-observed order.
type state[N comparable] struct {
	context     []N
	transitions []Transition[N]
	total       int
}

// Model is an immutable order-n transition table.
type Model[N comparable] struct {
	order int
	vocab map[N]int
	notes []N

	states map[string]*state[N]
	keys   []string // first-observed order

	// unconditional is the order-0 distribution over the whole training
	// sequence, used when a context was never observed.
	unconditional *state[N]
}

// Build slides a window of width order+1 across seq and counts, for every
// context of order notes, which note followed it. Counts are then normalized
// into probabilities per context. Contexts that never occur in seq are absent
// from the model.
func Build[N comparable](seq []N, order int) (*Model[N], error) {
	if order < 0 {
		return nil, ErrNegativeOrder
	}
	if len(seq) <= order {
		return nil, &InsufficientDataError{Order: order, Length: len(seq)}
	}

	m := &Model[N]{
		order:         order,
		vocab:         make(map[N]int),
		states:        make(map[string]*state[N]),
		unconditional: &state[N]{},
	}

	ids := make([]int, len(seq))
	for i, note := range seq {
		ids[i] = m.intern(note)
		m.unconditional.observe(note)
	}

	for i := 0; i+order < len(seq); i++ {
		key := contextKey(ids[i : i+order])
		st, ok := m.states[key]
		if !ok {
			ctx := make([]N, order)
			copy(ctx, seq[i:i+order])
			st = &state[N]{context: ctx}
			m.states[key] = st
			m.keys = append(m.keys, key)
		}
		st.observe(seq[i+order])
	}

	for _, st := range m.states {
		st.normalize()
	}
	m.unconditional.normalize()

	return m, nil
}

func (m *Model[N]) intern(note N) int {
	if id, ok := m.vocab[note]; ok {
		return id
	}
	id := len(m.notes)
	m.vocab[note] = id
	m.notes = append(m.notes, note)
	return id
}

func (s *state[N]) observe(next N) {
	s.total++
	for i := range s.transitions {
		if s.transitions[i].Note == next {
			s.transitions[i].Count++
			return
		}
	}
	s.transitions = append(s.transitions, Transition[N]{Note: next, Count: 1})
}

func (s *state[N]) normalize() {
	for i := range s.transitions {
		s.transitions[i].Prob = float64(s.transitions[i].Count) / float64(s.total)
	}
}

// contextKey joins note ids with spaces, "" for the empty order-0 context.
func contextKey(ids []int) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

// key resolves a context to its table key. It reports false when ctx has the
// wrong length or contains a note never seen in training.
func (m *Model[N]) key(ctx []N) (string, bool) {
	if len(ctx) != m.order {
		return "", false
	}
	ids := make([]int, len(ctx))
	for i, note := range ctx {
		id, ok := m.vocab[note]
		if !ok {
			return "", false
		}
		ids[i] = id
	}
	return contextKey(ids), true
}

func (m *Model[N]) lookup(ctx []N) (*state[N], bool) {
	key, ok := m.key(ctx)
	if !ok {
		return nil, false
	}
	st, ok := m.states[key]
	return st, ok
}

// Order returns the number of preceding notes used as context.
func (m *Model[N]) Order() int { return m.order }

// Len returns the number of distinct contexts in the model.
func (m *Model[N]) Len() int { return len(m.keys) }

// Vocabulary returns every distinct note of the training sequence in
// first-observed order.
func (m *Model[N]) Vocabulary() []N {
	out := make([]N, len(m.notes))
	copy(out, m.notes)
	return out
}

// Contexts returns the observed contexts in first-observed order.
func (m *Model[N]) Contexts() [][]N {
	out := make([][]N, 0, len(m.keys))
	for _, key := range m.keys {
		ctx := make([]N, m.order)
		copy(ctx, m.states[key].context)
		out = append(out, ctx)
	}
	return out
}

// Transitions returns the successor distribution of ctx. The second return
// value is false if ctx was never observed during training.
func (m *Model[N]) Transitions(ctx []N) ([]Transition[N], bool) {
	st, ok := m.lookup(ctx)
	if !ok {
		return nil, false
	}
	return st.snapshot(), true
}

// Probability returns P(next | ctx), zero for unseen pairs.
func (m *Model[N]) Probability(ctx []N, next N) float64 {
	st, ok := m.lookup(ctx)
	if !ok {
		return 0
	}
	for _, t := range st.transitions {
		if t.Note == next {
			return t.Prob
		}
	}
	return 0
}

// Count returns how many times next followed ctx in the training sequence.
func (m *Model[N]) Count(ctx []N, next N) int {
	st, ok := m.lookup(ctx)
	if !ok {
		return 0
	}
	for _, t := range st.transitions {
		if t.Note == next {
			return t.Count
		}
	}
	return 0
}

// Unconditional returns the order-0 note distribution of the training
// sequence.
func (m *Model[N]) Unconditional() []Transition[N] {
	return m.unconditional.snapshot()
}

func (s *state[N]) snapshot() []Transition[N] {
	out := make([]Transition[N], len(s.transitions))
	copy(out, s.transitions)
	return out
}
