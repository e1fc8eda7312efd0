package markov

import (
	"fmt"
	"iter"
	"math/rand/v2"
)

// Policy decides what the sampler does when the current context was never
// observed during training.
type Policy int

const (
	// Fallback draws the next note from the unconditional distribution of
	// the training sequence. Output always has the requested length.
	Fallback Policy = iota
	// StopEarly ends generation, so output may be shorter than requested.
	StopEarly
)

func (p Policy) String() string {
	switch p {
	case Fallback:
		return "fallback"
	case StopEarly:
		return "stop"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts the names returned by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fallback", "":
		return Fallback, nil
	case "stop":
		return StopEarly, nil
	default:
		return 0, fmt.Errorf("unknown missing-context policy %q", s)
	}
}

type generateOptions struct {
	policy Policy
}

// GenerateOption configures NewSampler and Generate.
type GenerateOption func(*generateOptions)

// WithMissingContext sets the policy for contexts absent from the model.
// The default is Fallback.
func WithMissingContext(p Policy) GenerateOption {
	return func(o *generateOptions) { o.policy = p }
}

// Sampler lazily produces a melody from a model. It replays the seed first,
// then one sampled note per call. A Sampler is not safe for concurrent use;
// the model it reads from is.
type Sampler[N comparable] struct {
	model   *Model[N]
	rng     *rand.Rand
	options generateOptions

	seed    []N
	window  []N
	emitted int
	done    bool
}

// NewSampler validates the seed and returns a sampler positioned before the
// first seed note. The seed must have exactly model.Order() notes but need
// not have been observed during training.
func NewSampler[N comparable](model *Model[N], seed []N, rng *rand.Rand, opts ...GenerateOption) (*Sampler[N], error) {
	if model == nil {
		return nil, ErrNilModel
	}
	if rng == nil {
		return nil, ErrNilRand
	}
	if len(seed) != model.order {
		return nil, fmt.Errorf("%w: got %d notes, want %d", ErrSeedLength, len(seed), model.order)
	}

	s := &Sampler[N]{
		model:  model,
		rng:    rng,
		seed:   append([]N(nil), seed...),
		window: append([]N(nil), seed...),
	}
	for _, opt := range opts {
		opt(&s.options)
	}
	return s, nil
}

// Next returns the next note of the melody. It reports false once the
// StopEarly policy has hit an unknown context.
func (s *Sampler[N]) Next() (N, bool) {
	var zero N
	if s.done {
		return zero, false
	}
	if s.emitted < len(s.seed) {
		note := s.seed[s.emitted]
		s.emitted++
		return note, true
	}

	st, ok := s.model.lookup(s.window)
	if !ok {
		if s.options.policy == StopEarly {
			s.done = true
			return zero, false
		}
		st = s.model.unconditional
	}

	next := choose(st, s.rng)
	if len(s.window) > 0 {
		copy(s.window, s.window[1:])
		s.window[len(s.window)-1] = next
	}
	s.emitted++
	return next, true
}

// Notes yields at most length notes, the seed included.
func (s *Sampler[N]) Notes(length int) iter.Seq[N] {
	return func(yield func(N) bool) {
		for s.emitted < length {
			note, ok := s.Next()
			if !ok || !yield(note) {
				return
			}
		}
	}
}

// choose picks a successor with weight proportional to its count, which is
// the same as weighting by probability.
func choose[N comparable](st *state[N], rng *rand.Rand) N {
	r := rng.IntN(st.total)
	for _, t := range st.transitions {
		r -= t.Count
		if r < 0 {
			return t.Note
		}
	}
	return st.transitions[len(st.transitions)-1].Note
}

// Generate returns a melody of length notes that starts with seed. Under the
// StopEarly policy the result can be shorter. length must be at least the
// model order.
func Generate[N comparable](model *Model[N], seed []N, length int, rng *rand.Rand, opts ...GenerateOption) ([]N, error) {
	s, err := NewSampler(model, seed, rng, opts...)
	if err != nil {
		return nil, err
	}
	if length < model.order {
		return nil, &InvalidLengthError{Length: length, Order: model.order}
	}

	out := make([]N, 0, length)
	for note := range s.Notes(length) {
		out = append(out, note)
	}
	return out, nil
}
