package melody

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/james-see/markov2midi/pkg/markov"
)

// DefaultDurations are the note values picked by RandomDurations: eighth,
// quarter and half notes.
var DefaultDurations = []float64{0.5, 1, 2}

// RhythmMode selects how durations for a generated melody are produced.
type RhythmMode string

const (
	RhythmRandom RhythmMode = "random"
	RhythmMarkov RhythmMode = "markov"
)

// ParseRhythmMode accepts "random" (the default) or "markov".
func ParseRhythmMode(s string) (RhythmMode, error) {
	switch RhythmMode(s) {
	case "", RhythmRandom:
		return RhythmRandom, nil
	case RhythmMarkov:
		return RhythmMarkov, nil
	default:
		return "", fmt.Errorf("unknown rhythm mode %q", s)
	}
}

// RandomDurations draws n durations uniformly from choices, or from
// DefaultDurations when choices is empty.
func RandomDurations(rng *rand.Rand, n int, choices ...float64) []float64 {
	if len(choices) == 0 {
		choices = DefaultDurations
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = choices[rng.IntN(len(choices))]
	}
	return out
}

// MarkovDurations trains an order-1 model on source and samples n durations
// from it, starting with the first source duration.
func MarkovDurations(rng *rand.Rand, source []float64, n int) ([]float64, error) {
	if n == 0 {
		return []float64{}, nil
	}
	if len(source) < 2 {
		return nil, errors.New("need at least two source durations")
	}
	model, err := markov.Build(source, 1)
	if err != nil {
		return nil, err
	}
	return markov.Generate(model, source[:1], n, rng)
}

// Durations produces n durations for a generated melody using mode.
func Durations(mode RhythmMode, rng *rand.Rand, source []float64, n int) ([]float64, error) {
	switch mode {
	case RhythmMarkov:
		return MarkovDurations(rng, source, n)
	case RhythmRandom, "":
		return RandomDurations(rng, n), nil
	default:
		return nil, fmt.Errorf("unknown rhythm mode %q", mode)
	}
}
