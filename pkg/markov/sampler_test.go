package markov

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestGenerate_SingleSuccessorsAreDeterministic(t *testing.T) {
	m, err := Build(notes("C", "E", "G", "C", "E", "G", "C"), 1)
	require.NoError(t, err)

	for seed := uint64(0); seed < 10; seed++ {
		got, err := Generate(m, notes("C"), 5, newRand(seed))
		require.NoError(t, err)
		assert.Equal(t, notes("C", "E", "G", "C", "E"), got)
	}
}

func TestGenerate_BranchingDrawsOnlyObservedSuccessors(t *testing.T) {
	m, err := Build(notes("C", "E", "C", "G", "C", "E"), 1)
	require.NoError(t, err)

	for seed := uint64(0); seed < 50; seed++ {
		got, err := Generate(m, notes("C"), 6, newRand(seed))
		require.NoError(t, err)
		require.Len(t, got, 6)
		assert.Equal(t, "C", got[0])
		for i := 1; i < len(got); i++ {
			if got[i-1] == "C" {
				assert.Contains(t, notes("E", "G"), got[i])
			}
		}
	}
}

func TestGenerate_BranchingFrequencies(t *testing.T) {
	m, err := Build(notes("C", "E", "C", "G", "C", "E"), 1)
	require.NoError(t, err)

	rng := newRand(7)
	counts := map[string]int{}
	const trials = 30000
	for i := 0; i < trials; i++ {
		got, err := Generate(m, notes("C"), 2, rng)
		require.NoError(t, err)
		counts[got[1]]++
	}
	assert.InDelta(t, 2.0/3.0, float64(counts["E"])/trials, 0.02)
	assert.InDelta(t, 1.0/3.0, float64(counts["G"])/trials, 0.02)
}

func TestGenerate_Determinism(t *testing.T) {
	for order := 0; order <= 3; order++ {
		t.Run(fmt.Sprintf("order%d", order), func(t *testing.T) {
			m, err := Build(auClair, order)
			require.NoError(t, err)
			seed := auClair[:order]

			first, err := Generate(m, seed, 40, newRand(42))
			require.NoError(t, err)
			second, err := Generate(m, seed, 40, newRand(42))
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Len(t, first, 40)
			assert.Equal(t, seed, first[:order])
		})
	}
}

func TestGenerate_SeedFidelityWithUnseenSeed(t *testing.T) {
	m, err := Build(auClair, 2)
	require.NoError(t, err)

	seed := notes("F#", "Bb")
	got, err := Generate(m, seed, 20, newRand(1))
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Equal(t, seed, got[:2])

	vocab := m.Vocabulary()
	for _, n := range got[2:] {
		assert.Contains(t, vocab, n)
	}
}

func TestGenerate_MissingContextPolicies(t *testing.T) {
	// "G" only occurs last, so the context (G) has no successor.
	m, err := Build(notes("C", "D", "E", "G"), 1)
	require.NoError(t, err)
	_, ok := m.Transitions(notes("G"))
	require.False(t, ok)

	t.Run("fallback keeps requested length", func(t *testing.T) {
		for seed := uint64(0); seed < 20; seed++ {
			got, err := Generate(m, notes("E"), 12, newRand(seed))
			require.NoError(t, err)
			assert.Len(t, got, 12)
			assert.Equal(t, "G", got[1])
		}
	})

	t.Run("stop returns shorter melody", func(t *testing.T) {
		got, err := Generate(m, notes("E"), 12, newRand(3), WithMissingContext(StopEarly))
		require.NoError(t, err)
		assert.Equal(t, notes("E", "G"), got)
	})

	t.Run("stop on unseen seed returns the seed", func(t *testing.T) {
		got, err := Generate(m, notes("A"), 12, newRand(3), WithMissingContext(StopEarly))
		require.NoError(t, err)
		assert.Equal(t, notes("A"), got)
	})
}

func TestGenerate_LengthEqualsOrder(t *testing.T) {
	m, err := Build(auClair, 3)
	require.NoError(t, err)
	got, err := Generate(m, auClair[:3], 3, newRand(0))
	require.NoError(t, err)
	assert.Equal(t, auClair[:3], got)
}

func TestGenerate_Errors(t *testing.T) {
	m, err := Build(auClair, 2)
	require.NoError(t, err)

	tests := []struct {
		name   string
		model  *Model[string]
		seed   []string
		length int
		rng    *rand.Rand
		want   error
	}{
		{"nil model", nil, notes("C", "C"), 5, newRand(0), ErrNilModel},
		{"nil rng", m, notes("C", "C"), 5, nil, ErrNilRand},
		{"short seed", m, notes("C"), 5, newRand(0), ErrSeedLength},
		{"long seed", m, notes("C", "C", "C"), 5, newRand(0), ErrSeedLength},
		{"length below order", m, notes("C", "C"), 1, newRand(0), ErrInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Generate(tt.model, tt.seed, tt.length, tt.rng)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = Generate(m, notes("C", "C"), 1, newRand(0))
	var invalid *InvalidLengthError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 1, invalid.Length)
	assert.Equal(t, 2, invalid.Order)
}

func TestSampler_IsLazy(t *testing.T) {
	m, err := Build(auClair, 1)
	require.NoError(t, err)
	s, err := NewSampler(m, notes("C"), newRand(5))
	require.NoError(t, err)

	first, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "C", first)

	var rest []string
	for n := range s.Notes(4) {
		rest = append(rest, n)
		if len(rest) == 2 {
			break
		}
	}
	assert.Len(t, rest, 2)

	want, err := Generate(m, notes("C"), 3, newRand(5))
	require.NoError(t, err)
	assert.Equal(t, want, append([]string{first}, rest...))
}

func TestGenerate_ConcurrentReaders(t *testing.T) {
	m, err := Build(auClair, 2)
	require.NoError(t, err)
	want, err := Generate(m, auClair[:2], 30, newRand(9))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Generate(m, auClair[:2], 30, newRand(9))
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{Fallback, StopEarly} {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("retry")
	assert.Error(t, err)
}
