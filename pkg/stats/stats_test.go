package stats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogram(t *testing.T) {
	d := Histogram([]string{"C", "E", "C", "G"})
	assert.Equal(t, Distribution[string]{"C": 0.5, "E": 0.25, "G": 0.25}, d)
	assert.Empty(t, Histogram[string](nil))
}

func TestMean(t *testing.T) {
	d := Mean([][]string{
		{"C", "C"},
		{"C", "E"},
	})
	assert.InDelta(t, 0.75, d["C"], 1e-12)
	assert.InDelta(t, 0.25, d["E"], 1e-12)
	assert.Empty(t, Mean[string](nil))
}

func TestDivergence(t *testing.T) {
	tests := []struct {
		name string
		a, b Distribution[string]
		want float64
	}{
		{"identical", Distribution[string]{"C": 0.5, "E": 0.5}, Distribution[string]{"C": 0.5, "E": 0.5}, 0},
		{"disjoint", Distribution[string]{"C": 1}, Distribution[string]{"E": 1}, 2},
		{"partial", Distribution[string]{"C": 0.5, "E": 0.5}, Distribution[string]{"C": 0.25, "E": 0.5, "G": 0.25}, 0.5},
		{"empty", Distribution[string]{}, Distribution[string]{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Divergence(tt.a, tt.b), 1e-12)
			assert.InDelta(t, tt.want, Divergence(tt.b, tt.a), 1e-12)
		})
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Distribution[string]{"G": 0.1, "C": 0.5}.Write(&buf))
	want := "C: 0.50 " + Bar(0.5) + "\nG: 0.10 #####\n"
	assert.Equal(t, want, buf.String())
	assert.Len(t, Bar(0.5), 25)
	assert.Empty(t, Bar(0))
}
