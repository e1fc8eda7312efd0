// Package stats compares note-frequency distributions of source and
// generated melodies.
package stats

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
)

// Distribution maps a note to its relative frequency.
type Distribution[N cmp.Ordered] map[N]float64

// Histogram returns the relative frequency of each note in seq. An empty
// sequence yields an empty distribution.
func Histogram[N cmp.Ordered](seq []N) Distribution[N] {
	d := make(Distribution[N])
	if len(seq) == 0 {
		return d
	}
	for _, n := range seq {
		d[n]++
	}
	total := float64(len(seq))
	for n := range d {
		d[n] /= total
	}
	return d
}

// Mean averages the histograms of several sequences. Notes missing from a
// sequence count as zero for it.
func Mean[N cmp.Ordered](seqs [][]N) Distribution[N] {
	d := make(Distribution[N])
	if len(seqs) == 0 {
		return d
	}
	for _, seq := range seqs {
		for n, f := range Histogram(seq) {
			d[n] += f
		}
	}
	for n := range d {
		d[n] /= float64(len(seqs))
	}
	return d
}

// Divergence is the L1 distance between two distributions over the union of
// their notes. It ranges from 0 (identical) to 2 (disjoint).
func Divergence[N cmp.Ordered](a, b Distribution[N]) float64 {
	sum := 0.0
	for n, p := range a {
		sum += math.Abs(p - b[n])
	}
	for n, q := range b {
		if _, ok := a[n]; !ok {
			sum += q
		}
	}
	return sum
}

// Notes returns the notes of d in sorted order.
func (d Distribution[N]) Notes() []N {
	out := make([]N, 0, len(d))
	for n := range d {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// BarWidth is the number of characters a frequency of 1.0 renders to.
const BarWidth = 50

// Bar renders a frequency as a run of '#'.
func Bar(freq float64) string {
	n := int(freq * BarWidth)
	if n < 0 {
		n = 0
	}
	return strings.Repeat("#", n)
}

// Write prints one line per note, sorted, with its frequency and a bar.
func (d Distribution[N]) Write(w io.Writer) error {
	for _, n := range d.Notes() {
		if _, err := fmt.Fprintf(w, "%v: %.2f %s\n", n, d[n], Bar(d[n])); err != nil {
			return err
		}
	}
	return nil
}
