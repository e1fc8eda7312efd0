// Package composer runs the full analyse-generate-compare-export cycle over a
// source melody for one or more Markov orders.
package composer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/james-see/markov2midi/pkg/export"
	"github.com/james-see/markov2midi/pkg/markov"
	"github.com/james-see/markov2midi/pkg/melody"
	"github.com/james-see/markov2midi/pkg/stats"
)

const (
	DefaultLength = 40
	DefaultCount  = 2

	// MaxLength and MaxCount bound a single request.
	MaxLength = 10000
	MaxCount  = 100

	previewContexts    = 3
	previewTransitions = 3
)

// ErrInvalidRequest wraps validation failures of a Request.
var ErrInvalidRequest = errors.New("invalid request")

// DefaultOrders are the orders analysed when a request names none.
var DefaultOrders = []int{1, 2, 3}

// Request describes one composition run. A zero Length, Count or Rhythm, or
// empty Orders, selects the package default; zero is never taken literally.
type Request struct {
	Source melody.Melody
	Orders []int
	Length int
	Count  int
	Seed   uint64
	Rhythm melody.RhythmMode
	Policy markov.Policy
}

func (r *Request) applyDefaults() {
	if len(r.Orders) == 0 {
		r.Orders = append([]int(nil), DefaultOrders...)
	}
	if r.Length == 0 {
		r.Length = DefaultLength
	}
	if r.Count == 0 {
		r.Count = DefaultCount
	}
	if r.Rhythm == "" {
		r.Rhythm = melody.RhythmRandom
	}
}

// Variation is one generated melody.
type Variation struct {
	Order     int
	Index     int
	Notes     []melody.Note
	Durations []float64
}

// ContextPreview shows a few transitions of one context.
type ContextPreview struct {
	Context     []melody.Note
	Transitions []markov.Transition[melody.Note]
	More        int
}

// Analysis is the result for one order.
type Analysis struct {
	Order      int
	States     int
	Preview    []ContextPreview
	Variations []Variation
	Mean       stats.Distribution[melody.Note]
	Divergence float64
}

// Result is the outcome of Compose.
type Result struct {
	Source       melody.Melody
	Distribution stats.Distribution[melody.Note]
	Analyses     []Analysis
}

// Composer builds models and generates variations.
type Composer struct {
	logger *slog.Logger
	writer *export.MIDIWriter
}

// New creates a Composer. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{logger: logger, writer: export.NewMIDIWriter()}
}

// Compose analyses req.Source with every requested order. Each variation is
// seeded with the first order notes of the source and draws from its own
// random stream derived from req.Seed, so results are reproducible.
func (c *Composer) Compose(req Request) (*Result, error) {
	req.applyDefaults()
	if err := req.Source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Count < 0 || req.Count > MaxCount {
		return nil, fmt.Errorf("%w: count must be between 1 and %d, got %d", ErrInvalidRequest, MaxCount, req.Count)
	}
	if req.Length > MaxLength {
		return nil, fmt.Errorf("%w: length must not exceed %d, got %d", ErrInvalidRequest, MaxLength, req.Length)
	}

	res := &Result{
		Source:       req.Source,
		Distribution: stats.Histogram(req.Source.Notes),
	}

	for _, order := range req.Orders {
		a, err := c.analyse(req, order)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", order, err)
		}
		res.Analyses = append(res.Analyses, *a)
	}
	return res, nil
}

func (c *Composer) analyse(req Request, order int) (*Analysis, error) {
	model, err := markov.Build(req.Source.Notes, order)
	if err != nil {
		return nil, err
	}
	c.logger.Info("model built",
		slog.String("melody", req.Source.Name),
		slog.Int("order", order),
		slog.Int("states", model.Len()),
	)

	a := &Analysis{
		Order:   order,
		States:  model.Len(),
		Preview: Preview(model, previewContexts, previewTransitions),
	}

	seed := req.Source.Notes[:order]
	var generated [][]melody.Note
	for i := 1; i <= req.Count; i++ {
		rng := rand.New(rand.NewPCG(req.Seed, uint64(order)<<32|uint64(i)))
		notes, err := markov.Generate(model, seed, req.Length, rng, markov.WithMissingContext(req.Policy))
		if err != nil {
			return nil, err
		}
		durations, err := melody.Durations(req.Rhythm, rng, req.Source.Durations, len(notes))
		if err != nil {
			return nil, err
		}
		a.Variations = append(a.Variations, Variation{
			Order:     order,
			Index:     i,
			Notes:     notes,
			Durations: durations,
		})
		generated = append(generated, notes)

		c.logger.Debug("variation generated",
			slog.Int("order", order),
			slog.Int("index", i),
			slog.Int("length", len(notes)),
		)
	}

	a.Mean = stats.Mean(generated)
	a.Divergence = stats.Divergence(stats.Histogram(req.Source.Notes), a.Mean)
	return a, nil
}

// Preview lists up to contexts contexts with up to transitions successors
// each, in first-observed order.
func Preview(model *markov.Model[melody.Note], contexts, transitions int) []ContextPreview {
	var out []ContextPreview
	for i, ctx := range model.Contexts() {
		if i == contexts {
			break
		}
		trs, _ := model.Transitions(ctx)
		p := ContextPreview{Context: ctx}
		if len(trs) > transitions {
			p.More = len(trs) - transitions
			trs = trs[:transitions]
		}
		p.Transitions = trs
		out = append(out, p)
	}
	return out
}

// Find returns the variation for order and 1-based index.
func (r *Result) Find(order, index int) (Variation, bool) {
	for _, a := range r.Analyses {
		if a.Order != order {
			continue
		}
		for _, v := range a.Variations {
			if v.Index == index {
				return v, true
			}
		}
	}
	return Variation{}, false
}

// Track converts a variation into an exportable track at the source tempo.
func (r *Result) Track(v Variation) export.Track {
	return export.Track{
		Name:      fmt.Sprintf("%s (order %d, #%d)", r.Source.Title, v.Order, v.Index),
		Notes:     v.Notes,
		Durations: v.Durations,
		Tempo:     r.Source.Tempo,
	}
}

// SourceTrack converts the source melody into an exportable track.
func (r *Result) SourceTrack() export.Track {
	return export.Track{
		Name:      r.Source.Title,
		Notes:     r.Source.Notes,
		Durations: r.Source.Durations,
		Tempo:     r.Source.Tempo,
	}
}

// BaseName derives a file prefix from the melody name.
func BaseName(m melody.Melody) string {
	base := strings.ReplaceAll(m.Name, "-", "_")
	if base == "" {
		return "melody"
	}
	return base
}

// WriteFiles writes the source and every variation into dir as MIDI files and
// returns their paths, source first.
func (c *Composer) WriteFiles(res *Result, dir, base string) ([]string, error) {
	if res == nil {
		return nil, errors.New("nil result")
	}
	if base == "" {
		base = BaseName(res.Source)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, export.FileName(base, -1, 0))
	if err := c.writer.WriteFile(res.SourceTrack(), path); err != nil {
		return nil, err
	}
	paths := []string{path}

	for _, a := range res.Analyses {
		for _, v := range a.Variations {
			path := filepath.Join(dir, export.FileName(base, v.Order, v.Index))
			if err := c.writer.WriteFile(res.Track(v), path); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	c.logger.Info("MIDI files written", slog.String("dir", dir), slog.Int("files", len(paths)))
	return paths, nil
}

// EncodeVariation renders a single variation as MIDI bytes.
func (c *Composer) EncodeVariation(res *Result, v Variation) ([]byte, error) {
	return c.writer.Encode(res.Track(v))
}

// Report prints the analysis the way the console tool shows it: model size,
// a preview of the transition table, the first notes of every variation and
// the distribution comparison.
func (r *Result) Report(w io.Writer) error {
	var b strings.Builder
	for _, a := range r.Analyses {
		fmt.Fprintf(&b, "\n=== Order %d Markov chain ===\n", a.Order)
		fmt.Fprintf(&b, "Unique states: %d\n", a.States)
		b.WriteString("Transition preview:\n")
		for _, p := range a.Preview {
			fmt.Fprintf(&b, "  State %s:\n", joinNotes(p.Context, " -> "))
			for _, t := range p.Transitions {
				fmt.Fprintf(&b, "    -> %s: %.2f\n", t.Note, t.Prob)
			}
			if p.More > 0 {
				fmt.Fprintf(&b, "    ... and %d more transitions\n", p.More)
			}
		}
		for _, v := range a.Variations {
			head := v.Notes
			if len(head) > 10 {
				head = head[:10]
			}
			fmt.Fprintf(&b, "Melody %d: %s... (length %d)\n", v.Index, joinNotes(head, " "), len(v.Notes))
		}
	}

	b.WriteString("\n=== Note distribution comparison ===\n")
	b.WriteString("Source melody:\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if err := r.Distribution.Write(w); err != nil {
		return err
	}
	for _, a := range r.Analyses {
		if _, err := fmt.Fprintf(w, "\nMean distribution for order %d:\n", a.Order); err != nil {
			return err
		}
		if err := a.Mean.Write(w); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "Divergence from source: %.4f\n", a.Divergence); err != nil {
			return err
		}
	}
	return nil
}

func joinNotes(notes []melody.Note, sep string) string {
	if len(notes) == 0 {
		return "(empty)"
	}
	return strings.Join(melody.Strings(notes), sep)
}
