package melody

import (
	"errors"
	"fmt"
	"sort"
)

// Melody is a source line with aligned durations in beats (1.0 = quarter
// note) and a suggested tempo in BPM.
type Melody struct {
	Name      string
	Title     string
	Notes     []Note
	Durations []float64
	Tempo     float64
}

// ErrUnknownMelody is returned by Library.Get.
var ErrUnknownMelody = errors.New("unknown melody")

// Validate checks that notes and durations line up and are playable.
func (m Melody) Validate() error {
	if m.Name == "" {
		return errors.New("melody has no name")
	}
	if len(m.Notes) == 0 {
		return fmt.Errorf("melody %q has no notes", m.Name)
	}
	if len(m.Notes) != len(m.Durations) {
		return fmt.Errorf("melody %q has %d notes but %d durations", m.Name, len(m.Notes), len(m.Durations))
	}
	for i, n := range m.Notes {
		if !n.Valid() {
			return fmt.Errorf("melody %q: invalid note %q at %d", m.Name, n, i)
		}
		if m.Durations[i] <= 0 {
			return fmt.Errorf("melody %q: non-positive duration at %d", m.Name, i)
		}
	}
	return nil
}

// Library is a named collection of melodies.
type Library struct {
	melodies map[string]Melody
}

// NewLibrary returns a library holding the given melodies.
func NewLibrary(melodies ...Melody) (*Library, error) {
	l := &Library{melodies: make(map[string]Melody)}
	for _, m := range melodies {
		if err := l.Add(m); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add validates m and stores it, replacing any melody with the same name.
func (l *Library) Add(m Melody) error {
	if err := m.Validate(); err != nil {
		return err
	}
	l.melodies[m.Name] = clone(m)
	return nil
}

// Get returns a copy of the named melody.
func (l *Library) Get(name string) (Melody, error) {
	m, ok := l.melodies[name]
	if !ok {
		return Melody{}, fmt.Errorf("%w: %q", ErrUnknownMelody, name)
	}
	return clone(m), nil
}

// Names returns the melody names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.melodies))
	for name := range l.melodies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clone(m Melody) Melody {
	m.Notes = append([]Note(nil), m.Notes...)
	m.Durations = append([]float64(nil), m.Durations...)
	return m
}

// Builtin returns a fresh library with the two bundled tunes.
func Builtin() *Library {
	l, err := NewLibrary(AuClairDeLaLune(), Marseillaise())
	if err != nil {
		panic(err)
	}
	return l
}

func line(s string) []Note {
	notes, err := ParseNotes(s)
	if err != nil {
		panic(err)
	}
	return notes
}

// AuClairDeLaLune returns the French nursery tune, four phrases.
func AuClairDeLaLune() Melody {
	return Melody{
		Name:  "au-clair-de-la-lune",
		Title: "Au Clair de la Lune",
		Notes: line(`C C C D E D C E D D C
			C C C D E D C E D D C
			D D D D A A D C B A G
			C C C D E D C E D D C`),
		Durations: []float64{
			1, 1, 1, 1, 2, 2, 1, 1, 1, 1, 4,
			1, 1, 1, 1, 2, 2, 1, 1, 1, 1, 4,
			1, 1, 1, 1, 2, 2, 1, 1, 1, 1, 4,
			1, 1, 1, 1, 2, 2, 1, 1, 1, 1, 4,
		},
		Tempo: 120,
	}
}

// Marseillaise returns the opening bars of La Marseillaise in C major.
func Marseillaise() Melody {
	return Melody{
		Name:  "marseillaise",
		Title: "La Marseillaise",
		Notes: line(`F F F D G G A A Bb G A Bb
			C C Bb A G F F Bb Bb Bb A G
			A Bb G A F G G A G F E D
			C C C C D E F F G A Bb C`),
		Durations: []float64{
			1, 0.5, 0.5, 1, 1, 1, 0.5, 0.5, 1, 2, 0.5, 0.5,
			0.5, 0.5, 0.5, 0.5, 1, 1, 2, 1, 0.5, 0.5, 1, 1,
			1, 0.5, 0.5, 1, 2, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 1,
			1, 2, 0.5, 0.5, 0.5, 0.5, 1, 0.5, 0.5, 0.5, 0.5, 2,
		},
		Tempo: 80,
	}
}
