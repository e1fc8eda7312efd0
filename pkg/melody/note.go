// Package melody provides the note symbols, source melodies and rhythm
// helpers that surround the Markov core.
package melody

import (
	"fmt"
	"strconv"
	"strings"
)

// Note is a pitch name with an optional octave ("C", "Bb", "F#5") or the
// rest marker "R". Notes are compared by their spelling, so "C" and "C4" are
// distinct symbols even though they sound the same.
type Note string

// Rest is the rest marker.
const Rest Note = "R"

// DefaultOctave is assumed for notes spelled without an octave.
const DefaultOctave = 4

var pitchClasses = map[string]int{
	"C": 0, "C#": 1, "Db": 1,
	"D": 2, "D#": 3, "Eb": 3,
	"E": 4,
	"F": 5, "F#": 6, "Gb": 6,
	"G": 7, "G#": 8, "Ab": 8,
	"A": 9, "A#": 10, "Bb": 10,
	"B": 11,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// IsRest reports whether n is the rest marker.
func (n Note) IsRest() bool {
	return n == Rest
}

// MIDI returns the MIDI key of n with C4 = 60.
func (n Note) MIDI() (uint8, error) {
	s := string(n)
	if n.IsRest() {
		return 0, fmt.Errorf("note %q is a rest", s)
	}

	name := s
	octave := DefaultOctave
	if i := strings.IndexAny(s, "-0123456789"); i > 0 {
		name = s[:i]
		o, err := strconv.Atoi(s[i:])
		if err != nil {
			return 0, fmt.Errorf("invalid octave in note %q: %w", s, err)
		}
		octave = o
	}

	pc, ok := pitchClasses[name]
	if !ok {
		return 0, fmt.Errorf("unknown note name %q", s)
	}
	key := (octave+1)*12 + pc
	if key < 0 || key > 127 {
		return 0, fmt.Errorf("note %q is outside the MIDI range", s)
	}
	return uint8(key), nil
}

// Valid reports whether n is a rest or a playable pitch.
func (n Note) Valid() bool {
	if n.IsRest() {
		return true
	}
	_, err := n.MIDI()
	return err == nil
}

// NoteFromMIDI names a MIDI key with sharps and an explicit octave.
func NoteFromMIDI(key uint8) Note {
	octave := int(key)/12 - 1
	return Note(sharpNames[key%12] + strconv.Itoa(octave))
}

// ParseNotes splits a whitespace or comma separated list of notes and
// validates each one.
func ParseNotes(s string) ([]Note, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]Note, 0, len(fields))
	for _, f := range fields {
		n := Note(f)
		if !n.Valid() {
			return nil, fmt.Errorf("invalid note %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

// Strings converts notes to plain strings.
func Strings(notes []Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = string(n)
	}
	return out
}
