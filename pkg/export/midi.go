// Package export renders note sequences as Standard MIDI Files and reads
// monophonic MIDI files back into notes and durations.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/james-see/markov2midi/pkg/melody"
	"github.com/natefinch/atomic"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	DefaultTicksPerQuarter = 480
	DefaultTempo           = 120.0
	DefaultVelocity        = 100
	DefaultTrackName       = "Markov melody"
)

// Track is a single melodic line ready for export. Durations are in beats
// and aligned with Notes.
type Track struct {
	Name      string
	Notes     []melody.Note
	Durations []float64
	Tempo     float64
}

// MIDIWriter encodes and decodes Standard MIDI Files.
type MIDIWriter struct {
	ticksPerQuarter uint16
	channel         uint8
	velocity        uint8
}

// NewMIDIWriter creates a writer with 480 ticks per quarter note on channel
// 0 at velocity 100.
func NewMIDIWriter() *MIDIWriter {
	return &MIDIWriter{
		ticksPerQuarter: DefaultTicksPerQuarter,
		channel:         0,
		velocity:        DefaultVelocity,
	}
}

// Encode renders track as a single-track SMF: name, tempo and 4/4 meter
// first, then a note-on/note-off pair per note. Rests only advance time.
func (m *MIDIWriter) Encode(track Track) ([]byte, error) {
	if len(track.Notes) != len(track.Durations) {
		return nil, fmt.Errorf("track has %d notes but %d durations", len(track.Notes), len(track.Durations))
	}

	tempo := track.Tempo
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	name := track.Name
	if name == "" {
		name = DefaultTrackName
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(m.ticksPerQuarter)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(name))
	tr.Add(0, smf.MetaTempo(tempo))
	tr.Add(0, smf.MetaMeter(4, 4))

	var pending uint32
	for i, note := range track.Notes {
		d := track.Durations[i]
		if d <= 0 {
			return nil, fmt.Errorf("non-positive duration %v at %d", d, i)
		}
		ticks := m.ticks(d)

		if note.IsRest() {
			pending += ticks
			continue
		}
		key, err := note.MIDI()
		if err != nil {
			return nil, fmt.Errorf("note %d: %w", i, err)
		}

		tr.Add(pending, midi.NoteOn(m.channel, key, m.velocity))
		tr.Add(ticks, midi.NoteOff(m.channel, key))
		pending = 0
	}

	tr.Close(pending)

	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *MIDIWriter) ticks(beats float64) uint32 {
	t := math.Round(beats * float64(m.ticksPerQuarter))
	if t < 1 {
		return 1
	}
	return uint32(t)
}

// WriteFile encodes track and writes it atomically to filename.
func (m *MIDIWriter) WriteFile(track Track, filename string) error {
	data, err := m.Encode(track)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(filename, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

type span struct {
	start, end int64
	key        uint8
	seq        int // note-on arrival across all tracks
}

// Decode extracts a monophonic line from MIDI data. Notes from all tracks
// are merged by start time; a note starting while another still sounds is
// dropped, and silence between notes becomes a rest. The first tempo event
// sets Track.Tempo.
func (m *MIDIWriter) Decode(data []byte) (*Track, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	tpq := float64(DefaultTicksPerQuarter)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		tpq = float64(mt.Resolution())
	}

	track := &Track{Name: DefaultTrackName, Tempo: DefaultTempo}
	tempoSet := false

	var spans []span
	seq := 0
	for _, tr := range s.Tracks {
		var tick int64
		open := make(map[uint8]span)
		for _, ev := range tr {
			tick += int64(ev.Delta)
			msg := ev.Message

			// Tempo meta event: FF 51 03 tt tt tt
			if !tempoSet && len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				usPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if usPerBeat > 0 {
					track.Tempo = math.Round(60000000.0/float64(usPerBeat)*100) / 100
					tempoSet = true
				}
				continue
			}

			if len(msg) < 3 {
				continue
			}
			status, key, velocity := msg[0], msg[1], msg[2]
			switch {
			case status >= 0x90 && status <= 0x9F && velocity > 0:
				if _, sounding := open[key]; !sounding {
					open[key] = span{start: tick, key: key, seq: seq}
					seq++
				}
			case (status >= 0x80 && status <= 0x8F) || (status >= 0x90 && status <= 0x9F):
				if sp, sounding := open[key]; sounding {
					sp.end = tick
					spans = append(spans, sp)
					delete(open, key)
				}
			}
		}
	}

	if len(spans) == 0 {
		return nil, errors.New("no notes found in MIDI data")
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].seq < spans[j].seq
	})

	cursor := spans[0].start
	for _, sp := range spans {
		if sp.start < cursor || sp.end <= sp.start {
			continue
		}
		if gap := sp.start - cursor; gap > 0 {
			track.Notes = append(track.Notes, melody.Rest)
			track.Durations = append(track.Durations, float64(gap)/tpq)
		}
		track.Notes = append(track.Notes, melody.NoteFromMIDI(sp.key))
		track.Durations = append(track.Durations, float64(sp.end-sp.start)/tpq)
		cursor = sp.end
	}
	return track, nil
}

// ReadFile reads and decodes a MIDI file.
func (m *MIDIWriter) ReadFile(filename string) (*Track, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return m.Decode(data)
}

// ReadMelody reads a MIDI file and turns it into a source melody named after
// the file.
func (m *MIDIWriter) ReadMelody(filename string) (melody.Melody, error) {
	track, err := m.ReadFile(filename)
	if err != nil {
		return melody.Melody{}, err
	}
	return track.Melody(filename), nil
}

// Melody converts a decoded track into a melody. The name is derived from
// filename: extension stripped, lower-cased, spaces replaced by dashes.
func (t Track) Melody(filename string) melody.Melody {
	title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "-")
	if name == "" {
		name = "imported"
	}
	return melody.Melody{
		Name:      name,
		Title:     title,
		Notes:     append([]melody.Note(nil), t.Notes...),
		Durations: append([]float64(nil), t.Durations...),
		Tempo:     t.Tempo,
	}
}
