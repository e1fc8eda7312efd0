// Package tui provides a terminal user interface for markov2midi
package tui

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/markov2midi/pkg/composer"
	"github.com/james-see/markov2midi/pkg/export"
	"github.com/james-see/markov2midi/pkg/markov"
	"github.com/james-see/markov2midi/pkg/melody"
	"github.com/james-see/markov2midi/pkg/stats"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(acidGreen)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateGenerating
	StateResult
)

type action int

const (
	actionMelody action = iota
	actionImport
	actionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Melody      string
	action      action
}

// Options are the generation settings used for every run started from the
// menu.
type Options struct {
	OutputDir string
	Orders    []int
	Length    int
	Count     int
	Seed      uint64
	Rhythm    melody.RhythmMode
	Policy    markov.Policy
}

// Model represents the TUI model
type Model struct {
	state        State
	menuIndex    int
	menuItems    []MenuItem
	library      *melody.Library
	composer     *composer.Composer
	writer       *export.MIDIWriter
	opts         Options
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	source       string
	result       *composer.Result
	files        []string
	err          error
	width        int
	height       int
}

// generationDoneMsg signals that a composition run finished
type generationDoneMsg struct {
	result *composer.Result
	files  []string
	err    error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model over library
func New(library *melody.Library, opts Options) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	// The alt screen owns the terminal, so composer logs are dropped.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return Model{
		state:      StateMenu,
		menuItems:  buildMenu(library),
		library:    library,
		composer:   composer.New(logger),
		writer:     export.NewMIDIWriter(),
		opts:       opts,
		filePicker: fp,
		spinner:    s,
	}
}

func buildMenu(library *melody.Library) []MenuItem {
	var items []MenuItem
	for _, name := range library.Names() {
		mel, err := library.Get(name)
		if err != nil {
			continue
		}
		items = append(items, MenuItem{
			Title:       mel.Title,
			Description: fmt.Sprintf("Generate variations of %s (%d notes)", mel.Name, len(mel.Notes)),
			Melody:      mel.Name,
			action:      actionMelody,
		})
	}
	items = append(items,
		MenuItem{Title: "Import MIDI file", Description: "Use a monophonic .mid file as the source melody", action: actionImport},
		MenuItem{Title: "Exit", Description: "Exit the application", action: actionExit},
	)
	return items
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The file picker needs to receive every message while it is shown.
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.source = filepath.Base(path)
			m.state = StateGenerating
			return m, tea.Batch(m.spinner.Tick, m.importAndGenerate(path))
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case generationDoneMsg:
		m.state = StateResult
		m.result = msg.result
		m.files = msg.files
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(m.menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		item := m.menuItems[m.menuIndex]
		switch item.action {
		case actionExit:
			return m, tea.Quit
		case actionImport:
			m.state = StateFilePicker
			return m, m.filePicker.Init()
		default:
			m.source = item.Title
			m.state = StateGenerating
			return m, tea.Batch(m.spinner.Tick, m.generate(item.Melody))
		}
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.result = nil
		m.files = nil
		m.selectedFile = ""
		m.source = ""
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) generate(name string) tea.Cmd {
	return func() tea.Msg {
		src, err := m.library.Get(name)
		if err != nil {
			return generationDoneMsg{err: err}
		}
		return m.run(src)
	}
}

func (m Model) importAndGenerate(path string) tea.Cmd {
	return func() tea.Msg {
		src, err := m.writer.ReadMelody(path)
		if err != nil {
			return generationDoneMsg{err: err}
		}
		return m.run(src)
	}
}

func (m Model) run(src melody.Melody) generationDoneMsg {
	res, err := m.composer.Compose(composer.Request{
		Source: src,
		Orders: m.opts.Orders,
		Length: m.opts.Length,
		Count:  m.opts.Count,
		Seed:   m.opts.Seed,
		Rhythm: m.opts.Rhythm,
		Policy: m.opts.Policy,
	})
	if err != nil {
		return generationDoneMsg{err: err}
	}
	files, err := m.composer.WriteFiles(res, m.opts.OutputDir, "")
	return generationDoneMsg{result: res, files: files, err: err}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateGenerating:
		s.WriteString(m.viewGenerating())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MELODY "))
	s.WriteString("\n\n")

	for i, item := range m.menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(acidYellow).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewGenerating() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" GENERATING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Training on %s...\n", m.spinner.View(), m.source))
	s.WriteString(statusStyle.Render(fmt.Sprintf("  orders %v • %d notes • %d per order", m.opts.Orders, m.opts.Length, m.opts.Count)))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Generation failed: %s", m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render(fmt.Sprintf("✓ Wrote %d MIDI files", len(m.files))))
		s.WriteString("\n\n")
		for _, f := range m.files {
			s.WriteString(fmt.Sprintf("  %s\n", filepath.Base(f)))
		}
		if m.result != nil {
			s.WriteString("\n")
			s.WriteString(distributionView("Source", m.result.Distribution))
			for _, a := range m.result.Analyses {
				s.WriteString("\n")
				label := fmt.Sprintf("Order %d • %d states • divergence %.4f", a.Order, a.States, a.Divergence)
				s.WriteString(distributionView(label, a.Mean))
			}
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func distributionView(label string, d stats.Distribution[melody.Note]) string {
	var s strings.Builder
	s.WriteString(statusStyle.UnsetPaddingTop().Render(label))
	s.WriteString("\n")
	for _, n := range d.Notes() {
		s.WriteString(fmt.Sprintf("  %-3s %.2f %s\n", n, d[n], barStyle.Render(stats.Bar(d[n]))))
	}
	return s.String()
}

func asciiLogo() string {
	logo := `
                      _              ____            _     _ _
  _ __ ___   __ _ _ __| | _______   _|___ \ _ __ ___ (_) __| (_)
 | '_ ` + "`" + ` _ \ / _` + "`" + ` | '__| |/ / _ \ \ / / __) | '_ ` + "`" + ` _ \| |/ _` + "`" + ` | |
 | | | | | | (_| | |  |   < (_) \ V / / __/| | | | | | | (_| | |
 |_| |_| |_|\__,_|_|  |_|\_\___/ \_/ |_____|_| |_| |_|_|\__,_|_|
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(library *melody.Library, opts Options) error {
	p := tea.NewProgram(New(library, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
