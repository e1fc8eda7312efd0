// Package main is the entry point for markov2midi CLI
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/james-see/markov2midi/pkg/api"
	"github.com/james-see/markov2midi/pkg/composer"
	"github.com/james-see/markov2midi/pkg/config"
	"github.com/james-see/markov2midi/pkg/export"
	"github.com/james-see/markov2midi/pkg/markov"
	"github.com/james-see/markov2midi/pkg/melody"
	"github.com/james-see/markov2midi/pkg/tui"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfg *config.Config

	melodyName string
	inputFile  string
	ordersFlag string
	length     int
	count      int
	seed       uint64
	rhythmFlag string
	policyFlag string
	outputDir  string
	baseName   string
	tempo      float64
	quiet      bool
	noFiles    bool
	modelOrder int
	serverPort int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "markov2midi",
	Short: "Generate melodies with variable-order Markov chains",
	Long: `markov2midi trains Markov chains of several orders on a source melody,
samples new melodies from them, compares their note distributions with the
source and writes everything as MIDI files.

Defaults come from MARKOV2MIDI_* environment variables or a .env file.

Examples:
  markov2midi generate -m au-clair-de-la-lune --orders 1,2,3 -n 40
  markov2midi generate -i tune.mid --seed 42 -o out/
  markov2midi model -m marseillaise --order 2
  markov2midi melodies
  markov2midi tui
  markov2midi serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()
		var err error
		cfg, err = config.Load()
		return err
	},
	SilenceUsage: true,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Train, generate, compare and export",
	Long: `Builds a model for every order, samples variations seeded with the first
notes of the source, prints the analysis and writes the source and every
variation as MIDI files.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var melodiesCmd = &cobra.Command{
	Use:   "melodies",
	Short: "List built-in melodies",
	Args:  cobra.NoArgs,
	RunE:  runMelodies,
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Print the transition table of a melody",
	Args:  cobra.NoArgs,
	RunE:  runModel,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Source flags shared by generate and model
	for _, c := range []*cobra.Command{generateCmd, modelCmd} {
		c.Flags().StringVarP(&melodyName, "melody", "m", "au-clair-de-la-lune", "Built-in melody name")
		c.Flags().StringVarP(&inputFile, "input", "i", "", "Monophonic MIDI file to use as source")
	}

	// Generation flags shared by generate and tui
	for _, c := range []*cobra.Command{generateCmd, tuiCmd} {
		c.Flags().StringVar(&ordersFlag, "orders", "", "Comma separated Markov orders (default from MARKOV2MIDI_ORDERS)")
		c.Flags().IntVarP(&length, "length", "n", 0, "Notes per generated melody")
		c.Flags().IntVarP(&count, "count", "c", 0, "Melodies per order")
		c.Flags().Uint64VarP(&seed, "seed", "s", 0, "Random seed")
		c.Flags().StringVar(&rhythmFlag, "rhythm", "", "Duration mode: random or markov")
		c.Flags().StringVar(&policyFlag, "policy", "", "Unseen context policy: fallback or stop")
		c.Flags().StringVarP(&outputDir, "out-dir", "o", "", "Directory for MIDI files")
	}

	// generate command
	generateCmd.Flags().StringVar(&baseName, "base", "", "File name prefix (default derived from melody name)")
	generateCmd.Flags().Float64Var(&tempo, "tempo", 0, "Override the source tempo in BPM")
	generateCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the analysis")
	generateCmd.Flags().BoolVar(&noFiles, "no-files", false, "Do not write MIDI files")

	// model command
	modelCmd.Flags().IntVar(&modelOrder, "order", 1, "Markov order")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default from MARKOV2MIDI_PORT)")

	// Add commands
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(melodiesCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadSource resolves --input or --melody into a source melody.
func loadSource(lib *melody.Library) (melody.Melody, error) {
	if inputFile == "" {
		return lib.Get(melodyName)
	}
	if export.DetectFormat(inputFile) != export.FormatMIDI {
		return melody.Melody{}, fmt.Errorf("%s is not a MIDI file", inputFile)
	}
	return export.NewMIDIWriter().ReadMelody(inputFile)
}

// generationOptions merges flags over configured defaults.
func generationOptions(cmd *cobra.Command) (tui.Options, error) {
	opts := tui.Options{
		OutputDir: cfg.OutputDir,
		Orders:    cfg.Orders,
		Length:    cfg.Length,
		Count:     cfg.Count,
		Seed:      cfg.Seed,
	}
	flags := cmd.Flags()
	if flags.Changed("orders") {
		orders, err := config.ParseOrders(ordersFlag)
		if err != nil {
			return opts, err
		}
		opts.Orders = orders
	}
	if flags.Changed("length") {
		opts.Length = length
	}
	if flags.Changed("count") {
		opts.Count = count
	}
	if flags.Changed("seed") {
		opts.Seed = seed
	}
	if flags.Changed("out-dir") {
		opts.OutputDir = outputDir
	}

	rhythm := cfg.Rhythm
	if flags.Changed("rhythm") {
		rhythm = rhythmFlag
	}
	var err error
	if opts.Rhythm, err = melody.ParseRhythmMode(rhythm); err != nil {
		return opts, err
	}
	policy := cfg.Policy
	if flags.Changed("policy") {
		policy = policyFlag
	}
	if opts.Policy, err = markov.ParsePolicy(policy); err != nil {
		return opts, err
	}
	return opts, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	opts, err := generationOptions(cmd)
	if err != nil {
		return err
	}
	src, err := loadSource(melody.Builtin())
	if err != nil {
		return err
	}
	if tempo > 0 {
		src.Tempo = tempo
	}

	comp := composer.New(cfg.NewLogger())
	res, err := comp.Compose(composer.Request{
		Source: src,
		Orders: opts.Orders,
		Length: opts.Length,
		Count:  opts.Count,
		Seed:   opts.Seed,
		Rhythm: opts.Rhythm,
		Policy: opts.Policy,
	})
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("Source: %s (%d notes, %.0f BPM)\n", src.Title, len(src.Notes), src.Tempo)
		if err := res.Report(os.Stdout); err != nil {
			return err
		}
	}
	if noFiles {
		return nil
	}

	files, err := comp.WriteFiles(res, opts.OutputDir, baseName)
	if err != nil {
		return err
	}
	fmt.Printf("\nWrote %d MIDI files:\n", len(files))
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

func runMelodies(cmd *cobra.Command, args []string) error {
	lib := melody.Builtin()
	for _, name := range lib.Names() {
		m, err := lib.Get(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-22s %-28s %3d notes  %.0f BPM\n", m.Name, m.Title, len(m.Notes), m.Tempo)
	}
	return nil
}

func runModel(cmd *cobra.Command, args []string) error {
	src, err := loadSource(melody.Builtin())
	if err != nil {
		return err
	}
	model, err := markov.Build(src.Notes, modelOrder)
	if err != nil {
		return err
	}

	fmt.Printf("Order %d model of %s: %d states, %d distinct notes\n", model.Order(), src.Title, model.Len(), len(model.Vocabulary()))
	for _, ctx := range model.Contexts() {
		trs, _ := model.Transitions(ctx)
		label := strings.Join(melody.Strings(ctx), " ")
		if label == "" {
			label = "(start)"
		}
		parts := make([]string, 0, len(trs))
		for _, t := range trs {
			parts = append(parts, fmt.Sprintf("%s %.2f", t.Note, t.Prob))
		}
		fmt.Printf("  %-16s -> %s\n", label, strings.Join(parts, ", "))
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	opts, err := generationOptions(cmd)
	if err != nil {
		return err
	}
	return tui.Run(melody.Builtin(), opts)
}

func runServe(cmd *cobra.Command, args []string) error {
	port := cfg.Port
	if cmd.Flags().Changed("port") {
		port = serverPort
	}
	api.SetMode(cfg.IsProduction())
	fmt.Printf("Starting API server on port %d...\n", port)
	return api.StartServer(port, melody.Builtin(), cfg.NewLogger())
}
