// Package main is the entry point for the markov2midi API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-see/markov2midi/pkg/api"
	"github.com/james-see/markov2midi/pkg/config"
	"github.com/james-see/markov2midi/pkg/melody"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.Port, "Server port")
	flag.Parse()

	api.SetMode(cfg.IsProduction())

	fmt.Printf("Starting markov2midi API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(*port, melody.Builtin(), cfg.NewLogger()); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
