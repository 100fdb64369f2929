// Command cycle runs a single fetch, generate and publish pass and exits.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"trendbot/internal/app"
	"trendbot/internal/bot"
	"trendbot/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRENDBOT_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// no web surface here
	cfg.Server.Addr = ""
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	a, err := app.New(context.Background(), cfg, os.Stdout)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	rep := a.Cycle.Run(context.Background())
	a.Close()

	if rep.Outcome != bot.OutcomePosted && rep.Outcome != bot.OutcomeNoSnippets {
		os.Exit(1)
	}
}
