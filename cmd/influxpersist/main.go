package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/timzifer/influxpersist/config"
	"github.com/timzifer/influxpersist/internal/logging"
	"github.com/timzifer/influxpersist/persistence"
	"github.com/timzifer/influxpersist/plugin"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to optional .env file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and state file and exit")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatal().Err(err).Msg("failed to load environment")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := plugin.New(ctx, plugin.WithConfig(cfg), plugin.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create plugin")
	}
	defer p.Close()

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("plugin stopped with error")
	}
}

func executeConfigCheck(cfg *config.Config) int {
	state, err := persistence.LoadFile(cfg.StateFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "state file invalid: %v\n", err)
		return 1
	}
	fmt.Printf("Page: /%s\n", cfg.PageName)
	fmt.Printf("State file: %s\n", cfg.StateFile)
	fmt.Printf("  Endpoint: %s\n", state.Connection.Endpoint)
	fmt.Printf("  Database: %s\n", state.Connection.Database)
	fmt.Printf("  Records: %d\n", len(state.Records))
	fmt.Println("Configuration check completed successfully.")
	return 0
}
