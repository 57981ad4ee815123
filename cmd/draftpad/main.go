// Command draftpad runs the notes backend HTTP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/draftpad/draftpad/pkg/draftpad"
)

func main() {
	config := draftpad.DefaultConfig()
	flag.StringVar(&config.ServerPort, "port", config.ServerPort, "HTTP listen port")
	flag.StringVar(&config.PostgresDSN, "postgres-dsn", config.PostgresDSN, "PostgreSQL DSN; empty selects the in-memory store")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	var logger zerolog.Logger
	if *pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := draftpad.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer app.Close()

	if err := app.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
