package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	_ = godotenv.Load() // best-effort: .env is optional

	if err := Execute(); err != nil {
		log.Fatal().Err(err).Msg("pair-trader exited with error")
	}
}
