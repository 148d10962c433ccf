package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"trivia-live/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("trivia")
		os.Exit(1)
	}
}
