package main

import (
	"errors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"io/fs"
	"meetmate-worker/cmd"
	"meetmate-worker/config"
	"os"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Msg("failed to read .env")
	}

	path, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}

	root := cmd.Root(cfg)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Send()
	}
}
