// cmd/dbtools/seed/main.go
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/seed"
)

func main() {
	var (
		dbPath   = flag.String("db", "", "Path to SQLite database")
		seedPath = flag.String("file", "config/seed.yaml", "Seed file with courts and members")
		verbose  = flag.Bool("v", false, "Log every inserted row")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *dbPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *seedPath).Msg("Failed to read seed file")
	}

	database, err := db.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open database")
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	summary, err := seed.Load(ctx, database, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Int("courts", summary.Courts).Int("members", summary.Members).Msg("Seed complete")
}
