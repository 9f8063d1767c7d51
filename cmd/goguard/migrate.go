package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goGuard/config"
	"github.com/MrEthical07/goGuard/store/pgstore"
)

// migrate prints the schema, or with apply creates it. With prune it deletes
// attempt records past the retention instead.
func migrate(s *config.Settings, apply, prune bool, log zerolog.Logger) error {
	if !apply && !prune {
		_, err := fmt.Fprint(os.Stdout, pgstore.Schema)
		return err
	}
	if s.Postgres.URL == "" {
		return errors.New("postgres url is required to apply the schema or prune")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgstore.Open(ctx, s.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if prune {
		cfg, err := s.EngineConfig()
		if err != nil {
			return err
		}
		return pruneAttempts(ctx, pgstore.NewCounter(pool), s.AttemptRetention(cfg), log)
	}
	if err := pgstore.New(pool).Migrate(ctx); err != nil {
		return err
	}
	log.Info().Msg("schema applied")
	return nil
}
