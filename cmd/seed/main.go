// Seed creates the schema and fills the load board with demo data. It is
// destructive: existing loads, bookings, call logs and call events are
// dropped first.
package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carrierdesk/backend/internal/config"
	"github.com/carrierdesk/backend/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS loads (
	load_id           TEXT PRIMARY KEY,
	origin            TEXT NOT NULL,
	destination       TEXT NOT NULL,
	pickup_datetime   TIMESTAMPTZ NOT NULL,
	delivery_datetime TIMESTAMPTZ NOT NULL,
	equipment_type    TEXT NOT NULL,
	loadboard_rate    DOUBLE PRECISION NOT NULL CHECK (loadboard_rate > 0),
	notes             TEXT NOT NULL DEFAULT '',
	weight            DOUBLE PRECISION NOT NULL,
	commodity_type    TEXT NOT NULL,
	num_of_pieces     INTEGER NOT NULL,
	miles             DOUBLE PRECISION NOT NULL,
	dimensions        TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'available',
	booked_mc_number  TEXT,
	booked_rate       DOUBLE PRECISION,
	booked_at         TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bookings (
	id            TEXT PRIMARY KEY,
	load_id       TEXT NOT NULL REFERENCES loads(load_id),
	mc_number     TEXT NOT NULL,
	agreed_rate   DOUBLE PRECISION NOT NULL,
	original_rate DOUBLE PRECISION NOT NULL,
	booked_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS call_logs (
	call_id             TEXT PRIMARY KEY,
	mc_number           TEXT,
	carrier_name        TEXT,
	load_id             TEXT,
	outcome             TEXT NOT NULL,
	sentiment           TEXT,
	initial_offer       DOUBLE PRECISION,
	final_rate          DOUBLE PRECISION,
	negotiation_rounds  INTEGER NOT NULL DEFAULT 0,
	negotiation_history JSONB,
	duration_seconds    INTEGER,
	transcript          JSONB,
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS call_events (
	id         TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := log.Level(zerolog.InfoLevel).With().Str("service", "carrierdesk-seed").Logger()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	if _, err := store.Pool.Exec(ctx, schema); err != nil {
		logger.Fatal().Err(err).Msg("schema creation failed")
	}
	if _, err := store.Pool.Exec(ctx, `TRUNCATE bookings, call_logs, call_events, loads`); err != nil {
		logger.Fatal().Err(err).Msg("truncate failed")
	}

	loads := db.SeedLoads(time.Now().UTC())
	inserted, err := store.InsertLoads(ctx, loads)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed insert failed")
	}
	logger.Info().Int64("loads", inserted).Msg("seed complete")
}
