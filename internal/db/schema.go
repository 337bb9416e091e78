package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of a pool needed to run DDL
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS compost_logs (
		id               BIGSERIAL PRIMARY KEY,
		log_date         DATE NOT NULL,
		log_time         TIME NOT NULL,
		location_id      BIGINT NOT NULL,
		location_name    VARCHAR(255) NOT NULL,
		activity         VARCHAR(16) NOT NULL CHECK (activity IN ('input', 'output')),
		weight_kg        NUMERIC(10,2) NOT NULL CHECK (weight_kg >= 0),
		email_ciphertext TEXT,
		email_hash       CHAR(64),
		device_id        VARCHAR(50) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS compost_logs_date_idx ON compost_logs (log_date)`,
	`CREATE INDEX IF NOT EXISTS compost_logs_location_idx ON compost_logs (location_id)`,
	`CREATE INDEX IF NOT EXISTS compost_logs_device_idx ON compost_logs (device_id)`,
	`CREATE INDEX IF NOT EXISTS compost_logs_email_hash_idx ON compost_logs (email_hash)`,
	`CREATE TABLE IF NOT EXISTS compost_reports (
		id              BIGSERIAL PRIMARY KEY,
		date_created    DATE NOT NULL,
		date_from       DATE NOT NULL,
		date_to         DATE NOT NULL,
		location_filter JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS taxonomy_terms (
		taxonomy VARCHAR(64) NOT NULL,
		term_id  BIGINT NOT NULL,
		name     VARCHAR(255) NOT NULL,
		PRIMARY KEY (taxonomy, term_id)
	)`,
	`CREATE TABLE IF NOT EXISTS location_terms (
		location_id BIGINT NOT NULL,
		taxonomy    VARCHAR(64) NOT NULL,
		term_id     BIGINT NOT NULL,
		PRIMARY KEY (location_id, taxonomy, term_id)
	)`,
	`CREATE INDEX IF NOT EXISTS location_terms_term_idx ON location_terms (taxonomy, term_id)`,
}

// EnsureSchema creates the logbook tables and indexes if they are missing
func EnsureSchema(ctx context.Context, conn Execer) error {
	for _, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
