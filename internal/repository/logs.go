package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/septivank/compost-logbook/internal/db"
)

const logsTable = "compost_logs"

var logColumns = []string{
	"id",
	"log_date",
	"log_time::text",
	"location_id",
	"location_name",
	"activity",
	"weight_kg::float8",
	"COALESCE(email_ciphertext, '')",
	"COALESCE(email_hash, '')",
	"device_id",
}

// InsertLog stores a log and returns its id
func (r *Repository) InsertLog(ctx context.Context, log *db.LogEntry) (int64, error) {
	query := `
		INSERT INTO compost_logs (
			log_date, log_time, location_id, location_name, activity,
			weight_kg, email_ciphertext, email_hash, device_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := r.q.QueryRow(ctx, query,
		log.Date,
		log.Time,
		log.LocationID,
		log.LocationName,
		string(log.Activity),
		log.WeightKg,
		nullable(log.EmailCiphertext),
		nullable(log.EmailHash),
		log.DeviceID,
	).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to insert log: %w", err)
	}

	return id, nil
}

// QueryByLocationAndDateRange returns the logs between from and to
// inclusive, newest first. An empty exact selector matches nothing.
func (r *Repository) QueryByLocationAndDateRange(ctx context.Context, sel db.LocationSelector, from, to time.Time) ([]db.LogEntry, error) {
	if sel.IsEmpty() {
		return nil, nil
	}

	query := r.sb.Select(logColumns...).
		From(logsTable).
		Where(squirrel.GtOrEq{"log_date": from}).
		Where(squirrel.LtOrEq{"log_date": to})
	if !sel.IsUnrestricted() {
		query = query.Where(squirrel.Eq{"location_id": sel.IDs()})
	}
	query = query.OrderBy("log_date DESC", "log_time DESC", "id DESC")

	return r.selectLogs(ctx, query)
}

// AllLogs returns every log in insertion order
func (r *Repository) AllLogs(ctx context.Context) ([]db.LogEntry, error) {
	query := r.sb.Select(logColumns...).
		From(logsTable).
		OrderBy("id ASC")

	return r.selectLogs(ctx, query)
}

// ListByEmailHash returns the logs submitted with the given email, newest first
func (r *Repository) ListByEmailHash(ctx context.Context, emailHash string) ([]db.LogEntry, error) {
	query := r.sb.Select(logColumns...).
		From(logsTable).
		Where(squirrel.Eq{"email_hash": emailHash}).
		OrderBy("log_date DESC", "log_time DESC", "id DESC")

	return r.selectLogs(ctx, query)
}

func (r *Repository) selectLogs(ctx context.Context, query squirrel.SelectBuilder) ([]db.LogEntry, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build log query: %w", err)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []db.LogEntry
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return logs, nil
}

func scanLog(row pgx.Row) (db.LogEntry, error) {
	var (
		log      db.LogEntry
		activity string
	)
	err := row.Scan(
		&log.ID,
		&log.Date,
		&log.Time,
		&log.LocationID,
		&log.LocationName,
		&activity,
		&log.WeightKg,
		&log.EmailCiphertext,
		&log.EmailHash,
		&log.DeviceID,
	)
	if err != nil {
		return db.LogEntry{}, fmt.Errorf("failed to scan log: %w", err)
	}
	log.Activity = db.Activity(activity)
	return log, nil
}
