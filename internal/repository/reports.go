package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/septivank/compost-logbook/internal/db"
)

// CreateReport stores a report spec and returns its id
func (r *Repository) CreateReport(ctx context.Context, spec *db.ReportSpec) (int64, error) {
	filter, err := db.EncodeLocationFilter(spec.LocationFilter)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO compost_reports (date_created, date_from, date_to, location_filter)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err = r.q.QueryRow(ctx, query,
		spec.DateCreated,
		spec.DateFrom,
		spec.DateTo,
		string(filter),
	).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to create report: %w", err)
	}

	return id, nil
}

// GetReport loads a report spec by id
func (r *Repository) GetReport(ctx context.Context, id int64) (*db.ReportSpec, error) {
	query := `
		SELECT id, date_created, date_from, date_to, location_filter::text
		FROM compost_reports
		WHERE id = $1
	`

	spec, err := scanReport(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// ListReports returns all report specs, newest first
func (r *Repository) ListReports(ctx context.Context) ([]db.ReportSpec, error) {
	query := `
		SELECT id, date_created, date_from, date_to, location_filter::text
		FROM compost_reports
		ORDER BY id DESC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var specs []db.ReportSpec
	for rows.Next() {
		spec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return specs, nil
}

func scanReport(row pgx.Row) (*db.ReportSpec, error) {
	var (
		spec   db.ReportSpec
		filter string
	)
	err := row.Scan(&spec.ID, &spec.DateCreated, &spec.DateFrom, &spec.DateTo, &filter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	spec.LocationFilter, err = db.DecodeLocationFilter([]byte(filter))
	if err != nil {
		return nil, fmt.Errorf("report %d: %w", spec.ID, err)
	}
	return &spec, nil
}
