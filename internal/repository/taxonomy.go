package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// TermsForLocation returns the term ids of taxonomy attached to a location
func (r *Repository) TermsForLocation(ctx context.Context, locationID int64, taxonomy string) ([]int64, error) {
	query := `
		SELECT term_id
		FROM location_terms
		WHERE location_id = $1 AND taxonomy = $2
		ORDER BY term_id
	`

	rows, err := r.q.Query(ctx, query, locationID, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to query location terms: %w", err)
	}
	return collectIDs(rows)
}

// LocationsForTerms returns the locations carrying any of the terms
func (r *Repository) LocationsForTerms(ctx context.Context, taxonomy string, termIDs []int64) ([]int64, error) {
	if len(termIDs) == 0 {
		return nil, nil
	}

	sql, args, err := r.sb.Select("location_id").
		Distinct().
		From("location_terms").
		Where(squirrel.Eq{"taxonomy": taxonomy}).
		Where(squirrel.Eq{"term_id": termIDs}).
		OrderBy("location_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build term query: %w", err)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query term locations: %w", err)
	}
	return collectIDs(rows)
}

// TermName returns the display name of a term
func (r *Repository) TermName(ctx context.Context, taxonomy string, termID int64) (string, error) {
	query := `
		SELECT name
		FROM taxonomy_terms
		WHERE taxonomy = $1 AND term_id = $2
	`

	var name string
	err := r.q.QueryRow(ctx, query, taxonomy, termID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("term %s/%d: %w", taxonomy, termID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query term name: %w", err)
	}

	return name, nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ids, nil
}
