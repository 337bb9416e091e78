package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/septivank/compost-logbook/internal/db"
)

// LogStore reads logs from storage
type LogStore interface {
	QueryByLocationAndDateRange(ctx context.Context, sel db.LocationSelector, from, to time.Time) ([]db.LogEntry, error)
	AllLogs(ctx context.Context) ([]db.LogEntry, error)
}

// Fetcher fetches the logs a report covers
type Fetcher struct {
	store LogStore
}

// NewFetcher creates a new log fetcher
func NewFetcher(store LogStore) *Fetcher {
	return &Fetcher{store: store}
}

// FetchLogs returns logs matching sel with a date in [from, to], ordered by
// date, time and id, all descending
func (f *Fetcher) FetchLogs(ctx context.Context, sel db.LocationSelector, from, to time.Time) ([]db.LogEntry, error) {
	if sel.IsEmpty() {
		return nil, nil
	}

	logs, err := f.store.QueryByLocationAndDateRange(ctx, sel, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs: %w", err)
	}

	SortNewestFirst(logs)
	return logs, nil
}

// SortNewestFirst orders logs by date, time and id, all descending
func SortNewestFirst(logs []db.LogEntry) {
	slices.SortStableFunc(logs, func(a, b db.LogEntry) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if c := strings.Compare(b.Time, a.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
