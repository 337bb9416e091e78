package report

import (
	"context"
	"fmt"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/tools/timeparser"
)

// LogListing is every stored log, newest first
type LogListing struct {
	Total int         `json:"total"`
	Logs  []ListedLog `json:"logs"`
}

// ListedLog is a log as shown to administrators. The email is masked, or
// one of the privacy labels.
type ListedLog struct {
	ID           int64       `json:"id"`
	Date         string      `json:"date"`
	Time         string      `json:"time"`
	LocationID   int64       `json:"location_id"`
	LocationName string      `json:"location_name"`
	Activity     db.Activity `json:"activity"`
	WeightKg     float64     `json:"weight_kg"`
	Email        string      `json:"email"`
	DeviceID     string      `json:"device_id"`
}

// ListLogs returns all logs ordered by date, time and id, all descending
func (s *Service) ListLogs(ctx context.Context) (*LogListing, error) {
	logs, err := s.store.AllLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	SortNewestFirst(logs)

	listing := &LogListing{
		Total: len(logs),
		Logs:  make([]ListedLog, 0, len(logs)),
	}
	for i := range logs {
		log := &logs[i]
		listing.Logs = append(listing.Logs, ListedLog{
			ID:           log.ID,
			Date:         timeparser.FormatDate(log.Date),
			Time:         log.Time,
			LocationID:   log.LocationID,
			LocationName: log.LocationName,
			Activity:     log.Activity,
			WeightKg:     log.WeightKg,
			Email:        s.identities.MaskedEmail(log),
			DeviceID:     log.DeviceID,
		})
	}
	return listing, nil
}
