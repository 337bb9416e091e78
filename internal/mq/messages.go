package mq

import "time"

// LogSubmission is a compost log as entered on a location's form
type LogSubmission struct {
	LocationID   int64   `json:"location_id"`
	LocationName string  `json:"location_name"`
	Activity     string  `json:"activity"`
	WeightKg     float64 `json:"weight_kg"`
	Email        string  `json:"email,omitempty"`
	DeviceID     string  `json:"device_id"`
}

// SubmittedMessage is published on the ingest exchange for every accepted request
type SubmittedMessage struct {
	RequestID  string        `json:"request_id"`
	ReceivedAt time.Time     `json:"received_at"`
	Submission LogSubmission `json:"submission"`
}

// LogAcceptedEvent is published after a log has been stored
type LogAcceptedEvent struct {
	LogID      int64   `json:"log_id"`
	RequestID  string  `json:"request_id"`
	LocationID int64   `json:"location_id"`
	Activity   string  `json:"activity"`
	WeightKg   float64 `json:"weight_kg"`
	LogDate    string  `json:"log_date"`
	LogTime    string  `json:"log_time"`
	HasEmail   bool    `json:"has_email"`
}
