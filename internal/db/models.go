package db

import (
	"time"
)

// Activity is what happened at the compost location
type Activity string

const (
	// ActivityInput means green waste was added
	ActivityInput Activity = "input"
	// ActivityOutput means compost was harvested
	ActivityOutput Activity = "output"
)

// Valid reports whether a is a known activity
func (a Activity) Valid() bool {
	return a == ActivityInput || a == ActivityOutput
}

// LogEntry represents a compost log in the database. Rows are append-only.
type LogEntry struct {
	ID              int64
	Date            time.Time // calendar day, midnight UTC
	Time            string    // HH:MM:SS local to the logbook time zone
	LocationID      int64
	LocationName    string // snapshot taken at submission
	Activity        Activity
	WeightKg        float64
	EmailCiphertext string // empty when no email was given
	EmailHash       string // empty when no email was given
	DeviceID        string
}

// ReportSpec represents a saved report in the database. Reports are
// never updated after creation.
type ReportSpec struct {
	ID             int64
	DateCreated    time.Time
	DateFrom       time.Time
	DateTo         time.Time
	LocationFilter LocationFilter
}

// LocationFilter selects the locations a report covers. It is one of
// AllLocations, LocationIDSet or CategoryFilter.
type LocationFilter interface {
	isLocationFilter()
}

// AllLocations covers every location
type AllLocations struct{}

// LocationIDSet covers an explicit list of locations
type LocationIDSet struct {
	IDs []int64
}

// CategoryFilter covers every location currently carrying any of the
// terms. Membership is resolved when the report is viewed.
type CategoryFilter struct {
	Terms []TermRef
}

// TermRef identifies a category term within a taxonomy
type TermRef struct {
	Taxonomy string `json:"taxonomy"`
	TermID   int64  `json:"term_id"`
}

func (AllLocations) isLocationFilter()   {}
func (LocationIDSet) isLocationFilter()  {}
func (CategoryFilter) isLocationFilter() {}

// LocationSelector is a resolved location restriction
type LocationSelector struct {
	unrestricted bool
	ids          []int64
}

// Unrestricted selects every location
func Unrestricted() LocationSelector {
	return LocationSelector{unrestricted: true}
}

// ExactSet selects exactly the given locations. An empty set selects nothing.
func ExactSet(ids []int64) LocationSelector {
	return LocationSelector{ids: append([]int64(nil), ids...)}
}

// IsUnrestricted reports whether no location predicate applies
func (s LocationSelector) IsUnrestricted() bool {
	return s.unrestricted
}

// IsEmpty reports whether the selector can match no location at all
func (s LocationSelector) IsEmpty() bool {
	return !s.unrestricted && len(s.ids) == 0
}

// IDs returns a copy of the selected location ids
func (s LocationSelector) IDs() []int64 {
	return append([]int64(nil), s.ids...)
}
