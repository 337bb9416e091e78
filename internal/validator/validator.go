package validator

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/tools/timeparser"
)

// ErrValidation is wrapped by every ValidationError
var ErrValidation = errors.New("validation failed")

// MaxDeviceIDLength matches the device_id column width
const MaxDeviceIDLength = 50

// FieldError describes a single invalid field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field errors
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// LogInput is a log submission as entered by a visitor
type LogInput struct {
	LocationID   int64
	LocationName string
	Activity     string
	WeightKg     float64
	Email        string
	DeviceID     string
}

// ValidateLog checks a log submission
func ValidateLog(in LogInput) error {
	verr := &ValidationError{}

	if in.LocationID <= 0 {
		verr.add("location_id", "must be positive")
	}
	if strings.TrimSpace(in.LocationName) == "" {
		verr.add("location_name", "is required")
	}
	if !db.Activity(in.Activity).Valid() {
		verr.add("activity", "must be input or output")
	}
	if in.WeightKg <= 0 {
		verr.add("weight_kg", "must be greater than zero")
	}
	switch {
	case in.DeviceID == "":
		verr.add("device_id", "is required")
	case len(in.DeviceID) > MaxDeviceIDLength:
		verr.add("device_id", fmt.Sprintf("must be at most %d characters", MaxDeviceIDLength))
	}
	if email := strings.TrimSpace(in.Email); email != "" && !validEmail(email) {
		verr.add("email", "is not a valid address")
	}

	return verr.errOrNil()
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	return strings.Contains(domain, ".")
}

// Period choices
const (
	PeriodAll   = "all"
	PeriodRange = "range"
)

// Location choices
const (
	LocationsAll        = "all"
	LocationsIDs        = "ids"
	LocationsCategories = "categories"
)

// ReportInput is a report creation request
type ReportInput struct {
	Period    string
	DateFrom  string
	DateTo    string
	Locations string
	IDs       []int64
	Terms     []db.TermRef
}

// ReportCriteria is a validated report request
type ReportCriteria struct {
	DateFrom       time.Time
	DateTo         time.Time
	LocationFilter db.LocationFilter
}

// ValidateReport checks a report request and resolves its bounds and filter.
// The "all" period maps to the open sentinel bounds.
func ValidateReport(in ReportInput) (ReportCriteria, error) {
	verr := &ValidationError{}
	var criteria ReportCriteria

	switch in.Period {
	case PeriodAll:
		criteria.DateFrom, criteria.DateTo = timeparser.OpenStart, timeparser.OpenEnd
	case PeriodRange:
		criteria.DateFrom = parseDate(verr, "date_from", in.DateFrom)
		criteria.DateTo = parseDate(verr, "date_to", in.DateTo)
		if !criteria.DateFrom.IsZero() && !criteria.DateTo.IsZero() && criteria.DateFrom.After(criteria.DateTo) {
			verr.add("date_from", "must not be after date_to")
		}
	default:
		verr.add("period", "must be all or range")
	}

	switch in.Locations {
	case LocationsAll:
		criteria.LocationFilter = db.AllLocations{}
	case LocationsIDs:
		if len(in.IDs) == 0 {
			verr.add("ids", "select at least one location")
		}
		for _, id := range in.IDs {
			if id <= 0 {
				verr.add("ids", "location ids must be positive")
				break
			}
		}
		criteria.LocationFilter = db.LocationIDSet{IDs: dedupe(in.IDs)}
	case LocationsCategories:
		if len(in.Terms) == 0 {
			verr.add("terms", "select at least one category")
		}
		for _, term := range in.Terms {
			if strings.TrimSpace(term.Taxonomy) == "" || term.TermID <= 0 {
				verr.add("terms", "each term needs a taxonomy and a positive term id")
				break
			}
		}
		criteria.LocationFilter = db.CategoryFilter{Terms: in.Terms}
	default:
		verr.add("locations", "must be all, ids or categories")
	}

	if err := verr.errOrNil(); err != nil {
		return ReportCriteria{}, err
	}
	return criteria, nil
}

func parseDate(verr *ValidationError, field, value string) time.Time {
	if value == "" {
		verr.add(field, "is required for a date range")
		return time.Time{}
	}
	t, err := timeparser.ParseReportDate(value)
	if err != nil {
		verr.add(field, "must be formatted YYYY-MM-DD")
		return time.Time{}
	}
	return t
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
