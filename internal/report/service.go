package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/identity"
	"github.com/septivank/compost-logbook/internal/logging"
	"github.com/septivank/compost-logbook/internal/privacy"
	"github.com/septivank/compost-logbook/internal/repository"
	"github.com/septivank/compost-logbook/internal/validator"
	"github.com/septivank/compost-logbook/tools/timeparser"
)

var (
	// ErrNotFound is returned for unknown reports or emails without logs
	ErrNotFound = repository.ErrNotFound
	// ErrValidation is wrapped by rejected report requests
	ErrValidation = validator.ErrValidation
)

// Store is the storage the report service needs
type Store interface {
	LogStore
	ListByEmailHash(ctx context.Context, emailHash string) ([]db.LogEntry, error)
	CreateReport(ctx context.Context, spec *db.ReportSpec) (int64, error)
	GetReport(ctx context.Context, id int64) (*db.ReportSpec, error)
	ListReports(ctx context.Context) ([]db.ReportSpec, error)
}

// Taxonomy answers category questions
type Taxonomy interface {
	TermsForLocation(ctx context.Context, locationID int64, taxonomy string) ([]int64, error)
	TermName(ctx context.Context, taxonomy string, termID int64) (string, error)
}

// LocationResolver resolves a stored filter to locations
type LocationResolver interface {
	Resolve(ctx context.Context, f db.LocationFilter) (db.LocationSelector, error)
}

// Summary describes a saved report
type Summary struct {
	ID          int64        `json:"id"`
	DateCreated string       `json:"date_created"`
	DateFrom    string       `json:"date_from"`
	DateTo      string       `json:"date_to"`
	Locations   string       `json:"locations"`
	IDs         []int64      `json:"ids,omitempty"`
	Terms       []db.TermRef `json:"terms,omitempty"`
}

// View is a rendered report
type View struct {
	Report     Summary `json:"report"`
	PeriodFrom string  `json:"period_from"`
	PeriodTo   string  `json:"period_to"`
	Result     Result  `json:"result"`
}

// EmailView is the report of everything logged with one email
type EmailView struct {
	Email      string `json:"email"`
	PeriodFrom string `json:"period_from"`
	PeriodTo   string `json:"period_to"`
	Result     Result `json:"result"`
}

// Service creates and renders reports
type Service struct {
	store      Store
	taxonomy   Taxonomy
	locations  LocationResolver
	identities *identity.Resolver
	fetcher    *Fetcher
	aggregator *Aggregator
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates a new report service
func NewService(
	store Store,
	taxonomy Taxonomy,
	locations LocationResolver,
	identities *identity.Resolver,
	loc *time.Location,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      store,
		taxonomy:   taxonomy,
		locations:  locations,
		identities: identities,
		fetcher:    NewFetcher(store),
		aggregator: NewAggregator(identities),
		loc:        loc,
		now:        time.Now,
		logger:     logger,
	}
}

// Create validates and stores a new report. Category terms that no longer
// exist are dropped; a selection left empty is rejected.
func (s *Service) Create(ctx context.Context, in validator.ReportInput) (*db.ReportSpec, error) {
	criteria, err := validator.ValidateReport(in)
	if err != nil {
		return nil, err
	}

	if categories, ok := criteria.LocationFilter.(db.CategoryFilter); ok {
		terms, err := s.existingTerms(ctx, categories.Terms)
		if err != nil {
			return nil, err
		}
		if len(terms) == 0 {
			return nil, &validator.ValidationError{Errors: []validator.FieldError{
				{Field: "terms", Message: "select at least one existing category"},
			}}
		}
		criteria.LocationFilter = db.CategoryFilter{Terms: terms}
	}

	created, _ := timeparser.SplitLocal(s.now(), s.loc)
	spec := &db.ReportSpec{
		DateCreated:    created,
		DateFrom:       criteria.DateFrom,
		DateTo:         criteria.DateTo,
		LocationFilter: criteria.LocationFilter,
	}

	id, err := s.store.CreateReport(ctx, spec)
	if err != nil {
		return nil, err
	}
	spec.ID = id

	logging.WithReportID(s.logger, id).Info("report created",
		zap.String("date_from", timeparser.FormatDate(spec.DateFrom)),
		zap.String("date_to", timeparser.FormatDate(spec.DateTo)),
	)
	return spec, nil
}

func (s *Service) existingTerms(ctx context.Context, terms []db.TermRef) ([]db.TermRef, error) {
	seen := make(map[db.TermRef]struct{}, len(terms))
	var out []db.TermRef
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		_, err := s.taxonomy.TermName(ctx, term.Taxonomy, term.TermID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("dropping unknown term",
				zap.String("taxonomy", term.Taxonomy),
				zap.Int64("term_id", term.TermID),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check term: %w", err)
		}
		out = append(out, term)
	}
	return out, nil
}

// List returns all saved reports, newest first
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	specs, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(specs))
	for _, spec := range specs {
		summaries = append(summaries, Summarize(spec))
	}
	return summaries, nil
}

// View renders a saved report against the current logs and category
// memberships. The identity mapping is rebuilt from the full log history.
func (s *Service) View(ctx context.Context, id int64) (*View, error) {
	logger := logging.WithReportID(s.logger, id)

	spec, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	sel, err := s.locations.Resolve(ctx, spec.LocationFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve locations: %w", err)
	}

	logs, err := s.fetcher.FetchLogs(ctx, sel, spec.DateFrom, spec.DateTo)
	if err != nil {
		return nil, err
	}

	mapping, err := s.mapping(ctx)
	if err != nil {
		return nil, err
	}

	var index *CategoryIndex
	if categories, ok := spec.LocationFilter.(db.CategoryFilter); ok {
		index, err = s.categoryIndex(ctx, categories.Terms, logs)
		if err != nil {
			return nil, err
		}
	}

	result := s.aggregator.Aggregate(logs, mapping.DeviceToEmail, index)
	from, to := timeparser.PeriodLabels(spec.DateFrom, spec.DateTo)

	logger.Info("report rendered",
		zap.Int("logs", result.Total),
		zap.Int("unique_users", result.UniqueUsers),
	)

	return &View{
		Report:     Summarize(*spec),
		PeriodFrom: from,
		PeriodTo:   to,
		Result:     result,
	}, nil
}

// ViewByEmail renders all logs submitted with email, grouped by location.
// The period spans the first and last of those logs.
func (s *Service) ViewByEmail(ctx context.Context, email string) (*EmailView, error) {
	normalized := privacy.NormalizeEmail(email)
	if normalized == "" {
		return nil, &validator.ValidationError{Errors: []validator.FieldError{
			{Field: "email", Message: "is required"},
		}}
	}

	logs, err := s.store.ListByEmailHash(ctx, privacy.Hash(normalized))
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("logs for email: %w", ErrNotFound)
	}
	SortNewestFirst(logs)

	mapping, err := s.mapping(ctx)
	if err != nil {
		return nil, err
	}

	return &EmailView{
		Email:      privacy.MaskEmail(normalized),
		PeriodFrom: timeparser.FormatDate(logs[len(logs)-1].Date),
		PeriodTo:   timeparser.FormatDate(logs[0].Date),
		Result:     s.aggregator.Aggregate(logs, mapping.DeviceToEmail, nil),
	}, nil
}

func (s *Service) mapping(ctx context.Context) (identity.Mapping, error) {
	all, err := s.store.AllLogs(ctx)
	if err != nil {
		return identity.Mapping{}, fmt.Errorf("failed to load log history: %w", err)
	}
	return s.identities.BuildMapping(all), nil
}

// categoryIndex looks up, for every location in logs, which of the
// selected terms it currently carries
func (s *Service) categoryIndex(ctx context.Context, terms []db.TermRef, logs []db.LogEntry) (*CategoryIndex, error) {
	selected := make(map[db.TermRef]struct{}, len(terms))
	seenTaxonomy := make(map[string]struct{})
	var taxonomies []string
	for _, term := range terms {
		selected[term] = struct{}{}
		if _, ok := seenTaxonomy[term.Taxonomy]; !ok {
			seenTaxonomy[term.Taxonomy] = struct{}{}
			taxonomies = append(taxonomies, term.Taxonomy)
		}
	}

	index := &CategoryIndex{
		Memberships: make(map[int64][]db.TermRef),
		Names:       make(map[db.TermRef]string, len(selected)),
	}

	visited := make(map[int64]struct{})
	for _, log := range logs {
		if _, ok := visited[log.LocationID]; ok {
			continue
		}
		visited[log.LocationID] = struct{}{}

		for _, taxonomy := range taxonomies {
			termIDs, err := s.taxonomy.TermsForLocation(ctx, log.LocationID, taxonomy)
			if err != nil {
				return nil, fmt.Errorf("failed to load terms of location %d: %w", log.LocationID, err)
			}
			for _, termID := range termIDs {
				ref := db.TermRef{Taxonomy: taxonomy, TermID: termID}
				if _, ok := selected[ref]; ok {
					index.Memberships[log.LocationID] = append(index.Memberships[log.LocationID], ref)
				}
			}
		}
	}

	for ref := range selected {
		name, err := s.taxonomy.TermName(ctx, ref.Taxonomy, ref.TermID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load term name: %w", err)
		}
		index.Names[ref] = name
	}

	return index, nil
}

// Summarize describes a report spec for display
func Summarize(spec db.ReportSpec) Summary {
	summary := Summary{
		ID:          spec.ID,
		DateCreated: timeparser.FormatDate(spec.DateCreated),
		DateFrom:    timeparser.FormatDate(spec.DateFrom),
		DateTo:      timeparser.FormatDate(spec.DateTo),
	}
	switch f := spec.LocationFilter.(type) {
	case db.AllLocations:
		summary.Locations = validator.LocationsAll
	case db.LocationIDSet:
		summary.Locations = validator.LocationsIDs
		summary.IDs = f.IDs
	case db.CategoryFilter:
		summary.Locations = validator.LocationsCategories
		summary.Terms = f.Terms
	}
	return summary
}
