package report

import (
	"cmp"
	"slices"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/identity"
	"github.com/septivank/compost-logbook/tools/timeparser"
)

// UnknownName is shown for terms or locations without a known name
const UnknownName = "unknown"

// UserCounter counts unique users over subsets of one report's logs
type UserCounter interface {
	DecryptEmails(logs []db.LogEntry) identity.Emails
	CountWithEmails(logs []db.LogEntry, emails identity.Emails, deviceToEmail map[string]string) int
}

// Totals are the statistics of a group of logs
type Totals struct {
	Total             int     `json:"total"`
	InputCount        int     `json:"input_count"`
	OutputCount       int     `json:"output_count"`
	TotalInputWeight  float64 `json:"total_input_weight"`
	TotalOutputWeight float64 `json:"total_output_weight"`
	UniqueUsers       int     `json:"unique_users"`
}

// LogRow is one log as listed under its location
type LogRow struct {
	Date     string      `json:"date"`
	Time     string      `json:"time"`
	Activity db.Activity `json:"activity"`
	WeightKg float64     `json:"weight_kg"`
}

// LocationGroup holds the totals and logs of one location
type LocationGroup struct {
	LocationID   int64    `json:"location_id"`
	LocationName string   `json:"location_name"`
	Logs         []LogRow `json:"logs"`
	Totals
}

// CategoryGroup holds the totals of one category term and its locations
type CategoryGroup struct {
	Taxonomy  string          `json:"taxonomy"`
	TermID    int64           `json:"term_id"`
	TermName  string          `json:"term_name"`
	Locations []LocationGroup `json:"locations"`
	Totals
}

// Result is a fully aggregated report
type Result struct {
	Totals
	LocationNames          []string        `json:"location_names"`
	MostActiveLocationName string          `json:"most_active_location_name"`
	GroupedByCategory      bool            `json:"grouped_by_category"`
	Locations              []LocationGroup `json:"locations,omitempty"`
	Categories             []CategoryGroup `json:"categories,omitempty"`
}

// CategoryIndex is the category membership of the locations in a report.
// A location may belong to several selected terms.
type CategoryIndex struct {
	Memberships map[int64][]db.TermRef
	Names       map[db.TermRef]string
}

// Aggregator computes report results
type Aggregator struct {
	counter UserCounter
}

// NewAggregator creates a new aggregator
func NewAggregator(counter UserCounter) *Aggregator {
	return &Aggregator{counter: counter}
}

// Aggregate computes totals and the breakdown for logs. Unique users are
// always resolved against the global deviceToEmail mapping. With a nil
// index logs are grouped by location, otherwise by category then location.
func (a *Aggregator) Aggregate(logs []db.LogEntry, deviceToEmail map[string]string, index *CategoryIndex) Result {
	users := userScope{
		emails:        a.counter.DecryptEmails(logs),
		deviceToEmail: deviceToEmail,
	}
	result := Result{
		Totals:            a.totals(logs, users),
		LocationNames:     locationNames(logs),
		GroupedByCategory: index != nil,
	}

	buckets := partitionByLocation(logs)
	result.MostActiveLocationName = mostActive(buckets)

	if index == nil {
		result.Locations = a.locationGroups(buckets, users)
		return result
	}

	result.Categories = a.categoryGroups(buckets, index, users)
	return result
}

// userScope is the identity data shared by every group of one report
type userScope struct {
	emails        identity.Emails
	deviceToEmail map[string]string
}

func (a *Aggregator) totals(logs []db.LogEntry, users userScope) Totals {
	t := Totals{Total: len(logs)}
	for i := range logs {
		switch logs[i].Activity {
		case db.ActivityInput:
			t.InputCount++
			t.TotalInputWeight += logs[i].WeightKg
		case db.ActivityOutput:
			t.OutputCount++
			t.TotalOutputWeight += logs[i].WeightKg
		}
	}
	t.UniqueUsers = a.counter.CountWithEmails(logs, users.emails, users.deviceToEmail)
	return t
}

// locationBucket holds the logs of one location in query order
type locationBucket struct {
	id   int64
	name string
	logs []db.LogEntry
}

// partitionByLocation groups logs by location id, ordered by id. The
// bucket name is the snapshot of the first log seen.
func partitionByLocation(logs []db.LogEntry) []*locationBucket {
	byID := make(map[int64]*locationBucket)
	var buckets []*locationBucket
	for _, log := range logs {
		b, ok := byID[log.LocationID]
		if !ok {
			name := log.LocationName
			if name == "" {
				name = UnknownName
			}
			b = &locationBucket{id: log.LocationID, name: name}
			byID[log.LocationID] = b
			buckets = append(buckets, b)
		}
		b.logs = append(b.logs, log)
	}
	slices.SortFunc(buckets, func(x, y *locationBucket) int {
		return cmp.Compare(x.id, y.id)
	})
	return buckets
}

func mostActive(buckets []*locationBucket) string {
	var best *locationBucket
	for _, b := range buckets {
		if best == nil || len(b.logs) > len(best.logs) {
			best = b
		}
	}
	if best == nil {
		return ""
	}
	return best.name
}

func locationNames(logs []db.LogEntry) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, log := range logs {
		if log.LocationName == "" {
			continue
		}
		if _, ok := seen[log.LocationName]; ok {
			continue
		}
		seen[log.LocationName] = struct{}{}
		names = append(names, log.LocationName)
	}
	slices.Sort(names)
	return names
}

func (a *Aggregator) locationGroups(buckets []*locationBucket, users userScope) []LocationGroup {
	groups := make([]LocationGroup, 0, len(buckets))
	for _, b := range buckets {
		groups = append(groups, LocationGroup{
			LocationID:   b.id,
			LocationName: b.name,
			Logs:         logRows(b.logs),
			Totals:       a.totals(b.logs, users),
		})
	}
	// buckets are already in id order, so a stable sort keeps equal counts by id
	slices.SortStableFunc(groups, func(x, y LocationGroup) int {
		return cmp.Compare(y.Total, x.Total)
	})
	return groups
}

func logRows(logs []db.LogEntry) []LogRow {
	rows := make([]LogRow, 0, len(logs))
	for _, log := range logs {
		rows = append(rows, LogRow{
			Date:     timeparser.FormatDate(log.Date),
			Time:     log.Time,
			Activity: log.Activity,
			WeightKg: log.WeightKg,
		})
	}
	return rows
}

func (a *Aggregator) categoryGroups(buckets []*locationBucket, index *CategoryIndex, users userScope) []CategoryGroup {
	byTerm := make(map[db.TermRef][]*locationBucket)
	var terms []db.TermRef
	for _, b := range buckets {
		for _, term := range uniqueTerms(index.Memberships[b.id]) {
			if _, ok := byTerm[term]; !ok {
				terms = append(terms, term)
			}
			byTerm[term] = append(byTerm[term], b)
		}
	}

	groups := make([]CategoryGroup, 0, len(terms))
	for _, term := range terms {
		members := byTerm[term]

		var logs []db.LogEntry
		for _, b := range members {
			logs = append(logs, b.logs...)
		}

		name, ok := index.Names[term]
		if !ok || name == "" {
			name = UnknownName
		}

		groups = append(groups, CategoryGroup{
			Taxonomy:  term.Taxonomy,
			TermID:    term.TermID,
			TermName:  name,
			Locations: a.locationGroups(members, users),
			Totals:    a.totals(logs, users),
		})
	}

	slices.SortFunc(groups, func(x, y CategoryGroup) int {
		if c := cmp.Compare(y.Total, x.Total); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Taxonomy, y.Taxonomy); c != 0 {
			return c
		}
		return cmp.Compare(x.TermID, y.TermID)
	})
	return groups
}

func uniqueTerms(terms []db.TermRef) []db.TermRef {
	seen := make(map[db.TermRef]struct{}, len(terms))
	out := make([]db.TermRef, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
