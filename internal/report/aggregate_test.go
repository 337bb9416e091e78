package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/identity"
)

// prefixDecrypter accepts ciphertexts of the form "enc:<email>"
type prefixDecrypter struct{}

func (prefixDecrypter) Decrypt(ciphertext string) (string, error) {
	if plain, ok := strings.CutPrefix(ciphertext, "enc:"); ok {
		return plain, nil
	}
	return "", errors.New("bad ciphertext")
}

func newIdentities() *identity.Resolver {
	return identity.NewResolver(prefixDecrypter{}, zap.NewNop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func entry(id, location int64, name string, activity db.Activity, kg float64, device, email string) db.LogEntry {
	log := db.LogEntry{
		ID:           id,
		Date:         day(2024, 4, int(id)),
		Time:         "12:00:00",
		LocationID:   location,
		LocationName: name,
		Activity:     activity,
		WeightKg:     kg,
		DeviceID:     device,
	}
	if email != "" {
		log.EmailCiphertext = "enc:" + email
	}
	return log
}

func fiveLogs() []db.LogEntry {
	return []db.LogEntry{
		entry(1, 1, "A", db.ActivityInput, 2, "d1", ""),
		entry(2, 1, "A", db.ActivityOutput, 1, "d1", ""),
		entry(3, 2, "B", db.ActivityInput, 3, "d2", "a@x.com"),
		entry(4, 2, "B", db.ActivityOutput, 4, "d2", ""),
		entry(5, 1, "A", db.ActivityInput, 1, "d3", "a@x.com"),
	}
}

func TestAggregate_FiveLogExample(t *testing.T) {
	identities := newIdentities()
	logs := fiveLogs()
	mapping := identities.BuildMapping(logs)

	result := NewAggregator(identities).Aggregate(logs, mapping.DeviceToEmail, nil)

	assert.Equal(t, Totals{
		Total:             5,
		InputCount:        3,
		OutputCount:       2,
		TotalInputWeight:  6,
		TotalOutputWeight: 5,
		UniqueUsers:       2,
	}, result.Totals)
	assert.Equal(t, []string{"A", "B"}, result.LocationNames)
	assert.Equal(t, "A", result.MostActiveLocationName)
	assert.False(t, result.GroupedByCategory)

	require.Len(t, result.Locations, 2)
	a, b := result.Locations[0], result.Locations[1]
	assert.Equal(t, int64(1), a.LocationID)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 2, a.UniqueUsers) // d1 anonymous, d3 via a@x.com
	assert.Equal(t, []LogRow{
		{Date: "2024-04-01", Time: "12:00:00", Activity: db.ActivityInput, WeightKg: 2},
		{Date: "2024-04-02", Time: "12:00:00", Activity: db.ActivityOutput, WeightKg: 1},
		{Date: "2024-04-05", Time: "12:00:00", Activity: db.ActivityInput, WeightKg: 1},
	}, a.Logs)
	assert.Equal(t, int64(2), b.LocationID)
	assert.Equal(t, 2, b.Total)
	assert.Equal(t, 1, b.UniqueUsers)
	assert.Equal(t, []LogRow{
		{Date: "2024-04-03", Time: "12:00:00", Activity: db.ActivityInput, WeightKg: 3},
		{Date: "2024-04-04", Time: "12:00:00", Activity: db.ActivityOutput, WeightKg: 4},
	}, b.Logs)
	assert.Equal(t, result.Total, result.InputCount+result.OutputCount)
}

func TestAggregate_Empty(t *testing.T) {
	identities := newIdentities()

	result := NewAggregator(identities).Aggregate(nil, nil, &CategoryIndex{})

	assert.Equal(t, Totals{}, result.Totals)
	assert.Empty(t, result.LocationNames)
	assert.Empty(t, result.MostActiveLocationName)
	assert.True(t, result.GroupedByCategory)
	assert.Empty(t, result.Categories)
}

func TestAggregate_LocationTieOrderedByID(t *testing.T) {
	identities := newIdentities()
	logs := []db.LogEntry{
		entry(1, 9, "Z", db.ActivityInput, 1, "d1", ""),
		entry(2, 4, "Y", db.ActivityInput, 1, "d1", ""),
	}

	result := NewAggregator(identities).Aggregate(logs, nil, nil)

	require.Len(t, result.Locations, 2)
	assert.Equal(t, int64(4), result.Locations[0].LocationID)
	assert.Equal(t, int64(9), result.Locations[1].LocationID)
	assert.Equal(t, "Y", result.MostActiveLocationName)
}

func TestAggregate_CategoryFanOut(t *testing.T) {
	identities := newIdentities()
	logs := fiveLogs()
	mapping := identities.BuildMapping(logs)

	north := db.TermRef{Taxonomy: "district", TermID: 10}
	school := db.TermRef{Taxonomy: "type", TermID: 20}
	orphan := db.TermRef{Taxonomy: "type", TermID: 21}
	index := &CategoryIndex{
		Memberships: map[int64][]db.TermRef{
			1: {north, school, north},
			2: {north, orphan},
		},
		Names: map[db.TermRef]string{north: "North", school: "School"},
	}

	result := NewAggregator(identities).Aggregate(logs, mapping.DeviceToEmail, index)

	assert.True(t, result.GroupedByCategory)
	assert.Nil(t, result.Locations)
	require.Len(t, result.Categories, 3)

	// North holds both locations once each
	assert.Equal(t, "North", result.Categories[0].TermName)
	assert.Equal(t, 5, result.Categories[0].Total)
	require.Len(t, result.Categories[0].Locations, 2)
	assert.Equal(t, int64(1), result.Categories[0].Locations[0].LocationID)
	assert.Len(t, result.Categories[0].Locations[0].Logs, 3)
	assert.Len(t, result.Categories[0].Locations[1].Logs, 2)

	assert.Equal(t, "School", result.Categories[1].TermName)
	assert.Equal(t, 3, result.Categories[1].Total)
	require.Len(t, result.Categories[1].Locations, 1)
	assert.Equal(t, result.Categories[0].Locations[0].Logs, result.Categories[1].Locations[0].Logs)

	assert.Equal(t, UnknownName, result.Categories[2].TermName)
	assert.Equal(t, 2, result.Categories[2].Total)

	// fan-out makes category totals exceed the grand total
	sum := 0
	for _, c := range result.Categories {
		sum += c.Total
	}
	assert.Greater(t, sum, result.Total)
}

func TestAggregate_CategoryTieOrderedByTaxonomyThenTerm(t *testing.T) {
	identities := newIdentities()
	logs := []db.LogEntry{entry(1, 1, "A", db.ActivityInput, 1, "d1", "")}

	index := &CategoryIndex{
		Memberships: map[int64][]db.TermRef{1: {
			{Taxonomy: "type", TermID: 2},
			{Taxonomy: "district", TermID: 7},
			{Taxonomy: "district", TermID: 3},
		}},
	}

	result := NewAggregator(identities).Aggregate(logs, nil, index)

	require.Len(t, result.Categories, 3)
	assert.Equal(t, db.TermRef{Taxonomy: "district", TermID: 3}, db.TermRef{Taxonomy: result.Categories[0].Taxonomy, TermID: result.Categories[0].TermID})
	assert.Equal(t, int64(7), result.Categories[1].TermID)
	assert.Equal(t, "type", result.Categories[2].Taxonomy)
}

func TestAggregate_Idempotent(t *testing.T) {
	identities := newIdentities()
	logs := fiveLogs()
	mapping := identities.BuildMapping(logs)
	agg := NewAggregator(identities)

	first := agg.Aggregate(logs, mapping.DeviceToEmail, nil)
	second := agg.Aggregate(logs, mapping.DeviceToEmail, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, fiveLogs(), logs)
}

// countingDecrypter counts Decrypt calls
type countingDecrypter struct {
	prefixDecrypter
	calls int
}

func (c *countingDecrypter) Decrypt(ciphertext string) (string, error) {
	c.calls++
	return c.prefixDecrypter.Decrypt(ciphertext)
}

func TestAggregate_DecryptsEachEmailOnce(t *testing.T) {
	logs := fiveLogs()
	logs = append(logs, entry(6, 2, "B", db.ActivityInput, 1, "d4", "b@x.com"))

	term := db.TermRef{Taxonomy: "district", TermID: 10}
	index := &CategoryIndex{
		Memberships: map[int64][]db.TermRef{1: {term}, 2: {term}},
		Names:       map[db.TermRef]string{term: "North"},
	}

	mapping := newIdentities().BuildMapping(logs)

	dec := &countingDecrypter{}
	result := NewAggregator(identity.NewResolver(dec, zap.NewNop())).Aggregate(logs, mapping.DeviceToEmail, index)

	// a@x.com is stored on two logs but shares one ciphertext
	assert.Equal(t, 2, dec.calls)
	assert.Equal(t, 3, result.UniqueUsers)
	require.Len(t, result.Categories, 1)
	assert.Equal(t, 3, result.Categories[0].UniqueUsers)
}
