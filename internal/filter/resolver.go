package filter

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/db"
)

// Taxonomy answers category membership questions
type Taxonomy interface {
	LocationsForTerms(ctx context.Context, taxonomy string, termIDs []int64) ([]int64, error)
}

// Resolver turns a stored location filter into a concrete selector
type Resolver struct {
	taxonomy Taxonomy
	logger   *zap.Logger
}

// NewResolver creates a new filter resolver
func NewResolver(taxonomy Taxonomy, logger *zap.Logger) *Resolver {
	return &Resolver{
		taxonomy: taxonomy,
		logger:   logger,
	}
}

// Resolve maps a location filter to the locations it currently covers.
// A category filter is evaluated against today's memberships; matching
// nothing yields an empty set, not an error.
func (r *Resolver) Resolve(ctx context.Context, f db.LocationFilter) (db.LocationSelector, error) {
	switch v := f.(type) {
	case db.AllLocations:
		return db.Unrestricted(), nil
	case db.LocationIDSet:
		return db.ExactSet(v.IDs), nil
	case db.CategoryFilter:
		return r.resolveCategories(ctx, v.Terms)
	default:
		return db.LocationSelector{}, fmt.Errorf("unsupported location filter %T", f)
	}
}

func (r *Resolver) resolveCategories(ctx context.Context, terms []db.TermRef) (db.LocationSelector, error) {
	var taxonomies []string
	byTaxonomy := make(map[string][]int64)
	for _, term := range terms {
		if _, ok := byTaxonomy[term.Taxonomy]; !ok {
			taxonomies = append(taxonomies, term.Taxonomy)
		}
		byTaxonomy[term.Taxonomy] = append(byTaxonomy[term.Taxonomy], term.TermID)
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for _, taxonomy := range taxonomies {
		locations, err := r.taxonomy.LocationsForTerms(ctx, taxonomy, byTaxonomy[taxonomy])
		if err != nil {
			return db.LocationSelector{}, fmt.Errorf("failed to resolve %s terms: %w", taxonomy, err)
		}
		for _, id := range locations {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	if len(ids) == 0 {
		r.logger.Info("category filter matches no locations", zap.Int("terms", len(terms)))
	}
	return db.ExactSet(ids), nil
}
