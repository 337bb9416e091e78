package db

import (
	"encoding/json"
	"fmt"
)

const (
	filterKindAll        = "all"
	filterKindIDs        = "ids"
	filterKindCategories = "categories"
)

type filterDocument struct {
	Kind  string    `json:"kind"`
	IDs   []int64   `json:"ids,omitempty"`
	Terms []TermRef `json:"terms,omitempty"`
}

// EncodeLocationFilter serializes a filter for the location_filter column
func EncodeLocationFilter(f LocationFilter) ([]byte, error) {
	var doc filterDocument
	switch v := f.(type) {
	case AllLocations:
		doc.Kind = filterKindAll
	case LocationIDSet:
		doc.Kind = filterKindIDs
		doc.IDs = v.IDs
	case CategoryFilter:
		doc.Kind = filterKindCategories
		doc.Terms = v.Terms
	default:
		return nil, fmt.Errorf("unsupported location filter %T", f)
	}
	return json.Marshal(doc)
}

// DecodeLocationFilter parses the location_filter column
func DecodeLocationFilter(data []byte) (LocationFilter, error) {
	var doc filterDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode location filter: %w", err)
	}

	switch doc.Kind {
	case filterKindAll:
		return AllLocations{}, nil
	case filterKindIDs:
		return LocationIDSet{IDs: doc.IDs}, nil
	case filterKindCategories:
		return CategoryFilter{Terms: doc.Terms}, nil
	default:
		return nil, fmt.Errorf("unknown location filter kind %q", doc.Kind)
	}
}
