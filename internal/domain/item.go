package domain

import "time"

// Attributes is the flat record describing one release in a collection.
type Attributes struct {
	Title   string    `json:"title" yaml:"title"`
	Creator string    `json:"creator" yaml:"creator"`
	Year    int       `json:"year,omitempty" yaml:"year,omitempty"`
	Formats []string  `json:"formats,omitempty" yaml:"formats,omitempty"`
	Labels  []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	AddedAt time.Time `json:"added_at" yaml:"added_at"`
	Rating  string    `json:"rating,omitempty" yaml:"rating,omitempty"`
}

// CatalogItem is a cached collection entry.
// ExternalID identifies the release instance on the remote service and is
// unique within one owner's cache. ID is local and survives refreshes.
type CatalogItem struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"external_id"`
	Attributes Attributes `json:"attributes"`
	CachedAt   time.Time  `json:"cached_at"`
}

// MetricKey identifies an item for externally sourced annotations such as
// play counts, which are keyed by what the item is rather than by its ID.
type MetricKey struct {
	Creator string
	Title   string
}

// Key returns the metric key for the item.
func (c CatalogItem) Key() MetricKey {
	return MetricKey{Creator: c.Attributes.Creator, Title: c.Attributes.Title}
}

// LatestAddedAt returns the newest acquisition timestamp among items,
// or the zero time for an empty slice.
func LatestAddedAt(items []CatalogItem) time.Time {
	var latest time.Time
	for _, it := range items {
		if it.Attributes.AddedAt.After(latest) {
			latest = it.Attributes.AddedAt
		}
	}
	return latest
}
