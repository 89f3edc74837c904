// Package query filters, searches, sorts and windows a collection snapshot.
//
// Recompute is a pure function of its inputs plus the current time (for the
// date-added buckets). It copies the input slice before doing any work, so a
// caller may hand it a slice that is replaced concurrently.
package query

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/crate/internal/domain"
)

// MetricLookup supplies the play-count annotation for externalMetric sorts.
// It must not block.
type MetricLookup interface {
	Lookup(key domain.MetricKey) int
}

// Engine evaluates query states against item snapshots.
type Engine struct {
	metrics MetricLookup
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for the date-added buckets.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. A nil metrics lookup treats every play count
// as zero.
func NewEngine(metrics MetricLookup, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{metrics: metrics, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize validates state and fills in defaults: sort by date added and
// the sort key's natural direction.
func Normalize(state domain.QueryState) (domain.QueryState, error) {
	switch state.Sort {
	case "":
		state.Sort = domain.SortDateAdded
	case domain.SortCreator, domain.SortTitle, domain.SortYear, domain.SortDateAdded, domain.SortExternalMetric:
	default:
		return state, &domain.ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown key %q", state.Sort)}
	}

	switch state.Direction {
	case "":
		state.Direction = domain.DefaultDirection(state.Sort)
	case domain.SortAsc, domain.SortDesc:
	default:
		return state, &domain.ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", state.Direction)}
	}

	f := state.Filters
	if f.YearMin < 0 || f.YearMax < 0 {
		return state, &domain.ValidationError{Field: "year", Reason: "must not be negative"}
	}
	if f.YearMin > 0 && f.YearMax > 0 && f.YearMin > f.YearMax {
		return state, &domain.ValidationError{Field: "year", Reason: fmt.Sprintf("range %d-%d is inverted", f.YearMin, f.YearMax)}
	}

	switch f.Added {
	case domain.AddedAny, domain.AddedWeek, domain.AddedMonth, domain.AddedQuarter, domain.AddedYear:
	default:
		return state, &domain.ValidationError{Field: "added", Reason: fmt.Sprintf("unknown bucket %q", f.Added)}
	}

	if state.WindowSize < 0 {
		return state, &domain.ValidationError{Field: "window", Reason: "must not be negative"}
	}
	return state, nil
}

// AddedCutoff returns the earliest acquisition time inside bucket relative
// to now, or the zero time for AddedAny.
func AddedCutoff(bucket domain.AddedBucket, now time.Time) time.Time {
	switch bucket {
	case domain.AddedWeek:
		return now.AddDate(0, 0, -7)
	case domain.AddedMonth:
		return now.AddDate(0, -1, 0)
	case domain.AddedQuarter:
		return now.AddDate(0, -3, 0)
	case domain.AddedYear:
		return now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}

// row carries the precomputed sort keys of one item.
type row struct {
	item    domain.CatalogItem
	title   string
	creator string
	metric  int
}

// Recompute filters, searches and sorts items for state. The result is
// independent of later changes to items.
func (e *Engine) Recompute(items []domain.CatalogItem, state domain.QueryState) (*View, error) {
	state, err := Normalize(state)
	if err != nil {
		return nil, err
	}

	snapshot := slices.Clone(items)
	now := e.now()
	cutoff := AddedCutoff(state.Filters.Added, now)
	formats := formatSet(state.Filters.Formats)
	search := compileSearch(state.Search)

	rows := make([]row, 0, len(snapshot))
	for _, it := range snapshot {
		if !matchFilters(it, state.Filters, formats, cutoff) {
			continue
		}
		if !search.empty() && !search.match(newHaystack(it)) {
			continue
		}
		r := row{
			item:    it,
			title:   strings.ToLower(it.Attributes.Title),
			creator: strings.ToLower(it.Attributes.Creator),
		}
		if state.Sort == domain.SortExternalMetric && e.metrics != nil {
			r.metric = e.metrics.Lookup(it.Key())
		}
		rows = append(rows, r)
	}

	slices.SortFunc(rows, compareRows(state.Sort, state.Direction))

	out := make([]domain.CatalogItem, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}

	e.logger.Debug("query recomputed", "input", len(snapshot), "matched", len(out),
		"sort", state.Sort, "direction", state.Direction, "search", state.Search)
	return &View{State: state, Items: out}, nil
}

func formatSet(formats []string) map[string]struct{} {
	if len(formats) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		set[strings.ToLower(f)] = struct{}{}
	}
	return set
}

func matchFilters(it domain.CatalogItem, f domain.Filters, formats map[string]struct{}, cutoff time.Time) bool {
	if formats != nil {
		found := false
		for _, have := range it.Attributes.Formats {
			if _, ok := formats[strings.ToLower(have)]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.YearMin > 0 && it.Attributes.Year < f.YearMin {
		return false
	}
	if f.YearMax > 0 && (it.Attributes.Year == 0 || it.Attributes.Year > f.YearMax) {
		return false
	}
	if !cutoff.IsZero() && it.Attributes.AddedAt.Before(cutoff) {
		return false
	}
	return true
}

// compareRows orders by the primary key in dir, then by date added
// (newest first), then by ExternalID. The result is a total order so equal
// inputs always sort the same way.
func compareRows(key domain.SortKey, dir domain.SortDirection) func(a, b row) int {
	primary := func(a, b row) int {
		switch key {
		case domain.SortCreator:
			return cmp.Compare(a.creator, b.creator)
		case domain.SortTitle:
			return cmp.Compare(a.title, b.title)
		case domain.SortYear:
			return cmp.Compare(a.item.Attributes.Year, b.item.Attributes.Year)
		case domain.SortExternalMetric:
			return cmp.Compare(a.metric, b.metric)
		default:
			return a.item.Attributes.AddedAt.Compare(b.item.Attributes.AddedAt)
		}
	}

	return func(a, b row) int {
		c := primary(a, b)
		if dir == domain.SortDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
		if c := b.item.Attributes.AddedAt.Compare(a.item.Attributes.AddedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.item.ExternalID, b.item.ExternalID)
	}
}
