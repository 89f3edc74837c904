// Package fixture serves collections from a YAML export instead of the
// network. It backs offline use of the CLI and demos.
package fixture

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmcdole/crate/internal/domain"
)

// File is the on-disk layout:
//
//	collections:
//	  alice:
//	    - external_id: "1001"
//	      title: Homogenic
//	      creator: Björk
//	      year: 1997
//	      formats: [Vinyl]
//	      added_at: 2024-05-01T10:00:00Z
//	play_counts:
//	  - creator: Björk
//	    title: Homogenic
//	    count: 37
type File struct {
	Collections map[string][]Release `yaml:"collections"`
	PlayCounts  []PlayCount          `yaml:"play_counts"`
}

// Release is one collection entry.
type Release struct {
	ExternalID        string `yaml:"external_id"`
	domain.Attributes `yaml:",inline"`
}

// PlayCount is one play-count annotation.
type PlayCount struct {
	Creator string `yaml:"creator"`
	Title   string `yaml:"title"`
	Count   int    `yaml:"count"`
}

// Fetcher implements domain.RemoteFetcher and domain.PlayCountSource over
// an in-memory copy of a fixture file.
type Fetcher struct {
	collections map[string][]domain.CatalogItem // newest first
	counts      map[domain.MetricKey]int
}

// Load reads a fixture file.
func Load(path string) (*Fetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML.
func Parse(data []byte) (*Fetcher, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	fx := &Fetcher{
		collections: make(map[string][]domain.CatalogItem, len(f.Collections)),
		counts:      make(map[domain.MetricKey]int, len(f.PlayCounts)),
	}
	for owner, releases := range f.Collections {
		items := make([]domain.CatalogItem, 0, len(releases))
		for i, r := range releases {
			if r.ExternalID == "" {
				return nil, fmt.Errorf("parse fixture: %s release %d has no external_id", owner, i+1)
			}
			items = append(items, domain.CatalogItem{ExternalID: r.ExternalID, Attributes: r.Attributes})
		}
		slices.SortStableFunc(items, func(a, b domain.CatalogItem) int {
			return b.Attributes.AddedAt.Compare(a.Attributes.AddedAt)
		})
		fx.collections[owner] = items
	}
	for _, pc := range f.PlayCounts {
		fx.counts[countKey(domain.MetricKey{Creator: pc.Creator, Title: pc.Title})] = pc.Count
	}
	return fx, nil
}

func countKey(k domain.MetricKey) domain.MetricKey {
	return domain.MetricKey{Creator: strings.ToLower(k.Creator), Title: strings.ToLower(k.Title)}
}

// Owners lists the owners present in the fixture.
func (f *Fetcher) Owners() []string {
	owners := make([]string, 0, len(f.collections))
	for o := range f.collections {
		owners = append(owners, o)
	}
	slices.Sort(owners)
	return owners
}

// FetchPage returns one page of the owner's collection, newest first.
// Unknown owners have an empty collection.
func (f *Fetcher) FetchPage(ctx context.Context, ownerID string, page, pageSize int) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}
	if page < 1 || pageSize < 1 {
		return domain.Page{}, fmt.Errorf("invalid page %d of size %d", page, pageSize)
	}

	items := f.collections[ownerID]
	total := (len(items) + pageSize - 1) / pageSize
	lo := min((page-1)*pageSize, len(items))
	hi := min(lo+pageSize, len(items))
	return domain.Page{Items: slices.Clone(items[lo:hi]), TotalPages: max(total, 1)}, nil
}

// FetchItemsSince returns items added at or after since.
func (f *Fetcher) FetchItemsSince(ctx context.Context, ownerID string, since time.Time) ([]domain.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.CatalogItem
	for _, it := range f.collections[ownerID] {
		if it.Attributes.AddedAt.Before(since) {
			break
		}
		out = append(out, it)
	}
	return out, nil
}

// PlayCount returns the fixture's count for key, or 0.
func (f *Fetcher) PlayCount(ctx context.Context, key domain.MetricKey) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.counts[countKey(key)], nil
}
