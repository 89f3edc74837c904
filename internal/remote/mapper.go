package remote

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/crate/internal/domain"
)

// artistSuffix matches the disambiguation number some artist names carry,
// e.g. "Nirvana (2)".
var artistSuffix = regexp.MustCompile(`\s*\(\d+\)$`)

// MapReleases converts API releases to catalog items, dropping any without
// an instance ID.
func MapReleases(releases []Release) []domain.CatalogItem {
	items := make([]domain.CatalogItem, 0, len(releases))
	for _, r := range releases {
		if it, ok := MapRelease(r); ok {
			items = append(items, it)
		}
	}
	return items
}

// MapRelease converts one API release.
func MapRelease(r Release) (domain.CatalogItem, bool) {
	if r.InstanceID == 0 {
		return domain.CatalogItem{}, false
	}

	attrs := domain.Attributes{
		Title:   strings.TrimSpace(r.Basic.Title),
		Creator: joinArtists(r.Basic.Artists),
		Year:    r.Basic.Year,
		AddedAt: parseDate(r.DateAdded),
	}
	for _, f := range r.Basic.Formats {
		if f.Name != "" {
			attrs.Formats = append(attrs.Formats, f.Name)
		}
	}
	for _, l := range r.Basic.Labels {
		if l.Name != "" {
			attrs.Labels = append(attrs.Labels, l.Name)
		}
	}
	if r.Rating > 0 {
		attrs.Rating = strconv.Itoa(r.Rating)
	}

	return domain.CatalogItem{
		ExternalID: strconv.FormatInt(r.InstanceID, 10),
		Attributes: attrs,
	}, true
}

func joinArtists(artists []Named) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if n := artistSuffix.ReplaceAllString(strings.TrimSpace(a.Name), ""); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

// parseDate accepts RFC 3339 with or without a zone offset. Unparseable
// dates become the zero time.
func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
