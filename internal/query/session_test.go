package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/crate/internal/domain"
)

func many(n int) []domain.CatalogItem {
	items := make([]domain.CatalogItem, n)
	for i := range items {
		items[i] = item(fmt.Sprintf("%03d", i), "Artist", fmt.Sprintf("Title %03d", i), 2000, now.Add(-time.Duration(i)*time.Minute))
	}
	return items
}

type panicky struct{}

func (panicky) Lookup(domain.MetricKey) int { panic("lookup exploded") }

func TestView_PageAndRevealShareOneResult(t *testing.T) {
	v, err := newEngine(nil).Recompute(many(25), domain.QueryState{})
	require.NoError(t, err)

	p1 := v.Page(1, 10)
	assert.Equal(t, 25, p1.Total)
	assert.Equal(t, 0, p1.Offset)
	assert.Len(t, p1.Items, 10)
	assert.True(t, p1.HasMore)

	p3 := v.Page(3, 10)
	assert.Equal(t, 20, p3.Offset)
	assert.Len(t, p3.Items, 5)
	assert.False(t, p3.HasMore)

	r := v.Reveal(15)
	assert.Len(t, r.Items, 15)
	assert.True(t, r.HasMore)
	assert.Equal(t, p1.Items, r.Items[:10])

	assert.Empty(t, v.Page(4, 10).Items)
	assert.Len(t, v.Page(0, 10).Items, 10, "page numbers below 1 clamp to the first page")
	assert.Len(t, v.Page(1, 0).Items, 25)
	assert.Equal(t, 3, v.PageCount(10))
}

func TestView_NilIsEmpty(t *testing.T) {
	var v *View
	w := v.Reveal(10)
	assert.Zero(t, w.Total)
	assert.Empty(t, w.Items)
	assert.False(t, w.HasMore)
}

func TestSession_RevealGrowsByBatch(t *testing.T) {
	s := NewSession(newEngine(nil), 10)
	s.Refresh(many(25))

	w := s.Window()
	assert.Len(t, w.Items, 10)
	assert.True(t, w.HasMore)

	w = s.More()
	assert.Len(t, w.Items, 20)

	w = s.More()
	assert.Len(t, w.Items, 25)
	assert.False(t, w.HasMore)

	w = s.More()
	assert.Len(t, w.Items, 25)
	assert.Equal(t, 30, s.State().WindowSize, "window stops growing once everything is revealed")
}

func TestSession_PageUsesBatchSize(t *testing.T) {
	s := NewSession(newEngine(nil), 10)
	s.Refresh(many(25))

	w := s.Page(2)
	assert.Equal(t, 10, w.Offset)
	assert.Equal(t, "010", w.Items[0].ExternalID)
}

func TestSession_InvalidStateKeepsPreviousView(t *testing.T) {
	s := NewSession(newEngine(nil), 10)
	s.Refresh(fixture())

	good, err := s.Apply(domain.QueryState{Sort: domain.SortTitle})
	require.NoError(t, err)

	kept, err := s.Apply(domain.QueryState{Filters: domain.Filters{YearMin: 2010, YearMax: 2000}})
	require.ErrorIs(t, err, domain.ErrInvalidQuery)
	assert.Same(t, good, kept)
	assert.Same(t, good, s.View())
	assert.Equal(t, domain.SortTitle, s.State().Sort)
}

func TestSession_RefreshReappliesQuery(t *testing.T) {
	s := NewSession(newEngine(nil), 10)
	_, err := s.Apply(domain.QueryState{Search: "radiohead"})
	require.NoError(t, err)
	assert.Zero(t, s.View().Total())

	v := s.Refresh(fixture())
	assert.Equal(t, []string{"2", "3"}, ids(v.Items))
}

func TestSession_RecoversFromPanics(t *testing.T) {
	s := NewSession(newEngine(panicky{}), 10)
	s.Refresh(fixture())

	v, err := s.Apply(domain.QueryState{Sort: domain.SortExternalMetric})
	require.NoError(t, err)
	assert.True(t, v.Failed)
	assert.Empty(t, v.Items)

	v, err = s.Apply(domain.QueryState{Sort: domain.SortTitle})
	require.NoError(t, err)
	assert.False(t, v.Failed)
	assert.Len(t, v.Items, 5)
}
