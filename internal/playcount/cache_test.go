package playcount

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mmcdole/crate/internal/domain"
	"github.com/mmcdole/crate/internal/domain/mocks"
)

var (
	okComputer = domain.MetricKey{Creator: "Radiohead", Title: "OK Computer"}
	kidA       = domain.MetricKey{Creator: "Radiohead", Title: "Kid A"}
)

func album(key domain.MetricKey) domain.CatalogItem {
	return domain.CatalogItem{ExternalID: key.Title, Attributes: domain.Attributes{Creator: key.Creator, Title: key.Title}}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCache_LookupMissingIsZero(t *testing.T) {
	c := NewCache(nil, nil)
	require.Zero(t, c.Lookup(okComputer))
	require.NoError(t, c.Warm(context.Background(), []domain.CatalogItem{album(okComputer)}))
}

func TestCache_WarmFetchesEachKeyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPlayCountSource(ctrl)
	ctx := context.Background()

	source.EXPECT().PlayCount(gomock.Any(), okComputer).Return(120, nil).Times(1)
	source.EXPECT().PlayCount(gomock.Any(), kidA).Return(45, nil).Times(1)

	c := NewCache(source, nil)
	dup := album(okComputer)
	dup.ExternalID = "second pressing"
	items := []domain.CatalogItem{album(okComputer), album(kidA), dup}

	require.NoError(t, c.Warm(ctx, items))
	require.NoError(t, c.Warm(ctx, items), "fresh keys are not fetched again")

	require.Equal(t, 120, c.Lookup(okComputer))
	require.Equal(t, 120, c.Lookup(domain.MetricKey{Creator: " radiohead", Title: "ok computer"}))
	require.Equal(t, 45, c.Lookup(kidA))
	require.Equal(t, 2, c.Len())
}

func TestCache_RefetchesAfterTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPlayCountSource(ctrl)
	clk := &clock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	gomock.InOrder(
		source.EXPECT().PlayCount(gomock.Any(), kidA).Return(10, nil),
		source.EXPECT().PlayCount(gomock.Any(), kidA).Return(11, nil),
	)

	c := NewCache(source, nil, WithTTL(time.Hour), WithClock(clk.Now))
	require.NoError(t, c.Warm(ctx, []domain.CatalogItem{album(kidA)}))
	require.Equal(t, 10, c.Lookup(kidA))

	clk.Add(2 * time.Hour)
	require.Equal(t, 10, c.Lookup(kidA), "expired counts are served until replaced")
	require.NoError(t, c.Warm(ctx, []domain.CatalogItem{album(kidA)}))
	require.Equal(t, 11, c.Lookup(kidA))
}

func TestCache_FailedFetchLeavesKeyMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPlayCountSource(ctrl)

	source.EXPECT().PlayCount(gomock.Any(), kidA).Return(0, errors.New("rate limited"))
	source.EXPECT().PlayCount(gomock.Any(), okComputer).Return(7, nil)

	c := NewCache(source, nil)
	require.NoError(t, c.Warm(context.Background(), []domain.CatalogItem{album(kidA), album(okComputer)}))
	require.Zero(t, c.Lookup(kidA))
	require.Equal(t, 7, c.Lookup(okComputer))
	require.Equal(t, 1, c.Len())
}

func TestCache_WarmRespectsConcurrencyLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPlayCountSource(ctrl)

	var inFlight, peak atomic.Int32
	source.EXPECT().PlayCount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, key domain.MetricKey) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return 1, nil
		}).
		Times(10)

	items := make([]domain.CatalogItem, 10)
	for i := range items {
		items[i] = album(domain.MetricKey{Creator: "Artist", Title: string(rune('a' + i))})
	}

	c := NewCache(source, nil, WithConcurrency(2))
	require.NoError(t, c.Warm(context.Background(), items))
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Equal(t, 10, c.Len())
}

func TestCache_WarmStopsWhenContextEnds(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPlayCountSource(ctrl)
	source.EXPECT().PlayCount(gomock.Any(), gomock.Any()).AnyTimes().Return(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCache(source, nil)
	err := c.Warm(ctx, []domain.CatalogItem{album(kidA), album(okComputer)})
	require.ErrorIs(t, err, context.Canceled)
}
