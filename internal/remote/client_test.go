package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/crate/internal/domain"
)

var newest = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

// collectionServer serves n releases, newest first, in the requested page size.
func collectionServer(t *testing.T, n int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, "/users/alice/collection", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "added", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort_order"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		per, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		pages := (n + per - 1) / per

		resp := CollectionResponse{Pagination: Pagination{Page: page, Pages: pages, PerPage: per, Items: n}}
		for i := (page - 1) * per; i < min(page*per, n); i++ {
			resp.Releases = append(resp.Releases, Release{
				InstanceID: int64(1000 + i),
				DateAdded:  newest.Add(-time.Duration(i) * 24 * time.Hour).Format(time.RFC3339),
				Rating:     i % 6,
				Basic: BasicInformation{
					Title:   fmt.Sprintf("Album %d", i),
					Year:    1990 + i,
					Artists: []Named{{Name: "Artist (2)"}, {Name: "Guest"}},
					Formats: []Format{{Name: "Vinyl", Qty: "1"}},
					Labels:  []Named{{Name: "Warp"}},
				},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_FetchPage(t *testing.T) {
	srv := collectionServer(t, 25, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", Token: "secret", Retry: fastRetry()}, nil)
	page, err := c.FetchPage(context.Background(), "alice", 3, 10)
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 5)

	first := page.Items[0]
	assert.Equal(t, "1020", first.ExternalID)
	assert.Equal(t, "Album 20", first.Attributes.Title)
	assert.Equal(t, "Artist, Guest", first.Attributes.Creator)
	assert.Equal(t, []string{"Vinyl"}, first.Attributes.Formats)
	assert.Equal(t, []string{"Warp"}, first.Attributes.Labels)
	assert.Equal(t, "2", first.Attributes.Rating)
	assert.True(t, first.Attributes.AddedAt.Equal(newest.Add(-20*24*time.Hour)))
}

func TestClient_FetchItemsSinceStopsAtCutoff(t *testing.T) {
	var hits atomic.Int32
	srv := collectionServer(t, 50, &hits)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "secret", PageSize: 5, Retry: fastRetry()}, nil)
	items, err := c.FetchItemsSince(context.Background(), "alice", newest.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, items, 8, "days 0 through 7 inclusive")
	require.Equal(t, int32(2), hits.Load(), "no pages past the cutoff are requested")
}

func TestClient_FetchItemsSinceWholeCollection(t *testing.T) {
	srv := collectionServer(t, 12, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "secret", PageSize: 5, Retry: fastRetry()}, nil)
	items, err := c.FetchItemsSince(context.Background(), "alice", time.Time{})
	require.NoError(t, err)
	require.Len(t, items, 12)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(CollectionResponse{Pagination: Pagination{Pages: 1}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	_, err := c.FetchPage(context.Background(), "alice", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	_, err := c.FetchPage(context.Background(), "alice", 1, 10)
	require.ErrorContains(t, err, "429")
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_BackoffEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		http.Error(w, "try later", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Retry: RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}}, nil)
	start := time.Now()
	_, err := c.FetchPage(ctx, "alice", 1, 10)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, int32(1), calls.Load())
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestClient_DoesNotRetryAuthOrClientErrors(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusNotFound} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(code)
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, Retry: fastRetry()}, nil)
			_, err := c.FetchPage(context.Background(), "alice", 1, 10)
			require.Error(t, err)
			require.Equal(t, int32(1), calls.Load())
			if code == http.StatusUnauthorized {
				require.ErrorIs(t, err, domain.ErrAuthFailed)
			}
		})
	}
}

func TestClient_OfflineServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Retry: RetryConfig{MaxAttempts: 1}}, nil)
	_, err := c.FetchPage(context.Background(), "alice", 1, 10)
	require.ErrorIs(t, err, domain.ErrServerOffline)
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	srv := collectionServer(t, 1, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "secret", RateLimit: 1, Retry: RetryConfig{MaxAttempts: 1}}, nil)
	_, err := c.FetchPage(context.Background(), "alice", 1, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.FetchPage(ctx, "alice", 1, 10)
	require.Error(t, err, "second request within the minute waits for the limiter")
}

func TestMapRelease_SkipsMissingInstanceID(t *testing.T) {
	items := MapReleases([]Release{{Basic: BasicInformation{Title: "no id"}}, {InstanceID: 7, DateAdded: "garbage"}})
	require.Len(t, items, 1)
	require.Equal(t, "7", items[0].ExternalID)
	require.True(t, items[0].Attributes.AddedAt.IsZero())
	require.Empty(t, items[0].Attributes.Rating)
}
