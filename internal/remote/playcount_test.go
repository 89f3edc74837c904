package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/crate/internal/domain"
)

func TestPlayCountClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/2.0/", r.URL.Path)
		assert.Equal(t, "album.getinfo", q.Get("method"))
		assert.Equal(t, "key", q.Get("api_key"))

		switch q.Get("album") {
		case "OK Computer":
			if q.Get("username") != "" {
				_, _ = w.Write([]byte(`{"album":{"playcount":"9000","userplaycount":42}}`))
				return
			}
			_, _ = w.Write([]byte(`{"album":{"playcount":"9000"}}`))
		case "Missing":
			_, _ = w.Write([]byte(`{"error":6,"message":"Album not found"}`))
		default:
			_, _ = w.Write([]byte(`{"error":10,"message":"Invalid API key"}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	ok := domain.MetricKey{Creator: "Radiohead", Title: "OK Computer"}

	global := NewPlayCountClient(PlayCountConfig{BaseURL: srv.URL, APIKey: "key", Retry: fastRetry()}, nil)
	n, err := global.PlayCount(ctx, ok)
	require.NoError(t, err)
	require.Equal(t, 9000, n)

	user := NewPlayCountClient(PlayCountConfig{BaseURL: srv.URL, APIKey: "key", Username: "alice", Retry: fastRetry()}, nil)
	n, err = user.PlayCount(ctx, ok)
	require.NoError(t, err)
	require.Equal(t, 42, n)

	n, err = global.PlayCount(ctx, domain.MetricKey{Creator: "Nobody", Title: "Missing"})
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = global.PlayCount(ctx, domain.MetricKey{Creator: "x", Title: "y"})
	require.ErrorContains(t, err, "Invalid API key")
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 12, parseCount("12"))
	assert.Equal(t, 12, parseCount(float64(12)))
	assert.Zero(t, parseCount("n/a"))
	assert.Zero(t, parseCount(nil))
}
