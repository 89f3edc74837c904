package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/crate/internal/domain"
)

// errAlbumNotFound is the scrobble service's "invalid resource" code.
const errAlbumNotFound = 6

// PlayCountConfig configures the scrobble-service client.
type PlayCountConfig struct {
	BaseURL   string
	APIKey    string
	Username  string // when set, the user's own play count is used
	Timeout   time.Duration
	RateLimit int
	Retry     RetryConfig
}

// PlayCountClient implements domain.PlayCountSource.
type PlayCountClient struct {
	baseURL  string
	apiKey   string
	username string
	http     *transport
	logger   *slog.Logger
}

// NewPlayCountClient creates a scrobble-service client.
func NewPlayCountClient(cfg PlayCountConfig, logger *slog.Logger) *PlayCountClient {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("remote", "playcount")
	return &PlayCountClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		username: cfg.Username,
		http:     newTransport(cfg.Timeout, cfg.RateLimit, cfg.Retry, nil, logger),
		logger:   logger,
	}
}

// PlayCount returns the album's play count. Unknown albums count as zero.
func (c *PlayCountClient) PlayCount(ctx context.Context, key domain.MetricKey) (int, error) {
	q := url.Values{}
	q.Set("method", "album.getinfo")
	q.Set("artist", key.Creator)
	q.Set("album", key.Title)
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")
	q.Set("autocorrect", "1")
	if c.username != "" {
		q.Set("username", c.username)
	}

	var resp AlbumInfoResponse
	if err := c.http.getJSON(ctx, c.baseURL+"/2.0/?"+q.Encode(), &resp); err != nil {
		return 0, fmt.Errorf("album info for %s - %s: %w", key.Creator, key.Title, err)
	}
	if resp.Error == errAlbumNotFound {
		return 0, nil
	}
	if resp.Error != 0 {
		return 0, fmt.Errorf("album info for %s - %s: %s (code %d)", key.Creator, key.Title, resp.Message, resp.Error)
	}
	if resp.Album == nil {
		return 0, nil
	}

	if c.username != "" {
		return parseCount(resp.Album.UserPlayCount), nil
	}
	return parseCount(resp.Album.PlayCount), nil
}

// parseCount accepts the string or number forms the service uses.
func parseCount(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
