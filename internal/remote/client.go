// Package remote talks to the record-collection service and the scrobble
// service over HTTP.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/crate/internal/domain"
)

// Config configures the collection client.
type Config struct {
	BaseURL   string
	Token     string
	PageSize  int // page size used by FetchItemsSince
	Timeout   time.Duration
	RateLimit int // requests per minute; 0 disables limiting
	Retry     RetryConfig
}

// Client implements domain.RemoteFetcher for the collection API.
type Client struct {
	baseURL  string
	pageSize int
	http     *transport
	logger   *slog.Logger
}

// NewClient creates a new collection API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("remote", "collection")

	headers := http.Header{}
	if cfg.Token != "" {
		headers.Set("Authorization", "Token "+cfg.Token)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
		http:     newTransport(cfg.Timeout, cfg.RateLimit, cfg.Retry, headers, logger),
		logger:   logger,
	}
}

func (c *Client) collectionURL(ownerID string, page, pageSize int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("sort", "added")
	q.Set("sort_order", "desc")
	return fmt.Sprintf("%s/users/%s/collection?%s", c.baseURL, url.PathEscape(ownerID), q.Encode())
}

// FetchPage returns one page of the owner's collection, newest first.
func (c *Client) FetchPage(ctx context.Context, ownerID string, page, pageSize int) (domain.Page, error) {
	var resp CollectionResponse
	if err := c.http.getJSON(ctx, c.collectionURL(ownerID, page, pageSize), &resp); err != nil {
		return domain.Page{}, fmt.Errorf("fetch page %d: %w", page, err)
	}

	items := MapReleases(resp.Releases)
	c.logger.Debug("fetched page",
		"owner", ownerID,
		"page", page,
		"pages", resp.Pagination.Pages,
		"items", len(items),
	)
	return domain.Page{Items: items, TotalPages: resp.Pagination.Pages}, nil
}

// FetchItemsSince walks the newest-first listing and returns items added at
// or after since. It stops at the first older item.
func (c *Client) FetchItemsSince(ctx context.Context, ownerID string, since time.Time) ([]domain.CatalogItem, error) {
	var out []domain.CatalogItem
	for page := 1; ; page++ {
		p, err := c.FetchPage(ctx, ownerID, page, c.pageSize)
		if err != nil {
			return nil, err
		}
		for _, it := range p.Items {
			if it.Attributes.AddedAt.Before(since) {
				return out, nil
			}
			out = append(out, it)
		}
		if page >= p.TotalPages || len(p.Items) == 0 {
			return out, nil
		}
	}
}
