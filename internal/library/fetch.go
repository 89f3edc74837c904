package library

import (
	"context"

	"github.com/mmcdole/crate/internal/domain"
)

const defaultPageSize = 100

// fetchAll pages through the owner's remote collection. Items are
// de-duplicated by ExternalID, keeping the first occurrence. Any page error
// aborts the walk and nothing fetched so far is returned.
func fetchAll(
	ctx context.Context,
	remote domain.RemoteFetcher,
	ownerID string,
	pageSize int,
	onProgress domain.ProgressFunc,
) ([]domain.CatalogItem, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var all []domain.CatalogItem
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		p, err := remote.FetchPage(ctx, ownerID, page, pageSize)
		if err != nil {
			return nil, err
		}

		for _, it := range p.Items {
			if it.ExternalID == "" {
				continue
			}
			if _, dup := seen[it.ExternalID]; dup {
				continue
			}
			seen[it.ExternalID] = struct{}{}
			all = append(all, it)
		}

		if onProgress != nil {
			onProgress(page, p.TotalPages)
		}

		if page >= p.TotalPages || len(p.Items) == 0 {
			break
		}
	}

	return all, nil
}
