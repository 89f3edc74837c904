package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmcdole/crate/internal/config"
	"github.com/mmcdole/crate/internal/domain"
	"github.com/mmcdole/crate/internal/poller"
)

func (c *cli) newLoadCmd() *cobra.Command {
	var force, noWait bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the collection, refreshing it when stale",
		Long: `Load the collection from the local cache.

When the cache is expired, partially expired or empty a full refresh runs in
the background and load reports its progress. With --no-wait the progress is
not shown, but the refresh still finishes before crate exits.

Examples:
  crate load              Refresh only when stale
  crate load --force      Refresh regardless of cache age`,
		RunE: c.run(true, func(cmd *cobra.Command, rt *runtime) error {
			p := newPrinter(cmd, c.noColor)
			res, err := rt.sync.LoadCollection(cmd.Context(), rt.cfg.Owner, force)
			if err != nil {
				return err
			}
			printLoad(p, res)
			if !res.Refreshing || noWait {
				return nil
			}
			return waitRefresh(cmd.Context(), p, rt)
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Refresh even when the cache is fresh")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Skip refresh progress; the refresh still completes before exit")
	return cmd
}

func (c *cli) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Count items added remotely since the newest cached item",
		RunE: c.run(true, func(cmd *cobra.Command, rt *runtime) error {
			p := newPrinter(cmd, c.noColor)
			res, err := rt.sync.CheckForNewItems(cmd.Context(), rt.cfg.Owner)
			if err != nil {
				return err
			}
			switch {
			case res.Skipped:
				p.warn("%s", res.Message)
			case res.NewItemsCount > 0:
				p.header("%s", res.Message)
				p.line("Run 'crate update' to add them.")
			default:
				p.ok("%s", res.Message)
			}
			return nil
		}),
	}
}

func (c *cli) newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Merge items added remotely into the cache",
		RunE: c.run(true, func(cmd *cobra.Command, rt *runtime) error {
			p := newPrinter(cmd, c.noColor)
			res, err := rt.sync.UpdateWithNewItems(cmd.Context(), rt.cfg.Owner)
			if err != nil {
				return err
			}
			if res.Declined {
				p.warn("%s", res.Message)
				return nil
			}
			p.ok("%s", res.Message)
			return nil
		}),
	}
}

func (c *cli) newClearCmd() *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached collection and load it again",
		RunE: c.run(true, func(cmd *cobra.Command, rt *runtime) error {
			p := newPrinter(cmd, c.noColor)
			res, err := rt.sync.ClearCache(cmd.Context(), rt.cfg.Owner)
			if err != nil {
				return err
			}
			p.ok("Cache cleared")
			printLoad(p, res)
			if !res.Refreshing || noWait {
				return nil
			}
			return waitRefresh(cmd.Context(), p, rt)
		}),
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Skip reload progress; the reload still completes before exit")
	return cmd
}

type statusOutput struct {
	Owner                 string               `json:"owner"`
	Status                domain.CacheStatus   `json:"status"`
	Items                 int                  `json:"items"`
	LastFullSyncAt        *time.Time           `json:"last_full_sync_at,omitempty"`
	LastIncrementalSyncAt *time.Time           `json:"last_incremental_sync_at,omitempty"`
	Refresh               *domain.SyncProgress `json:"refresh,omitempty"`
}

func (c *cli) newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache freshness and refresh progress",
		RunE: c.run(false, func(cmd *cobra.Command, rt *runtime) error {
			owner := rt.cfg.Owner
			meta, err := rt.sync.Status(owner)
			if err != nil {
				return err
			}
			out := statusOutput{
				Owner:                 owner,
				Status:                meta.Status,
				Items:                 meta.ItemCount,
				LastFullSyncAt:        timePtr(meta.LastFullSyncAt),
				LastIncrementalSyncAt: timePtr(meta.LastIncrementalSyncAt),
			}
			if prog, ok := rt.sync.CacheProgress(owner); ok {
				out.Refresh = &prog
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			p := newPrinter(cmd, c.noColor)
			now := time.Now()
			p.header("Collection of %s", owner)
			p.line("  Status:           %s", p.status(meta.Status))
			p.line("  Items:            %d", meta.ItemCount)
			p.line("  Last full sync:   %s", since(meta.LastFullSyncAt, now))
			p.line("  Last update:      %s", since(meta.LastIncrementalSyncAt, now))
			if out.Refresh != nil {
				p.line("  Refresh:          %s (page %d of %s)", out.Refresh.Status,
					out.Refresh.CurrentPage, totalLabel(out.Refresh.TotalPages))
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func (c *cli) newLogoutCmd() *cobra.Command {
	var clearCache bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the API token and refresh state for the owner",
		RunE: c.run(false, func(cmd *cobra.Command, rt *runtime) error {
			p := newPrinter(cmd, c.noColor)
			owner := rt.cfg.Owner
			rt.sync.Logout(owner)

			if clearCache {
				if err := rt.store.Clear(owner); err != nil {
					return err
				}
				p.ok("Cached collection of %s removed", owner)
			}

			cfg := *rt.cfg
			cfg.Remote.Token = ""
			if err := c.saveConfig(&cfg); err != nil {
				return err
			}
			p.ok("Logged out %s", owner)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Also remove the cached collection")
	return cmd
}

func (c *cli) saveConfig(cfg *config.Config) error {
	if c.configDir != "" {
		return c.loader.Save(cfg, c.configDir)
	}
	return config.SaveConfig(cfg)
}

func printLoad(p *printer, res domain.LoadResult) {
	n := res.Metadata.ItemCount
	p.line("%s: %d cached %s, %s", res.OwnerID, n, plural(n, "item", "items"), p.status(res.Metadata.Status))
	switch {
	case res.Incomplete:
		p.warn("%s The cached list is incomplete until the refresh finishes.", res.Message)
	case res.Message != "":
		p.line("%s", res.Message)
	}
}

// waitRefresh polls the running refresh and reports how it ended.
func waitRefresh(ctx context.Context, p *printer, rt *runtime) error {
	prog, err := rt.await(ctx, rt.cfg.Owner, p.progress, func(snap domain.Snapshot) error {
		n := snap.Metadata.ItemCount
		p.ok("Collection refreshed: %d %s", n, plural(n, "item", "items"))
		return nil
	})
	p.endProgress()

	switch {
	case errors.Is(err, poller.ErrNotTracked):
		return nil
	case errors.Is(err, poller.ErrPollTimeout):
		p.warn("Still refreshing (page %d of %s). Check again with 'crate status'.",
			prog.CurrentPage, totalLabel(prog.TotalPages))
		return nil
	case err != nil:
		return err
	case prog.Status == domain.SyncFailed:
		return fmt.Errorf("refresh failed: %s", prog.Reason)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
