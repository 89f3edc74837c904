package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/mmcdole/crate/internal/domain"
	"github.com/mmcdole/crate/internal/query"
)

// sortAliases maps command-line sort names to sort keys.
var sortAliases = map[string]domain.SortKey{
	"creator":        domain.SortCreator,
	"artist":         domain.SortCreator,
	"title":          domain.SortTitle,
	"year":           domain.SortYear,
	"added":          domain.SortDateAdded,
	"dateadded":      domain.SortDateAdded,
	"plays":          domain.SortExternalMetric,
	"externalmetric": domain.SortExternalMetric,
}

type listFlags struct {
	search  string
	formats []string
	yearMin int
	yearMax int
	added   string
	sort    string
	dir     string
	page    int
	limit   int
	all     bool
	plays   bool
	noWait  bool
}

// state converts the flags into a query. Unknown sort names pass through
// so the engine reports them.
func (f listFlags) state() domain.QueryState {
	key := domain.SortKey(f.sort)
	if k, ok := sortAliases[strings.ToLower(f.sort)]; ok {
		key = k
	}
	added := domain.AddedBucket(strings.ToLower(f.added))
	if added == "any" {
		added = domain.AddedAny
	}
	return domain.QueryState{
		Search: f.search,
		Filters: domain.Filters{
			Formats: f.formats,
			YearMin: f.yearMin,
			YearMax: f.yearMax,
			Added:   added,
		},
		Sort:       key,
		Direction:  domain.SortDirection(strings.ToLower(f.dir)),
		WindowSize: f.limit,
	}
}

func (c *cli) newListCmd() *cobra.Command {
	var f listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search, filter and sort the cached collection",
		Long: `List the cached collection.

The list is served from the local cache. An empty cache is loaded first.

Examples:
  crate list --search radiohead
  crate list --format vinyl --year-min 1990 --year-max 1999
  crate list --added month --sort plays
  crate list --sort title --page 2`,
		RunE: c.run(true, func(cmd *cobra.Command, rt *runtime) error {
			ctx := cmd.Context()
			p := newPrinter(cmd, c.noColor)
			owner := rt.cfg.Owner

			res, err := rt.sync.LoadCollection(ctx, owner, false)
			if err != nil {
				return err
			}
			items := res.Items
			if res.Refreshing && !f.noWait {
				printLoad(p, res)
				if err := waitRefresh(ctx, p, rt); err != nil {
					return err
				}
				snap, err := rt.sync.Snapshot(owner)
				if err != nil {
					return err
				}
				items = snap.Items
			} else if res.Refreshing {
				p.warn("%s", res.Message)
			}

			state := f.state()
			if f.plays || state.Sort == domain.SortExternalMetric {
				if err := rt.plays.Warm(ctx, items); err != nil {
					return err
				}
			}

			session := query.NewSession(rt.engine, rt.cfg.Query.RevealBatch)
			session.Refresh(items)
			view, err := session.Apply(state)
			if err != nil {
				return err
			}

			pageSize := session.Batch()
			if f.limit > 0 {
				pageSize = f.limit
			}
			var w query.Window
			switch {
			case f.all:
				w = view.Page(1, 0)
			case f.page > 0:
				w = view.Page(f.page, pageSize)
			default:
				w = session.Window()
			}

			if w.Total == 0 {
				p.line("No matching items.")
				for _, s := range formatSuggestions(items, f.formats) {
					p.line("Did you mean --format %q?", s)
				}
				return nil
			}

			if len(w.Items) == 0 {
				p.line("Page %d is past the end (%d %s).", f.page, view.PageCount(pageSize),
					plural(view.PageCount(pageSize), "page", "pages"))
				return nil
			}

			width := 0
			if p.tty {
				width = p.width
			}
			showPlays := f.plays || state.Sort == domain.SortExternalMetric
			fmt.Fprintln(p.out, renderTable(w, showPlays, rt.plays.Lookup, width))
			p.line("%s", footer(w, session.State(), f.page, view.PageCount(pageSize)))
			return nil
		}),
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.search, "search", "s", "", "Match title, creator or label")
	fl.StringSliceVar(&f.formats, "format", nil, "Only these formats (repeatable)")
	fl.IntVar(&f.yearMin, "year-min", 0, "Earliest release year")
	fl.IntVar(&f.yearMax, "year-max", 0, "Latest release year")
	fl.StringVar(&f.added, "added", "", "Added within: week, month, quarter or year")
	fl.StringVar(&f.sort, "sort", "", "Sort by creator, title, year, added or plays (default added)")
	fl.StringVar(&f.dir, "dir", "", "Sort direction: asc or desc (default depends on --sort)")
	fl.IntVar(&f.page, "page", 0, "Show this page (page size is --limit or query.reveal_batch)")
	fl.IntVarP(&f.limit, "limit", "n", 0, "Show this many items (default query.reveal_batch)")
	fl.BoolVar(&f.all, "all", false, "Show every matching item")
	fl.BoolVar(&f.plays, "plays", false, "Show play counts")
	fl.BoolVar(&f.noWait, "no-wait", false, "List the cached items without waiting for a refresh")
	return cmd
}

func renderTable(w query.Window, showPlays bool, plays func(domain.MetricKey) int, width int) string {
	headers := []string{"#", "CREATOR", "TITLE", "YEAR", "FORMAT", "ADDED"}
	if showPlays {
		headers = append(headers, "PLAYS")
	}

	rows := make([][]string, 0, len(w.Items))
	for i, it := range w.Items {
		a := it.Attributes
		year := ""
		if a.Year > 0 {
			year = strconv.Itoa(a.Year)
		}
		row := []string{
			strconv.Itoa(w.Offset + i + 1),
			a.Creator,
			a.Title,
			year,
			strings.Join(a.Formats, ", "),
			a.AddedAt.Format("2006-01-02"),
		}
		if showPlays {
			row = append(row, strconv.Itoa(plays(it.Key())))
		}
		rows = append(rows, row)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	dimStyle := cellStyle.Foreground(lipgloss.Color("245"))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return dimStyle
			default:
				return cellStyle
			}
		})
	if width > 0 {
		t = t.Width(width)
	}
	return t.Render()
}

func footer(w query.Window, state domain.QueryState, page, pages int) string {
	first := w.Offset + 1
	last := w.Offset + len(w.Items)
	sorted := fmt.Sprintf("sorted by %s %s", state.Sort, state.Direction)
	if page > 0 {
		return fmt.Sprintf("Page %d of %d, items %d-%d of %d, %s", page, pages, first, last, w.Total, sorted)
	}
	if w.HasMore {
		return fmt.Sprintf("Showing %d of %d, %s. Use --limit, --page or --all for more.", last, w.Total, sorted)
	}
	return fmt.Sprintf("%d %s, %s", w.Total, plural(w.Total, "item", "items"), sorted)
}

// formatSuggestions proposes known formats for requested ones that match
// nothing in the collection.
func formatSuggestions(items []domain.CatalogItem, requested []string) []string {
	seen := make(map[string]bool)
	var known []string
	for _, it := range items {
		for _, f := range it.Attributes.Formats {
			if k := strings.ToLower(f); !seen[k] {
				seen[k] = true
				known = append(known, f)
			}
		}
	}

	var out []string
	for _, r := range requested {
		if seen[strings.ToLower(r)] {
			continue
		}
		if matches := fuzzy.Find(r, known); len(matches) > 0 {
			out = append(out, matches[0].Str)
		}
	}
	return out
}
