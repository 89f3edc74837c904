package query

import "github.com/mmcdole/crate/internal/domain"

// View is the filtered and sorted result of one recompute. Both windowing
// modes slice the same Items without recomputing.
type View struct {
	State  domain.QueryState
	Items  []domain.CatalogItem
	Failed bool // recompute failed unexpectedly; Items is empty
}

// Window is a slice of a view plus the counts a list needs for display.
type Window struct {
	Items   []domain.CatalogItem
	Total   int
	Offset  int
	HasMore bool
}

// Total returns the number of matching items.
func (v *View) Total() int {
	if v == nil {
		return 0
	}
	return len(v.Items)
}

// Page returns the 1-based page of the given size. A non-positive size
// returns everything.
func (v *View) Page(page, size int) Window {
	total := v.Total()
	if size <= 0 {
		return v.window(0, total)
	}
	if page < 1 {
		page = 1
	}
	return v.window((page-1)*size, size)
}

// Reveal returns the first n items (incremental reveal mode).
func (v *View) Reveal(n int) Window {
	return v.window(0, n)
}

func (v *View) window(offset, n int) Window {
	total := v.Total()
	if offset > total {
		offset = total
	}
	end := offset + max(n, 0)
	if end > total {
		end = total
	}
	w := Window{Total: total, Offset: offset, HasMore: end < total}
	if end > offset {
		w.Items = v.Items[offset:end]
	}
	return w
}

// PageCount returns the number of pages of the given size.
func (v *View) PageCount(size int) int {
	total := v.Total()
	if size <= 0 || total == 0 {
		return 1
	}
	return (total + size - 1) / size
}
