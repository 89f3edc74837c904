package domain

// SortKey selects the primary ordering of a query.
type SortKey string

const (
	SortCreator        SortKey = "creator"
	SortTitle          SortKey = "title"
	SortYear           SortKey = "year"
	SortDateAdded      SortKey = "dateAdded"
	SortExternalMetric SortKey = "externalMetric"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// DefaultDirection returns the natural direction for a sort key.
func DefaultDirection(key SortKey) SortDirection {
	switch key {
	case SortCreator, SortTitle:
		return SortAsc // A-Z
	default:
		return SortDesc // newest / most played first
	}
}

// AddedBucket is a relative window on the acquisition timestamp.
type AddedBucket string

const (
	AddedAny     AddedBucket = ""
	AddedWeek    AddedBucket = "week"
	AddedMonth   AddedBucket = "month"
	AddedQuarter AddedBucket = "quarter"
	AddedYear    AddedBucket = "year"
)

// Filters compose with logical AND. Zero values disable a filter.
type Filters struct {
	Formats []string
	YearMin int
	YearMax int
	Added   AddedBucket
}

// QueryState is the transient query of one view.
type QueryState struct {
	Search     string
	Filters    Filters
	Sort       SortKey
	Direction  SortDirection
	WindowSize int
}
