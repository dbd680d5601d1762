package query

// Request is a single parameterized SQL statement.
//
// Two requests with equal SQL and equal (by value and type) Params are the
// same logical query; the result cache keys on exactly that equality.
type Request struct {
	SQL    string
	Params []any
}

// Row maps column names to values. Key order carries no meaning.
type Row map[string]any

// Result is the normalized outcome of executing a Request.
//
// Columns preserves the engine's column order. Rows is never nil: an empty
// result set yields a zero-length slice.
type Result struct {
	Columns []string
	Rows    []Row
}

// Range is a closed numeric interval for a range facet.
type Range struct {
	Min float64
	Max float64
}

// FilterSet is a structured description of a faceted search.
//
// The builder treats it as read-only and never retains a reference across
// calls. Facet values are sets: duplicates are ignored and order is
// irrelevant; the builder sorts names and values before emitting SQL so
// value-equal filter sets always produce byte-identical statements.
type FilterSet struct {
	// Text is a free-text term matched with LIKE against the schema's
	// searchable columns. Empty means no text filtering.
	Text string
	// Facets maps a facet column to the set of selected values.
	Facets map[string][]string
	// Ranges maps a facet column to a numeric interval.
	Ranges map[string]Range
}

// Sort selects an ORDER BY column and direction. A named column must be on
// the schema's sort allow-list; it is concatenated into the SQL, not bound.
// An empty column defaults to the schema's first sort column.
type Sort struct {
	Column     string
	Descending bool
}

// Page is a 1-based page selection. Numbers below 1 are clamped to 1.
type Page struct {
	Number int
	Size   int
}

// Schema describes the queryable surface of a catalog table. Column names
// listed here are the only identifiers the builder will ever concatenate
// into SQL; everything else travels as a bound parameter.
type Schema struct {
	// Table is the catalog table to search.
	Table string
	// SearchColumns are matched against the free-text term.
	SearchColumns []string
	// FacetColumns may appear in IN clauses.
	FacetColumns []string
	// RangeColumns may appear in BETWEEN clauses.
	RangeColumns []string
	// SortColumns may appear in ORDER BY. The first entry is the default
	// when a Sort names no column.
	SortColumns []string
}

// DefaultSchema is the schema of the Japanese architecture catalog this
// layer was built for. Callers with a different catalog supply their own.
func DefaultSchema() Schema {
	return Schema{
		Table:         "buildings",
		SearchColumns: []string{"name", "architect", "city"},
		FacetColumns:  []string{"category", "prefecture", "structure"},
		RangeColumns:  []string{"completion_year", "floors"},
		SortColumns:   []string{"name", "architect", "completion_year", "prefecture"},
	}
}
