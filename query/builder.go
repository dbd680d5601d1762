package query

import (
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownColumn indicates a facet, range, or sort column that is not on
// the schema's allow-list. Identifiers cannot be parameter-bound, so the
// allow-list is the injection defense.
type ErrUnknownColumn struct {
	Column string
	Role   string
}

func (e *ErrUnknownColumn) Error() string {
	return fmt.Sprintf("unknown %s column %q", e.Role, e.Column)
}

// Build translates a FilterSet into one page statement and one companion
// count statement sharing the same WHERE construction, so the total and the
// page always reflect identical filtering.
//
// Clause order is fixed: free-text LIKE group, then multi-value facets
// (names sorted, values deduplicated and sorted), then numeric ranges
// (names sorted). The WHERE clause always starts with 1=1 so the statement
// shape is stable across filter states. Determinism here is load-bearing:
// the result cache recognizes repeated searches only because equal filter
// sets serialize to byte-identical SQL.
func Build(schema Schema, filters FilterSet, sort Sort, page Page) (pageReq Request, countReq Request, err error) {
	where, params, err := buildWhere(schema, filters)
	if err != nil {
		return Request{}, Request{}, err
	}

	orderBy, err := buildOrderBy(schema, sort)
	if err != nil {
		return Request{}, Request{}, err
	}

	number := page.Number
	if number < 1 {
		number = 1
	}
	size := page.Size
	if size < 1 {
		size = 1
	}
	offset := (number - 1) * size

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(schema.Table)
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	if orderBy != "" {
		sb.WriteString(" ")
		sb.WriteString(orderBy)
	}
	fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", size, offset)

	pageReq = Request{SQL: sb.String(), Params: params}
	countReq = Request{
		SQL:    "SELECT COUNT(*) AS total FROM " + schema.Table + " WHERE " + where,
		Params: slices.Clone(params),
	}
	return pageReq, countReq, nil
}

func buildWhere(schema Schema, filters FilterSet) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("1=1")
	params := make([]any, 0, 8)

	if filters.Text != "" {
		pattern := "%" + filters.Text + "%"
		sb.WriteString(" AND (")
		for i, col := range schema.SearchColumns {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			sb.WriteString(col)
			sb.WriteString(" LIKE ?")
			params = append(params, pattern)
		}
		sb.WriteString(")")
	}

	for _, name := range sortedKeys(filters.Facets) {
		values := filters.Facets[name]
		if len(values) == 0 {
			continue
		}
		if !slices.Contains(schema.FacetColumns, name) {
			return "", nil, &ErrUnknownColumn{Column: name, Role: "facet"}
		}
		values = slices.Clone(values)
		slices.Sort(values)
		values = slices.Compact(values)

		sb.WriteString(" AND ")
		sb.WriteString(name)
		sb.WriteString(" IN (")
		for i, v := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			params = append(params, v)
		}
		sb.WriteString(")")
	}

	for _, name := range sortedKeys(filters.Ranges) {
		if !slices.Contains(schema.RangeColumns, name) {
			return "", nil, &ErrUnknownColumn{Column: name, Role: "range"}
		}
		r := filters.Ranges[name]
		sb.WriteString(" AND ")
		sb.WriteString(name)
		sb.WriteString(" BETWEEN ? AND ?")
		params = append(params, r.Min, r.Max)
	}

	return sb.String(), params, nil
}

// buildOrderBy resolves the sort column against the allow-list. An empty
// column means "no preference" and resolves to the schema's first sort
// column, so a zero Sort still emits a stable ORDER BY. A schema with no
// sort columns emits no clause at all.
func buildOrderBy(schema Schema, sort Sort) (string, error) {
	column := sort.Column
	if column == "" {
		if len(schema.SortColumns) == 0 {
			return "", nil
		}
		column = schema.SortColumns[0]
	} else if !slices.Contains(schema.SortColumns, column) {
		return "", &ErrUnknownColumn{Column: column, Role: "sort"}
	}
	dir := "ASC"
	if sort.Descending {
		dir = "DESC"
	}
	return "ORDER BY " + column + " " + dir, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
