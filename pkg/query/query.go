// Package query filters, searches, sorts and paginates interaction records for
// the dashboard table. Nothing here returns an error: out-of-range input is
// clamped to the nearest valid value.
package query

import (
	"interaction-dashboard/pkg/interaction"
)

// PageSizes are the page sizes the table offers
var PageSizes = []int{10, 20, 50, 100}

// DefaultPageSize is used when a requested size is not offered
const DefaultPageSize = 10

// ValidPageSize returns size if offered, otherwise DefaultPageSize
func ValidPageSize(size int) int {
	for _, s := range PageSizes {
		if s == size {
			return size
		}
	}
	return DefaultPageSize
}

// Query is one table request
type Query struct {
	Filter   Filter        `json:"filter"`
	Columns  ColumnFilters `json:"columns,omitempty"`
	Search   Search        `json:"search"`
	Sort     Sort          `json:"sort"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// Result is one page of matching records
type Result struct {
	Items        []interaction.Interaction `json:"items"`
	TotalMatched int                       `json:"totalMatched"`
	TotalPages   int                       `json:"totalPages"`
	Page         int                       `json:"page"`
	PageSize     int                       `json:"pageSize"`
}

// Apply runs the header filter, checkbox filters, search, sort and pagination
// in that order. records is not modified.
func Apply(records []interaction.Interaction, q Query) Result {
	matched := make([]interaction.Interaction, 0, len(records))
	for _, r := range records {
		if q.Filter.Matches(r) && q.Columns.Matches(r) && q.Search.Matches(r) {
			matched = append(matched, r)
		}
	}

	return Paginate(q.Sort.Apply(matched), q.Page, q.PageSize)
}

// Paginate slices one page out of records. The page is clamped to
// [1, TotalPages]; with nothing matched TotalPages is 0 and the page is 1.
func Paginate(records []interaction.Interaction, page, pageSize int) Result {
	size := ValidPageSize(pageSize)
	total := len(records)
	totalPages := (total + size - 1) / size

	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	items := make([]interaction.Interaction, end-start)
	copy(items, records[start:end])

	return Result{
		Items:        items,
		TotalMatched: total,
		TotalPages:   totalPages,
		Page:         page,
		PageSize:     size,
	}
}
