package query

import (
	"interaction-dashboard/pkg/interaction"
)

// Table is the state of one interactive table view. Any change to what
// matches, or to the page size, returns to the first page.
type Table struct {
	filter   Filter
	search   Search
	sort     Sort
	columns  ColumnFilters
	page     int
	pageSize int
	layout   *interaction.Layout
}

// NewTable creates a table on page 1 with the given page size
func NewTable(pageSize int) *Table {
	return &Table{
		search:   Search{Column: All},
		columns:  make(ColumnFilters),
		page:     1,
		pageSize: ValidPageSize(pageSize),
		layout:   interaction.DefaultLayout(),
	}
}

// SetFilter replaces the dashboard header filter
func (t *Table) SetFilter(filter Filter) {
	t.filter = filter
	t.page = 1
}

// SetSearch sets the search term
func (t *Table) SetSearch(term string) {
	t.search.Term = term
	t.page = 1
}

// SetSearchColumn limits the search to one column, or every column with All
func (t *Table) SetSearchColumn(col interaction.Column) {
	t.search.Column = col
	t.page = 1
}

// SetPageSize sets the page size; sizes outside PageSizes use the default
func (t *Table) SetPageSize(size int) {
	t.pageSize = ValidPageSize(size)
	t.page = 1
}

// ToggleSort handles a click on a column header
func (t *Table) ToggleSort(field interaction.Column) {
	t.sort = t.sort.Toggle(field)
	t.page = 1
}

// SetColumnFilter checks or unchecks one value of a column's checkbox filter
func (t *Table) SetColumnFilter(col interaction.Column, value string, checked bool) {
	t.columns.Set(col, value, checked)
	t.page = 1
}

// ClearColumnFilter unchecks every value of a column's checkbox filter
func (t *Table) ClearColumnFilter(col interaction.Column) {
	t.columns.Clear(col)
	t.page = 1
}

// SetPage moves to page. The page is clamped when the query is applied.
func (t *Table) SetPage(page int) {
	t.page = page
}

// Page returns the current 1-based page
func (t *Table) Page() int { return t.page }

// PageSize returns the rows per page
func (t *Table) PageSize() int { return t.pageSize }

// Filter returns the header filter
func (t *Table) Filter() Filter { return t.filter }

// Sort returns the active sort
func (t *Table) Sort() Sort { return t.sort }

// Search returns the search term and column
func (t *Table) Search() Search { return t.search }

// Layout returns the column layout
func (t *Table) Layout() *interaction.Layout { return t.layout }

// Query returns a snapshot of the table state as a query
func (t *Table) Query() Query {
	return Query{
		Filter:   t.filter,
		Columns:  t.columns.Clone(),
		Search:   t.search,
		Sort:     t.sort,
		Page:     t.page,
		PageSize: t.pageSize,
	}
}

// Apply runs the table's query and keeps the clamped page
func (t *Table) Apply(records []interaction.Interaction) Result {
	result := Apply(records, t.Query())
	t.page = result.Page
	return result
}
