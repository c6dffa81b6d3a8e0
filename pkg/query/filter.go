package query

import (
	"strings"
	"time"

	"interaction-dashboard/pkg/interaction"
)

// All is the selector value that matches every record
const All = "all"

// Filter is the dashboard header filter. Dimension selectors are
// case-sensitive substring matches; a date bound is inclusive on StartTime.
type Filter struct {
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Queue     string     `json:"queue,omitempty"`
	Agent     string     `json:"agent,omitempty"`
	MediaType string     `json:"mediaType,omitempty"`
	WrapUp    string     `json:"wrapUp,omitempty"`
	Flow      string     `json:"flow,omitempty"`
}

func isAll(selector string) bool {
	return selector == "" || selector == All
}

func containsSelector(value, selector string) bool {
	return isAll(selector) || strings.Contains(value, selector)
}

func containsNullable(value *string, selector string) bool {
	if isAll(selector) {
		return true
	}
	return value != nil && strings.Contains(*value, selector)
}

// Matches reports whether rec passes every active selector
func (f Filter) Matches(rec interaction.Interaction) bool {
	if f.From != nil && rec.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && rec.StartTime.After(*f.To) {
		return false
	}
	return containsSelector(rec.Queue, f.Queue) &&
		containsSelector(rec.Agent, f.Agent) &&
		containsSelector(rec.MediaType, f.MediaType) &&
		containsNullable(rec.WrapUp, f.WrapUp) &&
		containsNullable(rec.Flow, f.Flow)
}

// IsEmpty reports whether the filter matches everything
func (f Filter) IsEmpty() bool {
	return f.From == nil && f.To == nil &&
		isAll(f.Queue) && isAll(f.Agent) && isAll(f.MediaType) &&
		isAll(f.WrapUp) && isAll(f.Flow)
}

// Apply returns the matching records in input order
func (f Filter) Apply(records []interaction.Interaction) []interaction.Interaction {
	out := make([]interaction.Interaction, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// ColumnFilters holds the checkbox filters of the table: for each column, the
// exact values allowed. A column with no values is unconstrained.
type ColumnFilters map[interaction.Column]map[string]bool

// FilterableColumns are the columns offering checkbox filters
var FilterableColumns = []interaction.Column{
	interaction.ColumnAgent,
	interaction.ColumnQueue,
	interaction.ColumnMediaType,
	interaction.ColumnDirection,
	interaction.ColumnWrapUp,
}

func isFilterable(col interaction.Column) bool {
	for _, c := range FilterableColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Set checks or unchecks value for col
func (cf ColumnFilters) Set(col interaction.Column, value string, checked bool) {
	if !isFilterable(col) {
		return
	}
	values := cf[col]
	if checked {
		if values == nil {
			values = make(map[string]bool)
			cf[col] = values
		}
		values[value] = true
		return
	}
	delete(values, value)
	if len(values) == 0 {
		delete(cf, col)
	}
}

// Clear removes every checked value of col
func (cf ColumnFilters) Clear(col interaction.Column) {
	delete(cf, col)
}

// Values returns the checked values of col
func (cf ColumnFilters) Values(col interaction.Column) []string {
	out := make([]string, 0, len(cf[col]))
	for v := range cf[col] {
		out = append(out, v)
	}
	return out
}

// Matches reports whether rec's value is allowed for every constrained column.
// A nil wrap-up compares as "".
func (cf ColumnFilters) Matches(rec interaction.Interaction) bool {
	for col, allowed := range cf {
		if len(allowed) == 0 {
			continue
		}
		if !allowed[rec.Value(col)] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy
func (cf ColumnFilters) Clone() ColumnFilters {
	out := make(ColumnFilters, len(cf))
	for col, values := range cf {
		copied := make(map[string]bool, len(values))
		for v := range values {
			copied[v] = true
		}
		out[col] = copied
	}
	return out
}
