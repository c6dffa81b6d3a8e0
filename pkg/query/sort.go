package query

import (
	"sort"
	"strings"

	"interaction-dashboard/pkg/interaction"
)

// Direction of a sort
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps "desc" to Descending and anything else to Ascending
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Descending)) {
		return Descending
	}
	return Ascending
}

// Sort orders records by one column. An empty or non-sortable field keeps input order.
type Sort struct {
	Field     interaction.Column `json:"field"`
	Direction Direction          `json:"direction"`
}

// Toggle returns the sort after a click on field's header: the same field
// flips direction, a new field starts ascending.
func (s Sort) Toggle(field interaction.Column) Sort {
	if s.Field == field {
		if s.Direction == Descending {
			return Sort{Field: field, Direction: Ascending}
		}
		return Sort{Field: field, Direction: Descending}
	}
	return Sort{Field: field, Direction: Ascending}
}

// Active reports whether s reorders records
func (s Sort) Active() bool {
	info, ok := interaction.Lookup(s.Field)
	return ok && info.Sortable
}

// Apply returns a stably sorted copy of records
func (s Sort) Apply(records []interaction.Interaction) []interaction.Interaction {
	out := make([]interaction.Interaction, len(records))
	copy(out, records)
	if !s.Active() {
		return out
	}

	cmp := comparator(s.Field)
	desc := s.Direction == Descending
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return cmp(out[j], out[i]) < 0
		}
		return cmp(out[i], out[j]) < 0
	})
	return out
}

func comparator(field interaction.Column) func(a, b interaction.Interaction) int {
	switch field {
	case interaction.ColumnStartTime:
		return func(a, b interaction.Interaction) int { return a.StartTime.Compare(b.StartTime) }
	case interaction.ColumnEndTime:
		return func(a, b interaction.Interaction) int { return a.EndTime.Compare(b.EndTime) }
	case interaction.ColumnDuration:
		return func(a, b interaction.Interaction) int {
			switch {
			case a.Duration < b.Duration:
				return -1
			case a.Duration > b.Duration:
				return 1
			}
			return 0
		}
	}
	return func(a, b interaction.Interaction) int {
		return strings.Compare(strings.ToLower(a.Value(field)), strings.ToLower(b.Value(field)))
	}
}
