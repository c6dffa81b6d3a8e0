package query

import (
	"strings"

	"interaction-dashboard/pkg/interaction"
)

// searchAllColumns are the fields covered when searching "all"
var searchAllColumns = []interaction.Column{
	interaction.ColumnAgent,
	interaction.ColumnCustomer,
	interaction.ColumnQueue,
	interaction.ColumnMediaType,
	interaction.ColumnDirection,
	interaction.ColumnWrapUp,
	interaction.ColumnFlow,
	interaction.ColumnConversationID,
}

// Search is the table's free-text search. Matching is case-insensitive.
type Search struct {
	Term   string             `json:"term"`
	Column interaction.Column `json:"column"`
}

// Matches reports whether rec contains the term in the searched column(s).
// An empty term matches everything and so does a column that cannot be searched.
func (s Search) Matches(rec interaction.Interaction) bool {
	if s.Term == "" {
		return true
	}
	term := strings.ToLower(s.Term)

	if s.Column == "" || s.Column == All {
		for _, col := range searchAllColumns {
			if textContains(rec, col, term) {
				return true
			}
		}
		return false
	}

	if !searchable(s.Column) {
		return true
	}
	return textContains(rec, s.Column, term)
}

func searchable(col interaction.Column) bool {
	for _, c := range searchAllColumns {
		if c == col {
			return true
		}
	}
	return false
}

func textContains(rec interaction.Interaction, col interaction.Column, lowerTerm string) bool {
	value, ok := rec.Text(col)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(value), lowerTerm)
}
