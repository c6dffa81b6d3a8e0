package analytics

import (
	"sort"
	"strings"

	"interaction-dashboard/pkg/interaction"
)

// WrapUpCount is the number of times a wrap-up code was applied
type WrapUpCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// SplitWrapUp returns the trimmed, non-empty codes of a ';'-delimited wrap-up value
func SplitWrapUp(value string) []string {
	var codes []string
	for _, part := range strings.Split(value, ";") {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// WrapUpDistribution counts every code of every record's wrap-up, so a record
// with "A;B" counts once for A and once for B. Most used first, ties first-seen.
func WrapUpDistribution(records []interaction.Interaction) []WrapUpCount {
	counts := make(map[string]int)
	var order []string

	for _, r := range records {
		if r.WrapUp == nil {
			continue
		}
		for _, code := range SplitWrapUp(*r.WrapUp) {
			if _, seen := counts[code]; !seen {
				order = append(order, code)
			}
			counts[code]++
		}
	}

	result := make([]WrapUpCount, 0, len(order))
	for _, code := range order {
		result = append(result, WrapUpCount{Code: code, Count: counts[code]})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

// WrapUpCodes returns the distinct wrap-up codes, sorted
func WrapUpCodes(records []interaction.Interaction) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.WrapUp == nil {
			continue
		}
		for _, code := range SplitWrapUp(*r.WrapUp) {
			seen[code] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// DistinctValues returns the distinct non-empty display values of a column, sorted
func DistinctValues(records []interaction.Interaction, col interaction.Column) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		if v := r.Value(col); v != "" {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// FilterValues keeps the values containing term, ignoring case
func FilterValues(values []string, term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return values
	}

	var out []string
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), term) {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
