package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/interaction"
	"interaction-dashboard/pkg/query"
)

const dateOnlyLayout = "2006-01-02"

// columnFilterPrefix marks checkbox filter parameters, as in cf.queue=Q_SALES
const columnFilterPrefix = "cf."

// parseTime accepts RFC 3339 or a bare date in loc. A bare date used as an
// upper bound means the last instant of that day.
func parseTime(value string, endOfDay bool, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	day, err := time.ParseInLocation(dateOnlyLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

func parseTimeParam(values url.Values, name string, endOfDay bool, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := parseTime(raw, endOfDay, loc)
	if err != nil {
		return nil, errors.NewInvalidInput(fmt.Sprintf("invalid %s: %v", name, err)).WithField("value", raw)
	}
	return &t, nil
}

// parseFilter reads the header filter. Only a malformed date is an error.
func parseFilter(values url.Values, loc *time.Location) (query.Filter, error) {
	from, err := parseTimeParam(values, "from", false, loc)
	if err != nil {
		return query.Filter{}, err
	}
	to, err := parseTimeParam(values, "to", true, loc)
	if err != nil {
		return query.Filter{}, err
	}

	return query.Filter{
		From:      from,
		To:        to,
		Queue:     values.Get("queue"),
		Agent:     values.Get("agent"),
		MediaType: values.Get("mediaType"),
		WrapUp:    values.Get("wrapUp"),
		Flow:      values.Get("flow"),
	}, nil
}

// parseTableQuery reads search, sort, paging and checkbox filters. Bad
// values fall back to defaults.
func parseTableQuery(values url.Values, filter query.Filter, defaultPageSize int) query.Query {
	q := query.Query{
		Filter: filter,
		Search: query.Search{
			Term:   values.Get("search"),
			Column: interaction.Column(values.Get("column")),
		},
		Sort: query.Sort{
			Field:     interaction.Column(values.Get("sort")),
			Direction: query.ParseDirection(values.Get("dir")),
		},
		Page:     intParam(values, "page", 1),
		PageSize: query.ValidPageSize(intParam(values, "pageSize", defaultPageSize)),
	}

	for key, vals := range values {
		col, ok := strings.CutPrefix(key, columnFilterPrefix)
		if !ok {
			continue
		}
		if q.Columns == nil {
			q.Columns = query.ColumnFilters{}
		}
		for _, v := range vals {
			q.Columns.Set(interaction.Column(col), v, true)
		}
	}
	return q
}

func intParam(values url.Values, name string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(values.Get(name)))
	if err != nil {
		return fallback
	}
	return n
}

// parseColumns reads a comma separated column list, skipping unknown names
func parseColumns(values url.Values) []interaction.Column {
	var cols []interaction.Column
	for _, raw := range strings.Split(values.Get("columns"), ",") {
		col := interaction.Column(strings.TrimSpace(raw))
		if col.Valid() {
			cols = append(cols, col)
		}
	}
	return cols
}

// listParam collects repeated and comma separated values of name
func listParam(values url.Values, name string) []string {
	var out []string
	for _, v := range values[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
