package dashboard

import (
	"context"
	"fmt"
	"io"
	"strings"

	"interaction-dashboard/pkg/analytics"
	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/export"
	"interaction-dashboard/pkg/interaction"
	"interaction-dashboard/pkg/metrics"
	"interaction-dashboard/pkg/query"
)

// AnalysisTopAgents is the size of the agent analysis ranking
const AnalysisTopAgents = 10

// Overview is the main dashboard view
type Overview struct {
	Summary     analytics.Summary            `json:"summary"`
	TopAgents   []analytics.AgentPerformance `json:"topAgents"`
	Queues      []analytics.QueuePerformance `json:"queues"`
	HourlyTrend []analytics.HourCount        `json:"hourlyTrend"`
}

// Overview aggregates the records passing filter. topN <= 0 uses the
// configured ranking size.
func (s *Service) Overview(ctx context.Context, filter query.Filter, topN int) (*Overview, error) {
	defer metrics.ObserveOperation("overview")()

	if topN <= 0 {
		topN = s.options.TopAgents
	}

	records, err := s.filtered(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Summary:     analytics.Summarize(records),
		TopAgents:   analytics.TopAgents(records, topN),
		Queues:      analytics.QueueDistribution(records),
		HourlyTrend: analytics.HourlyTrendIn(records, s.normalizer.Location()),
	}, nil
}

// AnalysisKind names one analysis view
type AnalysisKind string

const (
	AnalysisQueue  AnalysisKind = "queue"
	AnalysisAgent  AnalysisKind = "agent"
	AnalysisTime   AnalysisKind = "time"
	AnalysisWrapUp AnalysisKind = "wrapup"
)

// ParseAnalysisKind validates an analysis view name
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	switch k := AnalysisKind(strings.ToLower(s)); k {
	case AnalysisQueue, AnalysisAgent, AnalysisTime, AnalysisWrapUp:
		return k, nil
	}
	return "", errors.NewNotFound(fmt.Sprintf("unknown analysis %q", s))
}

// Analysis is one analysis view. Only the sections of its kind are set.
type Analysis struct {
	Kind    AnalysisKind      `json:"kind"`
	Summary analytics.Summary `json:"summary"`

	Queues      []analytics.QueuePerformance `json:"queues,omitempty"`
	Agents      []analytics.AgentPerformance `json:"agents,omitempty"`
	HourOfDay   []analytics.HourCount        `json:"hourOfDay,omitempty"`
	HourlyTrend []analytics.HourCount        `json:"hourlyTrend,omitempty"`
	WrapUps     []analytics.WrapUpCount      `json:"wrapUps,omitempty"`
}

// Analysis computes one analysis view over the records passing filter
func (s *Service) Analysis(ctx context.Context, kind AnalysisKind, filter query.Filter) (*Analysis, error) {
	defer metrics.ObserveOperation("analysis_" + string(kind))()

	records, err := s.filtered(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &Analysis{Kind: kind, Summary: analytics.Summarize(records)}
	switch kind {
	case AnalysisQueue:
		result.Queues = analytics.QueueDistribution(records)
	case AnalysisAgent:
		result.Agents = analytics.TopAgents(records, AnalysisTopAgents)
	case AnalysisTime:
		result.HourOfDay = analytics.HourOfDayIn(records, s.normalizer.Location())
		result.HourlyTrend = analytics.HourlyTrendIn(records, s.normalizer.Location())
	case AnalysisWrapUp:
		result.WrapUps = analytics.WrapUpDistribution(records)
	default:
		return nil, errors.NewNotFound(fmt.Sprintf("unknown analysis %q", kind))
	}
	return result, nil
}

// Table returns one page of the interaction table
func (s *Service) Table(ctx context.Context, q query.Query) (query.Result, error) {
	defer metrics.ObserveOperation("table")()

	records, err := s.store.ListAll(ctx)
	if err != nil {
		return query.Result{}, err
	}
	return query.Apply(records, q), nil
}

// FilterOptions lists the values offered by the dashboard dropdowns
type FilterOptions struct {
	Queues      []string `json:"queues"`
	Agents      []string `json:"agents"`
	MediaTypes  []string `json:"mediaTypes"`
	Directions  []string `json:"directions"`
	Flows       []string `json:"flows"`
	WrapUpCodes []string `json:"wrapUpCodes"`
}

// FilterOptions returns the distinct values of every filterable dimension,
// optionally narrowed to values containing search
func (s *Service) FilterOptions(ctx context.Context, search string) (*FilterOptions, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	distinct := func(col interaction.Column) []string {
		return nonNil(analytics.FilterValues(analytics.DistinctValues(records, col), search))
	}
	return &FilterOptions{
		Queues:      distinct(interaction.ColumnQueue),
		Agents:      distinct(interaction.ColumnAgent),
		MediaTypes:  distinct(interaction.ColumnMediaType),
		Directions:  distinct(interaction.ColumnDirection),
		Flows:       distinct(interaction.ColumnFlow),
		WrapUpCodes: nonNil(analytics.FilterValues(analytics.WrapUpCodes(records), search)),
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Export writes the records passing filter in the given format. columns
// selects the print report columns and is ignored for CSV.
func (s *Service) Export(ctx context.Context, format export.Format, filter query.Filter, columns []interaction.Column, w io.Writer) error {
	defer metrics.ObserveOperation("export_" + string(format))()

	records, err := s.filtered(ctx, filter)
	if err != nil {
		return err
	}

	switch format {
	case export.FormatCSV:
		return export.WriteCSV(w, records)
	case export.FormatPrint:
		return export.WritePrintTable(w, records, export.PrintOptions{
			MaxRows:     s.options.PrintMaxRows,
			Columns:     columns,
			GeneratedAt: s.now(),
		})
	}
	return errors.NewInvalidInput(fmt.Sprintf("unsupported export format %q", format))
}
