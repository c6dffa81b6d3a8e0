package export

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"interaction-dashboard/pkg/interaction"
)

// Report defaults
const (
	ReportTitle     = "Genesys Cloud Interactions Report"
	DefaultMaxRows  = 50
	convIDPrintSize = 8
)

// PrintOptions controls the print report
type PrintOptions struct {
	// MaxRows caps the table; zero means DefaultMaxRows
	MaxRows int

	// Columns selects and orders the table columns; empty means the standard set
	Columns []interaction.Column

	// GeneratedAt is shown under the title; zero means now
	GeneratedAt time.Time
}

type printColumn struct {
	label string
	value func(interaction.Interaction) string
}

func printDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func shortConvID(id string) string {
	r := []rune(id)
	if len(r) > convIDPrintSize {
		r = r[:convIDPrintSize]
	}
	return string(r) + "..."
}

var printColumns = map[interaction.Column]printColumn{
	interaction.ColumnAgent:          {"Agent", func(r interaction.Interaction) string { return r.Agent }},
	interaction.ColumnCustomer:       {"Customer", func(r interaction.Interaction) string { return r.Customer }},
	interaction.ColumnQueue:          {"Queue", func(r interaction.Interaction) string { return r.Queue }},
	interaction.ColumnMediaType:      {"Media Type", func(r interaction.Interaction) string { return r.MediaType }},
	interaction.ColumnDuration:       {"Duration", func(r interaction.Interaction) string { return FormatDuration(r.Duration) }},
	interaction.ColumnWrapUp:         {"Wrap-up", func(r interaction.Interaction) string { return orDash(r.WrapUp) }},
	interaction.ColumnStartTime:      {"Start Date", func(r interaction.Interaction) string { return printDate(r.StartTime) }},
	interaction.ColumnEndTime:        {"End Date", func(r interaction.Interaction) string { return printDate(r.EndTime) }},
	interaction.ColumnConversationID: {"Conv ID", func(r interaction.Interaction) string { return shortConvID(r.ConversationID) }},
	interaction.ColumnDirection:      {"Direction", func(r interaction.Interaction) string { return r.Direction }},
	interaction.ColumnFlow:           {"Flow", func(r interaction.Interaction) string { return orDash(r.Flow) }},
	interaction.ColumnANI:            {"ANI", func(r interaction.Interaction) string { return orDash(r.ANI) }},
	interaction.ColumnDNIS:           {"DNIS", func(r interaction.Interaction) string { return orDash(r.DNIS) }},
}

// DefaultPrintColumns is the standard report column set
var DefaultPrintColumns = []interaction.Column{
	interaction.ColumnAgent,
	interaction.ColumnCustomer,
	interaction.ColumnQueue,
	interaction.ColumnMediaType,
	interaction.ColumnDuration,
	interaction.ColumnWrapUp,
	interaction.ColumnStartTime,
	interaction.ColumnEndTime,
	interaction.ColumnConversationID,
}

// WritePrintTable writes a plain-text report: title, generation date, total
// count and an aligned table of at most MaxRows records.
func WritePrintTable(w io.Writer, records []interaction.Interaction, opts PrintOptions) error {
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	var cols []printColumn
	selected := opts.Columns
	if len(selected) == 0 {
		selected = DefaultPrintColumns
	}
	for _, c := range selected {
		if pc, ok := printColumns[c]; ok {
			cols = append(cols, pc)
		}
	}

	if _, err := fmt.Fprintf(w, "%s\n\nGenerated on: %s\nTotal Interactions: %d\n\n",
		ReportTitle, generated.Format("2006-01-02"), len(records)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = c.label
	}
	fmt.Fprintln(tw, strings.Join(labels, "\t"))

	shown := records
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	cells := make([]string, len(cols))
	for _, r := range shown {
		for i, c := range cols {
			cells[i] = sanitizeCell(c.value(r))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(records) > maxRows {
		_, err := fmt.Fprintf(w, "\nShowing %d of %d interactions\n", maxRows, len(records))
		return err
	}
	return nil
}

// sanitizeCell keeps cell text on one line and out of the tab grid
func sanitizeCell(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}
