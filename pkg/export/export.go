// Package export renders interaction records as downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"interaction-dashboard/pkg/interaction"
)

// Format of an export
type Format string

const (
	FormatCSV   Format = "csv"
	FormatPrint Format = "print"
)

// ParseFormat validates an export format name
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, true
	case FormatPrint:
		return FormatPrint, true
	}
	return "", false
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// FileName returns the download name for an export generated at t
func (f Format) FileName(t time.Time) string {
	if f == FormatCSV {
		return CSVFileName(t)
	}
	return ReportFileName(t)
}

// CSVHeader is the header row of a CSV export
var CSVHeader = []string{
	"Agent", "Customer", "Queue", "Media Type", "Duration",
	"Wrap-up", "Start Time", "End Time", "Conversation ID",
}

// ISOMillis is the UTC timestamp format of CSV exports
const ISOMillis = "2006-01-02T15:04:05.000Z"

// WriteCSV writes one row per record. Durations are raw milliseconds and
// timestamps UTC with millisecond precision.
func WriteCSV(w io.Writer, records []interaction.Interaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.Agent,
			r.Customer,
			r.Queue,
			r.MediaType,
			strconv.FormatInt(r.Duration, 10),
			interaction.Deref(r.WrapUp),
			r.StartTime.UTC().Format(ISOMillis),
			r.EndTime.UTC().Format(ISOMillis),
			r.ConversationID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatDuration renders milliseconds as "m:ss"
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSeconds := ms / 1000
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// CSVFileName is the download name of a CSV export generated at t
func CSVFileName(t time.Time) string {
	return fmt.Sprintf("interactions-export-%s.csv", t.UTC().Format("2006-01-02"))
}

// ReportFileName is the download name of a print report generated at t
func ReportFileName(t time.Time) string {
	return fmt.Sprintf("interactions-report-%s.txt", t.UTC().Format("2006-01-02"))
}
