package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"interaction-dashboard/pkg/interaction"
	"interaction-dashboard/pkg/metrics"
)

// Source column names of a Genesys Cloud interaction export
const (
	FieldConversationID = "Conversation ID"
	FieldDate           = "Date"
	FieldEndDate        = "End Date"
	FieldUsers          = "Users"
	FieldRemote         = "Remote"
	FieldQueue          = "Queue"
	FieldMediaType      = "Media Type"
	FieldDirection      = "Direction"
	FieldDuration       = "Duration"
	FieldWrapUp         = "Wrap-up"
	FieldFlow           = "Flow"
	FieldANI            = "ANI"
	FieldDNIS           = "DNIS"
)

// TimestampLayout is the export's "M/d/yy h:mm a" date format
const TimestampLayout = "1/2/06 3:04 PM"

// RequiredFields must be present and non-blank for a row to be kept
var RequiredFields = []string{
	FieldConversationID,
	FieldDate,
	FieldEndDate,
	FieldUsers,
	FieldRemote,
}

// Row is one CSV data row keyed by header name
type Row map[string]string

// Warning describes a field value that was replaced by a default
type Warning struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Result is the outcome of normalizing a batch of rows
type Result struct {
	Candidates []interaction.Candidate `json:"-"`
	Rows       int                     `json:"rows"`
	Dropped    int                     `json:"dropped"`
	Warnings   []Warning               `json:"warnings"`
}

// Normalizer converts raw export rows into interaction candidates
type Normalizer struct {
	logger   *logrus.Logger
	location *time.Location
	now      func() time.Time
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithLocation sets the time zone export timestamps are interpreted in
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.location = loc
		}
	}
}

// WithClock replaces the clock used for unparseable timestamps
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNormalizer creates a normalizer using local time and the system clock
func NewNormalizer(logger *logrus.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		logger:   logger,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Location returns the time zone timestamps are parsed in
func (n *Normalizer) Location() *time.Location {
	return n.location
}

// Normalize converts rows into candidates, dropping rows that lack a required field.
// Row problems never fail the batch.
func (n *Normalizer) Normalize(rows []Row) *Result {
	result := &Result{
		Candidates: make([]interaction.Candidate, 0, len(rows)),
		Rows:       len(rows),
	}

	for i, row := range rows {
		rowNum := i + 1
		if missing := missingRequired(row); missing != "" {
			result.Dropped++
			n.logger.WithFields(logrus.Fields{
				"row":   rowNum,
				"field": missing,
			}).Debug("Dropping row without required field")
			continue
		}

		candidate, warnings := n.normalizeRow(rowNum, row)
		result.Candidates = append(result.Candidates, candidate)
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result
}

func missingRequired(row Row) string {
	for _, field := range RequiredFields {
		if strings.TrimSpace(row[field]) == "" {
			return field
		}
	}
	return ""
}

func (n *Normalizer) normalizeRow(rowNum int, row Row) (interaction.Candidate, []Warning) {
	var warnings []Warning
	warn := func(field, value, reason string) {
		warnings = append(warnings, Warning{Row: rowNum, Field: field, Value: value, Reason: reason})
		metrics.RecordFieldFallback(field)
		n.logger.WithFields(logrus.Fields{
			"row":    rowNum,
			"field":  field,
			"value":  value,
			"reason": reason,
		}).Warn("Field value replaced by default")
	}

	timestamp := func(field string) time.Time {
		value := row[field]
		t, err := ParseTimestamp(value, n.location)
		if err != nil {
			warn(field, value, "unparseable timestamp, using current time")
			return n.now().In(n.location)
		}
		return t
	}

	startTime := timestamp(FieldDate)
	endTime := timestamp(FieldEndDate)

	durationRaw := row[FieldDuration]
	duration, ok := ParseDuration(durationRaw)
	switch {
	case !ok:
		warn(FieldDuration, durationRaw, "non-numeric duration, using 0")
	case duration < 0:
		warn(FieldDuration, durationRaw, "negative duration, using 0")
		duration = 0
	}

	candidate := interaction.Candidate{
		ConversationID: strings.TrimSpace(row[FieldConversationID]),
		Agent:          FirstToken(row[FieldUsers], interaction.UnknownAgent),
		Customer:       strings.TrimSpace(row[FieldRemote]),
		Queue:          FirstToken(row[FieldQueue], interaction.UnknownQueue),
		MediaType:      withDefault(row[FieldMediaType], interaction.DefaultMediaType),
		Direction:      withDefault(row[FieldDirection], interaction.DefaultDirection),
		Duration:       duration,
		WrapUp:         nullable(row[FieldWrapUp]),
		Flow:           nullable(row[FieldFlow]),
		StartTime:      startTime,
		EndTime:        endTime,
		ANI:            nullable(row[FieldANI]),
		DNIS:           nullable(row[FieldDNIS]),
	}

	return candidate, warnings
}

// ParseTimestamp parses an export timestamp like "6/23/25 07:00 AM" in loc.
// The AM/PM marker is case-insensitive.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(TimestampLayout, strings.ToUpper(strings.TrimSpace(value)), loc)
}

// ParseDuration reads the leading integer of value, so "1500.9" is 1500.
// Empty input is 0 and ok. Input without leading digits is 0 and not ok.
func ParseDuration(value string) (ms int64, ok bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, true
	}

	end := 0
	if s[0] == '-' || s[0] == '+' {
		end = 1
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FirstToken returns the first non-blank entry of a ';'-delimited list, or fallback
func FirstToken(value, fallback string) string {
	for _, part := range strings.Split(value, ";") {
		if p := strings.TrimSpace(part); p != "" {
			return p
		}
	}
	return fallback
}

func withDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func nullable(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
