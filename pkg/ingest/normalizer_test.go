package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/interaction"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

var fixedNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(newTestLogger(),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func exampleRow() Row {
	return Row{
		FieldConversationID: "abc123",
		FieldDate:           "6/23/25 07:00 AM",
		FieldEndDate:        "6/23/25 07:05 AM",
		FieldUsers:          "Jane Doe;John Smith",
		FieldRemote:         "+15551234567",
		FieldQueue:          "Q_SUPPORT;Q_BACKUP",
		FieldMediaType:      "voice",
		FieldDuration:       "300000",
		FieldWrapUp:         "RESOLVED;FOLLOWUP",
	}
}

func TestNormalize_ExampleRow(t *testing.T) {
	result := newTestNormalizer().Normalize([]Row{exampleRow()})

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, 0, result.Dropped)
	assert.Empty(t, result.Warnings)

	c := result.Candidates[0]
	assert.Equal(t, "abc123", c.ConversationID)
	assert.Equal(t, "Jane Doe", c.Agent)
	assert.Equal(t, "+15551234567", c.Customer)
	assert.Equal(t, "Q_SUPPORT", c.Queue)
	assert.Equal(t, "voice", c.MediaType)
	assert.Equal(t, interaction.DefaultDirection, c.Direction)
	assert.Equal(t, int64(300000), c.Duration)
	require.NotNil(t, c.WrapUp)
	assert.Equal(t, "RESOLVED;FOLLOWUP", *c.WrapUp)
	assert.Nil(t, c.Flow)
	assert.Nil(t, c.ANI)
	assert.Nil(t, c.DNIS)
	assert.True(t, c.StartTime.Equal(time.Date(2025, 6, 23, 7, 0, 0, 0, time.UTC)))
	assert.True(t, c.EndTime.Equal(time.Date(2025, 6, 23, 7, 5, 0, 0, time.UTC)))
	assert.NoError(t, c.Validate())
}

func TestNormalize_ParsesInConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	n := NewNormalizer(newTestLogger(), WithLocation(loc))

	result := n.Normalize([]Row{exampleRow()})
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, 7, result.Candidates[0].StartTime.Hour())
	assert.Equal(t, loc, result.Candidates[0].StartTime.Location())
}

func TestNormalize_DropsRowsMissingRequiredFields(t *testing.T) {
	for _, field := range RequiredFields {
		t.Run(field, func(t *testing.T) {
			row := exampleRow()
			row[field] = "   "
			result := newTestNormalizer().Normalize([]Row{row, exampleRow()})
			assert.Equal(t, 1, result.Dropped)
			assert.Len(t, result.Candidates, 1)
			assert.Equal(t, 2, result.Rows)
		})
	}

	row := exampleRow()
	delete(row, FieldUsers)
	result := newTestNormalizer().Normalize([]Row{row})
	assert.Equal(t, 1, result.Dropped)
	assert.Empty(t, result.Candidates)
}

func TestNormalize_Defaults(t *testing.T) {
	row := exampleRow()
	row[FieldUsers] = " ; ;"
	row[FieldQueue] = ""
	row[FieldMediaType] = "  "
	row[FieldDirection] = ""
	row[FieldWrapUp] = "  "
	row[FieldFlow] = " Main IVR "
	row[FieldANI] = "tel:+1555"
	row[FieldDuration] = ""

	result := newTestNormalizer().Normalize([]Row{row})
	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]

	assert.Equal(t, interaction.UnknownAgent, c.Agent)
	assert.Equal(t, interaction.UnknownQueue, c.Queue)
	assert.Equal(t, interaction.DefaultMediaType, c.MediaType)
	assert.Equal(t, interaction.DefaultDirection, c.Direction)
	assert.Nil(t, c.WrapUp)
	require.NotNil(t, c.Flow)
	assert.Equal(t, "Main IVR", *c.Flow)
	require.NotNil(t, c.ANI)
	assert.Equal(t, "tel:+1555", *c.ANI)
	assert.Equal(t, int64(0), c.Duration)
	assert.Empty(t, result.Warnings, "empty duration is not a fallback")
}

func TestNormalize_TimestampFallbackIsReported(t *testing.T) {
	row := exampleRow()
	row[FieldDate] = "yesterday-ish"

	result := newTestNormalizer().Normalize([]Row{exampleRow(), row})
	require.Len(t, result.Candidates, 2)
	assert.True(t, result.Candidates[1].StartTime.Equal(fixedNow))

	require.Len(t, result.Warnings, 1)
	w := result.Warnings[0]
	assert.Equal(t, 2, w.Row)
	assert.Equal(t, FieldDate, w.Field)
	assert.Equal(t, "yesterday-ish", w.Value)
	assert.NotEmpty(t, w.Reason)
}

func TestNormalize_DurationWarnings(t *testing.T) {
	tests := []struct {
		raw      string
		expected int64
		warned   bool
	}{
		{"300000", 300000, false},
		{" 1500.9 ", 1500, false},
		{"12abc", 12, false},
		{"abc", 0, true},
		{"-250", 0, true},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			row := exampleRow()
			row[FieldDuration] = tt.raw
			result := newTestNormalizer().Normalize([]Row{row})
			require.Len(t, result.Candidates, 1)
			assert.Equal(t, tt.expected, result.Candidates[0].Duration)
			assert.Equal(t, tt.warned, len(result.Warnings) == 1)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Time
	}{
		{"6/23/25 07:00 AM", time.Date(2025, 6, 23, 7, 0, 0, 0, time.UTC)},
		{"  6/23/25 7:15 pm ", time.Date(2025, 6, 23, 19, 15, 0, 0, time.UTC)},
		{"12/1/24 12:30 AM", time.Date(2024, 12, 1, 0, 30, 0, 0, time.UTC)},
		{"1/1/70 1:00 PM", time.Date(1970, 1, 1, 13, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in, time.UTC)
		require.NoError(t, err, tt.in)
		assert.True(t, got.Equal(tt.expected), "%s => %v", tt.in, got)
	}

	_, err := ParseTimestamp("2025-06-23T07:00:00Z", time.UTC)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	v, ok := ParseDuration("+42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)

	_, ok = ParseDuration("-")
	assert.False(t, ok)

	_, ok = ParseDuration("99999999999999999999999")
	assert.False(t, ok)
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "A", FirstToken("A;B", "x"))
	assert.Equal(t, "B", FirstToken(" ; B ;C", "x"))
	assert.Equal(t, "x", FirstToken("", "x"))
	// idempotent on canonical values
	assert.Equal(t, "Jane Doe", FirstToken(FirstToken("Jane Doe;John", "x"), "x"))
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer()
	first := n.Normalize([]Row{exampleRow()}).Candidates[0]

	again := Row{
		FieldConversationID: first.ConversationID,
		FieldDate:           first.StartTime.Format(TimestampLayout),
		FieldEndDate:        first.EndTime.Format(TimestampLayout),
		FieldUsers:          first.Agent,
		FieldRemote:         first.Customer,
		FieldQueue:          first.Queue,
		FieldMediaType:      first.MediaType,
		FieldDirection:      first.Direction,
		FieldDuration:       "300000",
		FieldWrapUp:         *first.WrapUp,
	}
	second := n.Normalize([]Row{again}).Candidates[0]
	assert.Equal(t, first, second)
}

const exampleCSV = "\ufeffFull Export Completed,Partial Result Timestamp,Filters,Media Type,Users,Remote,Date,End Date,Duration,Direction,ANI,DNIS,Queue,Wrap-up,Flow,Conversation ID\n" +
	"YES,,,voice,Jane Doe;John Smith,+15551234567,6/23/25 07:00 AM,6/23/25 07:05 AM,300000,inbound,,,Q_SUPPORT;Q_BACKUP,RESOLVED;FOLLOWUP,,abc123\n" +
	"\n" +
	",,,,,,,,,,,,,,,\n" +
	"YES,,,chat,Bob,\"Smith, Ann\",6/23/25 09:10 AM,6/23/25 09:20 AM,600000,outbound,,,Q_SALES,,Main Flow,def456\n" +
	"YES,,,chat,,+1555,6/23/25 09:10 AM,6/23/25 09:20 AM,1,outbound,,,Q_SALES,,,ghi789\n"

func TestNormalizeCSV(t *testing.T) {
	result, err := newTestNormalizer().NormalizeCSV(strings.NewReader(exampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 1, result.Dropped)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "abc123", result.Candidates[0].ConversationID)
	assert.Equal(t, "Jane Doe", result.Candidates[0].Agent)
	assert.Equal(t, "Smith, Ann", result.Candidates[1].Customer)
	assert.Equal(t, "outbound", result.Candidates[1].Direction)
}

func TestParseCSV_PadsShortRows(t *testing.T) {
	input := "Conversation ID,Date,End Date,Users,Remote,Queue\n" +
		"c1,6/23/25 07:00 AM,6/23/25 07:05 AM,Jane,+1\n"
	rows, malformed, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, malformed)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0][FieldQueue])
	assert.Equal(t, "+1", rows[0][FieldRemote])
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	rows, _, err := ParseCSV(strings.NewReader(" Conversation ID ,Date,End Date,Users,Remote\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseCSV_BatchErrors(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyUpload))

	_, _, err = ParseCSV(strings.NewReader("Conversation ID,Date\nc1,6/23/25 07:00 AM\n"))
	require.True(t, errors.Is(err, errors.ErrMissingColumns))
	assert.Equal(t, []string{FieldEndDate, FieldUsers, FieldRemote}, errors.GetErrorFields(err)["missing"])

	_, _, err = ParseCSV(iotest.ErrReader(fmt.Errorf("connection reset")))
	assert.True(t, errors.Is(err, errors.ErrMalformedCSV))

	broken := io.MultiReader(strings.NewReader(csvHeader+goodRow), iotest.ErrReader(fmt.Errorf("connection reset")))
	_, _, err = ParseCSV(broken)
	assert.True(t, errors.Is(err, errors.ErrMalformedCSV))
}

const (
	csvHeader = "Conversation ID,Date,End Date,Users,Remote,Queue\n"
	goodRow   = "c1,6/23/25 07:00 AM,6/23/25 07:05 AM,Jane Doe,+1555,Q_SUPPORT\n"
)

func TestParseCSV_StrayQuotesAreLiteral(t *testing.T) {
	input := csvHeader + goodRow +
		"c2,6/23/25 08:00 AM,6/23/25 08:05 AM,Bob \"BJ\" Smith,+1666,Q_SALES\n"

	rows, malformed, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, malformed)
	require.Len(t, rows, 2)
	assert.Equal(t, `Bob "BJ" Smith`, rows[1][FieldUsers])
	assert.Equal(t, "Q_SALES", rows[1][FieldQueue])

	result, err := newTestNormalizer().NormalizeCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Zero(t, result.Dropped)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, `Bob "BJ" Smith`, result.Candidates[1].Agent)
}

// scriptedReader replays records and errors in order, then io.EOF
type scriptedReader struct {
	steps []scriptedRead
}

type scriptedRead struct {
	record []string
	err    error
}

func (s *scriptedReader) Read() ([]string, error) {
	if len(s.steps) == 0 {
		return nil, io.EOF
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.record, step.err
}

func TestReadRows_SkipsUnsplittableRecords(t *testing.T) {
	reader := &scriptedReader{steps: []scriptedRead{
		{record: []string{FieldConversationID, FieldDate, FieldEndDate, FieldUsers, FieldRemote}},
		{record: []string{"c1", "6/23/25 07:00 AM", "6/23/25 07:05 AM", "Jane", "+1"}},
		{err: &csv.ParseError{StartLine: 3, Line: 3, Column: 4, Err: csv.ErrFieldCount}},
		{record: []string{"c3", "6/23/25 09:00 AM", "6/23/25 09:05 AM", "Bob", "+2"}},
	}}

	rows, malformed, err := readRows(reader)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c3", rows[1][FieldConversationID])
	require.Len(t, malformed, 1)
	assert.Equal(t, 3, malformed[0].Line)
	assert.Equal(t, csv.ErrFieldCount.Error(), malformed[0].Reason)

	result := newTestNormalizer().normalizeParsed(rows, malformed)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 1, result.Dropped)
	assert.Len(t, result.Candidates, 2)
}

func TestReadRows_UnreadableHeader(t *testing.T) {
	reader := &scriptedReader{steps: []scriptedRead{
		{err: &csv.ParseError{StartLine: 1, Line: 1, Column: 1, Err: csv.ErrQuote}},
	}}

	_, _, err := readRows(reader)
	assert.True(t, errors.Is(err, errors.ErrMalformedCSV))
}
