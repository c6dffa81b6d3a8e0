package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interaction-dashboard/pkg/analytics"
	"interaction-dashboard/pkg/correlation"
	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/export"
	"interaction-dashboard/pkg/ingest"
	"interaction-dashboard/pkg/interaction"
	"interaction-dashboard/pkg/query"
	"interaction-dashboard/pkg/store"
)

const header = "Media Type,Users,Remote,Date,End Date,Duration,Direction,ANI,DNIS,Queue,Wrap-up,Flow,Conversation ID\n"

const sampleCSV = header +
	"voice,Jane Doe;John Smith,+15551234567,6/23/25 07:00 AM,6/23/25 07:05 AM,300000,inbound,,,Q_SUPPORT;Q_BACKUP,RESOLVED;FOLLOWUP,,abc123\n" +
	"chat,Bob,\"Smith, Ann\",6/23/25 09:10 AM,6/23/25 09:20 AM,600000,outbound,,,Q_SALES,,Main Flow,def456\n" +
	"chat,,+1555,6/23/25 09:10 AM,6/23/25 09:20 AM,1,outbound,,,Q_SALES,,,ghi789\n"

var fixedNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	normalizer := ingest.NewNormalizer(logger,
		ingest.WithLocation(time.UTC),
		ingest.WithClock(func() time.Time { return fixedNow }))
	svc := NewService(logger, store.NewMemoryStore(), normalizer, Options{})
	svc.now = func() time.Time { return fixedNow }

	pub := &recordingPublisher{}
	svc.AddPublisher(pub)
	return svc, pub
}

func TestImport(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := correlation.WithCorrelationID(context.Background(), "corr-1")

	result, err := svc.Import(ctx, "export.csv", strings.NewReader(sampleCSV), "")
	require.NoError(t, err)

	assert.NotEmpty(t, result.UploadID)
	assert.Equal(t, ModeAppend, result.Mode)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 2, result.Total)
	assert.NotNil(t, result.Warnings)

	records, err := svc.Interactions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "def456", records[0].ConversationID)
	assert.Equal(t, "Jane Doe", records[1].Agent)
	assert.Equal(t, "Q_SUPPORT", records[1].Queue)

	uploads := svc.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "export.csv", uploads[0].FileName)
	assert.Equal(t, 2, uploads[0].RecordCount)
	assert.Equal(t, int64(len(sampleCSV)), uploads[0].Size)

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventImported, pub.events[0].Type)
	assert.Equal(t, "corr-1", pub.events[0].CorrelationID)
	assert.Equal(t, []string{result.UploadID}, pub.events[0].UploadIDs)
}

func TestImport_AppendAndReplace(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "a.csv", strings.NewReader(sampleCSV), ModeAppend)
	require.NoError(t, err)
	second, err := svc.Import(ctx, "b.csv", strings.NewReader(sampleCSV), ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Total)
	assert.Len(t, svc.Uploads(), 2)

	replaced, err := svc.Import(ctx, "c.csv", strings.NewReader(sampleCSV), ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 2, replaced.Total)

	uploads := svc.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "c.csv", uploads[0].FileName)

	records, err := svc.Interactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), records[len(records)-1].ID)
}

func TestImport_BatchFailuresStoreNothing(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "seed.csv", strings.NewReader(sampleCSV), ModeAppend)
	require.NoError(t, err)

	cases := map[string]struct {
		body     io.Reader
		sentinel error
	}{
		"empty":           {strings.NewReader(""), errors.ErrEmptyUpload},
		"missing columns": {strings.NewReader("Media Type,Users\nvoice,Jane\n"), errors.ErrMissingColumns},
		"broken stream":   {io.MultiReader(strings.NewReader(header), iotest.ErrReader(fmt.Errorf("connection reset"))), errors.ErrMalformedCSV},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Import(ctx, "bad.csv", tc.body, ModeReplace)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.sentinel), "got %v", err)

			records, err := svc.Interactions(ctx)
			require.NoError(t, err)
			assert.Len(t, records, 2)
		})
	}
	assert.Len(t, svc.Uploads(), 1)
	assert.Equal(t, []string{EventImported}, pub.types())
}

func TestParseImportMode(t *testing.T) {
	mode, err := ParseImportMode("", ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, mode)

	mode, err = ParseImportMode(" Append ", ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, ModeAppend, mode)

	_, err = ParseImportMode("merge", ModeAppend)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func candidate(conv, agent, queue string, start time.Time) interaction.Candidate {
	return interaction.Candidate{
		ConversationID: conv,
		Agent:          agent,
		Customer:       "+1555",
		Queue:          queue,
		MediaType:      "voice",
		Direction:      "inbound",
		Duration:       120000,
		StartTime:      start,
		EndTime:        start.Add(2 * time.Minute),
	}
}

func TestCreateInteractions(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 23, 10, 0, 0, 0, time.UTC)

	stored, err := svc.CreateInteractions(ctx, []interaction.Candidate{
		candidate("c1", "Ann", "Q1", start),
		candidate("c2", "Ben", "Q2", start.Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored[0].ID)
	assert.Equal(t, int64(2), stored[1].ID)

	single, err := svc.CreateInteraction(ctx, candidate("c3", "Cy", "Q1", start))
	require.NoError(t, err)
	assert.Equal(t, int64(3), single.ID)

	bad := candidate("c4", "", "Q1", start)
	_, err = svc.CreateInteractions(ctx, []interaction.Candidate{candidate("c5", "Di", "Q1", start), bad})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = svc.CreateInteractions(ctx, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	records, err := svc.Interactions(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, []string{EventCreated, EventCreated}, pub.types())
}

func TestInteractionsBetween(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	day := time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreateInteractions(ctx, []interaction.Candidate{
		candidate("early", "Ann", "Q1", day.Add(6*time.Hour)),
		candidate("mid", "Ann", "Q1", day.Add(12*time.Hour)),
		candidate("late", "Ann", "Q1", day.Add(30*time.Hour)),
	})
	require.NoError(t, err)

	between, err := svc.InteractionsBetween(ctx, day.Add(6*time.Hour), day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, "mid", between[0].ConversationID)
	assert.Equal(t, "early", between[1].ConversationID)

	_, err = svc.InteractionsBetween(ctx, day.Add(24*time.Hour), day)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

// listOnlyStore hides the optional lookups of the wrapped store
type listOnlyStore struct {
	store.Store
}

type rangeSpyStore struct {
	*store.MemoryStore
	rangeCalls int
}

func (r *rangeSpyStore) ByDateRange(ctx context.Context, from, to time.Time) ([]interaction.Interaction, error) {
	r.rangeCalls++
	return r.MemoryStore.ByDateRange(ctx, from, to)
}

func TestInteractionsBetween_StoreLookups(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	normalizer := ingest.NewNormalizer(logger, ingest.WithLocation(time.UTC))

	seed := []interaction.Candidate{
		candidate("early", "Ann", "Q1", day.Add(6*time.Hour)),
		candidate("tie-a", "Ann", "Q1", day.Add(12*time.Hour)),
		candidate("tie-b", "Bob", "Q1", day.Add(12*time.Hour)),
		candidate("late", "Ann", "Q1", day.Add(30*time.Hour)),
	}

	spy := &rangeSpyStore{MemoryStore: store.NewMemoryStore()}
	withRange := NewService(logger, spy, normalizer, Options{})
	plain := NewService(logger, listOnlyStore{store.NewMemoryStore()}, normalizer, Options{})

	var results [][]string
	for _, svc := range []*Service{withRange, plain} {
		_, err := svc.CreateInteractions(ctx, seed)
		require.NoError(t, err)

		between, err := svc.InteractionsBetween(ctx, day, day.Add(24*time.Hour))
		require.NoError(t, err)
		var convs []string
		for _, r := range between {
			convs = append(convs, r.ConversationID)
		}
		results = append(results, convs)

		count, err := svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	}

	assert.Equal(t, 1, spy.rangeCalls)
	assert.Equal(t, []string{"tie-a", "tie-b", "early"}, results[0])
	assert.Equal(t, results[0], results[1])
}

func TestClear(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "a.csv", strings.NewReader(sampleCSV), ModeAppend)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx))
	records, err := svc.Interactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, svc.Uploads())

	require.NoError(t, svc.Clear(ctx))
	assert.Equal(t, []string{EventImported, EventCleared, EventCleared}, pub.types())
	assert.Equal(t, 2, pub.events[1].Changed)
	assert.Equal(t, 0, pub.events[2].Changed)
}

func TestDeleteUploads(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	first, err := svc.Import(ctx, "a.csv", strings.NewReader(sampleCSV), ModeAppend)
	require.NoError(t, err)
	second, err := svc.Import(ctx, "b.csv", strings.NewReader(sampleCSV), ModeAppend)
	require.NoError(t, err)

	deleted, err := svc.DeleteUploads(ctx, first.UploadID, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	uploads := svc.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, second.UploadID, uploads[0].ID)

	records, err := svc.Interactions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Greater(t, r.ID, int64(2))
	}

	_, err = svc.DeleteUploads(ctx, "unknown")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = svc.DeleteUploads(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	assert.Equal(t, []string{EventImported, EventImported, EventDeleted}, pub.types())
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	svc, pub := newTestService(t)
	pub.err = fmt.Errorf("broker down")

	_, err := svc.Import(context.Background(), "a.csv", strings.NewReader(sampleCSV), ModeAppend)
	assert.NoError(t, err)
}

func seedScenario(t *testing.T, svc *Service) {
	t.Helper()
	day := time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC)
	wrap := func(s string) *string { return &s }

	c1 := candidate("a", "Jane Doe", "Q_SUPPORT", day.Add(7*time.Hour))
	c1.Duration = 300000
	c1.WrapUp = wrap("RESOLVED;FOLLOWUP")
	c2 := candidate("b", "Bob", "Q_SALES", day.Add(9*time.Hour+10*time.Minute))
	c2.MediaType = "chat"
	c2.Duration = 600000
	c2.WrapUp = wrap("RESOLVED")
	c3 := candidate("c", "Jane Doe", "Q_SALES", day.Add(20*time.Hour))
	c3.Duration = 60000

	_, err := svc.CreateInteractions(context.Background(), []interaction.Candidate{c1, c2, c3})
	require.NoError(t, err)
}

func TestOverview(t *testing.T) {
	svc, _ := newTestService(t)
	seedScenario(t, svc)
	ctx := context.Background()

	overview, err := svc.Overview(ctx, query.Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, overview.Summary.TotalInteractions)
	assert.Equal(t, int64(5), overview.Summary.AvgHandleTime)
	assert.Equal(t, 2, overview.Summary.ActiveAgents)
	assert.Equal(t, "voice", overview.Summary.PrimaryChannel)
	require.Len(t, overview.TopAgents, 2)
	assert.Equal(t, "Jane Doe", overview.TopAgents[0].Agent)
	assert.Len(t, overview.HourlyTrend, 12)

	filtered, err := svc.Overview(ctx, query.Filter{Queue: "SALES"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.Summary.TotalInteractions)
	assert.Len(t, filtered.TopAgents, 1)
}

func TestAnalysis(t *testing.T) {
	svc, _ := newTestService(t)
	seedScenario(t, svc)
	ctx := context.Background()

	queue, err := svc.Analysis(ctx, AnalysisQueue, query.Filter{})
	require.NoError(t, err)
	require.Len(t, queue.Queues, 2)
	assert.Equal(t, "Q_SALES", queue.Queues[0].Queue)
	assert.Nil(t, queue.Agents)

	timeView, err := svc.Analysis(ctx, AnalysisTime, query.Filter{})
	require.NoError(t, err)
	assert.Len(t, timeView.HourOfDay, 24)
	assert.Len(t, timeView.HourlyTrend, 12)

	wrap, err := svc.Analysis(ctx, AnalysisWrapUp, query.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, wrap.WrapUps)
	assert.Equal(t, "RESOLVED", wrap.WrapUps[0].Code)
	assert.Equal(t, 2, wrap.WrapUps[0].Count)

	agents, err := svc.Analysis(ctx, AnalysisAgent, query.Filter{MediaType: "chat"})
	require.NoError(t, err)
	require.Len(t, agents.Agents, 1)
	assert.Equal(t, "Bob", agents.Agents[0].Agent)

	_, err = ParseAnalysisKind("sentiment")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	kind, err := ParseAnalysisKind("WrapUp")
	require.NoError(t, err)
	assert.Equal(t, AnalysisWrapUp, kind)
}

func TestHourlyViewsUseIngestLocation(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	loc := time.FixedZone("UTC+3", 3*3600)
	normalizer := ingest.NewNormalizer(logger,
		ingest.WithLocation(loc),
		ingest.WithClock(func() time.Time { return fixedNow }))
	svc := NewService(logger, store.NewMemoryStore(), normalizer, Options{})
	ctx := context.Background()

	_, err := svc.CreateInteraction(ctx, candidate("utc-1", "Ann", "Q1", time.Date(2025, 6, 23, 6, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	overview, err := svc.Overview(ctx, query.Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, analytics.HourCount{Hour: "09:00", Count: 1}, overview.HourlyTrend[2])

	timeView, err := svc.Analysis(ctx, AnalysisTime, query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, timeView.HourOfDay[9].Count)
	assert.Equal(t, 0, timeView.HourOfDay[6].Count)
}

func TestTableAndFilterOptions(t *testing.T) {
	svc, _ := newTestService(t)
	seedScenario(t, svc)
	ctx := context.Background()

	result, err := svc.Table(ctx, query.Query{
		Filter:   query.Filter{Agent: "Jane"},
		Sort:     query.Sort{Field: interaction.ColumnDuration, Direction: query.Ascending},
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalMatched)
	assert.Equal(t, "c", result.Items[0].ConversationID)

	opts, err := svc.FilterOptions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q_SALES", "Q_SUPPORT"}, opts.Queues)
	assert.Equal(t, []string{"Bob", "Jane Doe"}, opts.Agents)
	assert.Equal(t, []string{"chat", "voice"}, opts.MediaTypes)
	assert.Equal(t, []string{"FOLLOWUP", "RESOLVED"}, opts.WrapUpCodes)
	assert.Equal(t, []string{}, opts.Flows)

	narrowed, err := svc.FilterOptions(ctx, "sup")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q_SUPPORT"}, narrowed.Queues)
	assert.Equal(t, []string{}, narrowed.Agents)
}

func TestExport(t *testing.T) {
	svc, _ := newTestService(t)
	seedScenario(t, svc)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, export.FormatCSV, query.Filter{Queue: "SALES"}, nil, &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.CSVHeader, rows[0])

	buf.Reset()
	require.NoError(t, svc.Export(ctx, export.FormatPrint, query.Filter{}, nil, &buf))
	assert.Contains(t, buf.String(), "Total Interactions: 3")
	assert.Contains(t, buf.String(), "Generated on: 2025-07-01")

	err = svc.Export(ctx, export.Format("pdf"), query.Filter{}, nil, &buf)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
