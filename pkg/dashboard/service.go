// Package dashboard ties the normalizer, the record store and the analytics
// engines together behind the operations the HTTP API exposes.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"interaction-dashboard/pkg/analytics"
	"interaction-dashboard/pkg/correlation"
	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/export"
	"interaction-dashboard/pkg/ingest"
	"interaction-dashboard/pkg/interaction"
	"interaction-dashboard/pkg/metrics"
	"interaction-dashboard/pkg/query"
	"interaction-dashboard/pkg/store"
)

// ImportMode selects what an upload does with the records already stored
type ImportMode string

const (
	ModeAppend  ImportMode = "append"
	ModeReplace ImportMode = "replace"
)

// ParseImportMode parses a mode name; an empty name yields fallback
func ParseImportMode(s string, fallback ImportMode) (ImportMode, error) {
	switch ImportMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return fallback, nil
	case ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", errors.NewInvalidInput(fmt.Sprintf("unknown import mode %q", s))
}

// Options holds the service defaults
type Options struct {
	TopAgents    int
	PrintMaxRows int
	ImportMode   ImportMode
}

// DefaultOptions returns the stock presentation defaults
func DefaultOptions() Options {
	return Options{
		TopAgents:    analytics.DefaultTopAgents,
		PrintMaxRows: export.DefaultMaxRows,
		ImportMode:   ModeAppend,
	}
}

// ImportResult reports what an upload did
type ImportResult struct {
	UploadID string           `json:"uploadId"`
	FileName string           `json:"fileName"`
	Mode     ImportMode       `json:"mode"`
	Rows     int              `json:"rows"`
	Stored   int              `json:"stored"`
	Dropped  int              `json:"dropped"`
	Total    int              `json:"total"`
	Warnings []ingest.Warning `json:"warnings"`
}

// Service is the dashboard application service. It is safe for concurrent use.
type Service struct {
	logger     *logrus.Logger
	store      store.Store
	normalizer *ingest.Normalizer
	options    Options
	publishers []EventPublisher
	uploads    uploadHistory
	now        func() time.Time
}

// NewService creates a service over st. Zero-valued options fall back to
// DefaultOptions.
func NewService(logger *logrus.Logger, st store.Store, normalizer *ingest.Normalizer, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.TopAgents <= 0 {
		opts.TopAgents = defaults.TopAgents
	}
	if opts.PrintMaxRows <= 0 {
		opts.PrintMaxRows = defaults.PrintMaxRows
	}
	if opts.ImportMode == "" {
		opts.ImportMode = defaults.ImportMode
	}

	return &Service{
		logger:     logger,
		store:      st,
		normalizer: normalizer,
		options:    opts,
		now:        time.Now,
	}
}

// AddPublisher registers a dataset event listener
func (s *Service) AddPublisher(p EventPublisher) {
	s.publishers = append(s.publishers, p)
}

// Options returns the service defaults
func (s *Service) Options() Options {
	return s.options
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Import parses and normalizes a CSV upload and stores the surviving rows.
// A batch-level failure (empty file, broken CSV, missing columns) stores
// nothing. An empty mode uses the configured default.
func (s *Service) Import(ctx context.Context, fileName string, r io.Reader, mode ImportMode) (*ImportResult, error) {
	defer metrics.ObserveOperation("import")()
	log := correlation.LoggerFromContext(ctx, s.logger).WithField("file_name", fileName)

	if mode == "" {
		mode = s.options.ImportMode
	}

	counter := &countingReader{r: r}
	normalized, err := s.normalizer.NormalizeCSV(counter)
	if err != nil {
		metrics.RecordImport("rejected", 0, 0)
		log.WithError(err).Warn("Upload rejected")
		return nil, err
	}

	for i, c := range normalized.Candidates {
		if err := c.Validate(); err != nil {
			metrics.RecordImport("failed", 0, 0)
			return nil, errors.NewInternalError("normalized row failed validation").
				WithField("index", i).
				WithField("reason", err.Error())
		}
	}

	if mode == ModeReplace {
		if err := s.store.Clear(ctx); err != nil {
			metrics.RecordImport("failed", 0, 0)
			return nil, errors.Wrap(err, "failed to clear records before replace")
		}
		s.uploads.clear()
	}

	stored, err := s.store.InsertMany(ctx, normalized.Candidates)
	if err != nil {
		metrics.RecordImport("failed", 0, 0)
		return nil, errors.Wrap(err, "failed to store uploaded records")
	}

	upload := Upload{
		ID:          uuid.NewString(),
		FileName:    fileName,
		Size:        counter.n,
		Mode:        string(mode),
		RecordCount: len(stored),
		Dropped:     normalized.Dropped,
		UploadedAt:  s.now(),
		recordIDs:   make([]int64, len(stored)),
	}
	for i, rec := range stored {
		upload.recordIDs[i] = rec.ID
	}
	s.uploads.add(upload)

	total := s.refreshRecordGauge(ctx)
	metrics.RecordImport("success", len(stored), normalized.Dropped)

	log.WithFields(logrus.Fields{
		"upload_id": upload.ID,
		"mode":      mode,
		"rows":      normalized.Rows,
		"stored":    len(stored),
		"dropped":   normalized.Dropped,
		"warnings":  len(normalized.Warnings),
	}).Info("Upload imported")

	s.publish(ctx, Event{
		Type:      EventImported,
		UploadIDs: []string{upload.ID},
		FileName:  fileName,
		Mode:      string(mode),
		Changed:   len(stored),
		Total:     total,
	})

	warnings := normalized.Warnings
	if warnings == nil {
		warnings = []ingest.Warning{}
	}
	return &ImportResult{
		UploadID: upload.ID,
		FileName: fileName,
		Mode:     mode,
		Rows:     normalized.Rows,
		Stored:   len(stored),
		Dropped:  normalized.Dropped,
		Total:    total,
		Warnings: warnings,
	}, nil
}

// CreateInteractions stores already-structured records. Any invalid
// candidate rejects the whole batch.
func (s *Service) CreateInteractions(ctx context.Context, candidates []interaction.Candidate) ([]interaction.Interaction, error) {
	defer metrics.ObserveOperation("create")()

	if len(candidates) == 0 {
		return nil, errors.NewInvalidInput("no interactions supplied")
	}

	stored, err := s.store.InsertMany(ctx, candidates)
	if err != nil {
		return nil, err
	}

	total := s.refreshRecordGauge(ctx)
	s.publish(ctx, Event{Type: EventCreated, Changed: len(stored), Total: total})
	return stored, nil
}

// CreateInteraction stores a single record
func (s *Service) CreateInteraction(ctx context.Context, candidate interaction.Candidate) (interaction.Interaction, error) {
	stored, err := s.CreateInteractions(ctx, []interaction.Candidate{candidate})
	if err != nil {
		return interaction.Interaction{}, err
	}
	return stored[0], nil
}

// Interactions returns every record, most recent first
func (s *Service) Interactions(ctx context.Context) ([]interaction.Interaction, error) {
	return s.store.ListAll(ctx)
}

// InteractionsBetween returns the records starting within [from, to], most
// recent first
func (s *Service) InteractionsBetween(ctx context.Context, from, to time.Time) ([]interaction.Interaction, error) {
	if to.Before(from) {
		return nil, errors.NewInvalidInput("endDate is before startDate")
	}
	if rq, ok := s.store.(store.RangeQuerier); ok {
		return rq.ByDateRange(ctx, from, to)
	}
	return s.filtered(ctx, query.Filter{From: &from, To: &to})
}

// Clear removes every record and the upload history
func (s *Service) Clear(ctx context.Context) error {
	before, err := s.store.ListAll(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to clear records")
	}
	s.uploads.clear()
	s.refreshRecordGauge(ctx)

	correlation.LoggerFromContext(ctx, s.logger).WithField("removed", len(before)).Info("Dataset cleared")
	s.publish(ctx, Event{Type: EventCleared, Changed: len(before)})
	return nil
}

// Count returns the number of stored records
func (s *Service) Count(ctx context.Context) (int, error) {
	if counter, ok := s.store.(store.Counter); ok {
		return counter.Count(), nil
	}
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Uploads returns the upload history, newest first
func (s *Service) Uploads() []Upload {
	return s.uploads.list()
}

// DeleteUploads removes uploads and the records they stored. Unknown ids
// are ignored; the number of deleted records is returned.
func (s *Service) DeleteUploads(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, errors.NewInvalidInput("no upload ids supplied")
	}

	removed := s.uploads.remove(ids)
	if len(removed) == 0 {
		return 0, errors.NewNotFound("no matching uploads").WithField("ids", ids)
	}

	var recordIDs []int64
	removedIDs := make([]string, len(removed))
	for i, u := range removed {
		recordIDs = append(recordIDs, u.recordIDs...)
		removedIDs[i] = u.ID
	}

	deleted, err := s.store.Delete(ctx, recordIDs)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete upload records")
	}

	total := s.refreshRecordGauge(ctx)
	correlation.LoggerFromContext(ctx, s.logger).WithFields(logrus.Fields{
		"uploads": len(removed),
		"records": deleted,
	}).Info("Uploads deleted")
	s.publish(ctx, Event{Type: EventDeleted, UploadIDs: removedIDs, Changed: deleted, Total: total})

	return deleted, nil
}

func (s *Service) filtered(ctx context.Context, filter query.Filter) ([]interaction.Interaction, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(records), nil
}

func (s *Service) refreshRecordGauge(ctx context.Context) int {
	total, err := s.Count(ctx)
	if err != nil {
		return 0
	}
	metrics.SetRecordsStored(total)
	return total
}

func (s *Service) publish(ctx context.Context, event Event) {
	event.Timestamp = s.now()
	if id := correlation.FromContext(ctx); !id.IsEmpty() {
		event.CorrelationID = id.String()
	}

	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			correlation.LoggerFromContext(ctx, s.logger).WithError(err).
				WithField("event", event.Type).
				Warn("Failed to publish dataset event")
		}
	}
}
