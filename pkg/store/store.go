package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/interaction"
)

// Store holds interaction records
type Store interface {
	// ListAll returns every record, most recent StartTime first
	ListAll(ctx context.Context) ([]interaction.Interaction, error)

	// InsertMany stores candidates with sequential ids. If any candidate is
	// invalid nothing is stored.
	InsertMany(ctx context.Context, candidates []interaction.Candidate) ([]interaction.Interaction, error)

	// Delete removes the records with the given ids and reports how many
	// were found
	Delete(ctx context.Context, ids []int64) (int, error)

	// Clear removes every record and restarts the id sequence
	Clear(ctx context.Context) error
}

// RangeQuerier is implemented by stores that select records by start time
// themselves
type RangeQuerier interface {
	// ByDateRange returns the records starting within [from, to], in
	// ListAll order
	ByDateRange(ctx context.Context, from, to time.Time) ([]interaction.Interaction, error)
}

// Counter is implemented by stores that can count records without listing them
type Counter interface {
	Count() int
}

// MemoryStore is an in-memory Store. Records are lost when the process exits.
type MemoryStore struct {
	records []interaction.Interaction
	nextID  int64
	mutex   sync.RWMutex
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ RangeQuerier = (*MemoryStore)(nil)
	_ Counter      = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store whose first id is 1
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// ListAll returns a copy of every record ordered by StartTime descending,
// ties by ascending id
func (m *MemoryStore) ListAll(ctx context.Context) ([]interaction.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	out := make([]interaction.Interaction, len(m.records))
	copy(out, m.records)
	m.mutex.RUnlock()

	sortByStartDesc(out)
	return out, nil
}

// sortByStartDesc orders records by StartTime descending. Records are kept in
// id order, so the stable sort breaks ties by ascending id.
func sortByStartDesc(records []interaction.Interaction) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})
}

// InsertMany validates every candidate before storing any of them
func (m *MemoryStore) InsertMany(ctx context.Context, candidates []interaction.Candidate) ([]interaction.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized := make([]interaction.Candidate, len(candidates))
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, errors.NewInvalidInput(fmt.Sprintf("interaction %d", i)).
				WithField("index", i).
				WithField("reason", err.Error())
		}
		normalized[i] = c.Normalized()
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored := make([]interaction.Interaction, len(normalized))
	for i, c := range normalized {
		stored[i] = c.WithID(m.nextID)
		m.nextID++
	}
	m.records = append(m.records, stored...)

	return stored, nil
}

// Clear removes every record and restarts ids at 1
func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records = nil
	m.nextID = 1
	return nil
}

// Delete removes records by id. Unknown ids are ignored.
func (m *MemoryStore) Delete(ctx context.Context, ids []int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	kept := m.records[:0]
	for _, r := range m.records {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	removed := len(m.records) - len(kept)
	m.records = kept
	return removed, nil
}

// Count returns the number of stored records
func (m *MemoryStore) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.records)
}

// ByDateRange returns records starting within [from, to], most recent first
func (m *MemoryStore) ByDateRange(ctx context.Context, from, to time.Time) ([]interaction.Interaction, error) {
	out, err := m.filter(ctx, func(r interaction.Interaction) bool {
		return !r.StartTime.Before(from) && !r.StartTime.After(to)
	})
	if err != nil {
		return nil, err
	}
	sortByStartDesc(out)
	return out, nil
}

func (m *MemoryStore) filter(ctx context.Context, keep func(interaction.Interaction) bool) ([]interaction.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]interaction.Interaction, 0)
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
