package dashboard

import (
	"sort"
	"sync"
	"time"
)

// Upload is one accepted CSV file
type Upload struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	Mode        string    `json:"mode"`
	RecordCount int       `json:"recordCount"`
	Dropped     int       `json:"dropped"`
	UploadedAt  time.Time `json:"uploadedAt"`

	recordIDs []int64
}

// uploadHistory keeps uploads newest first
type uploadHistory struct {
	mu      sync.RWMutex
	uploads []Upload
}

func (h *uploadHistory) add(u Upload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uploads = append(h.uploads, u)
	sort.SliceStable(h.uploads, func(i, j int) bool {
		return h.uploads[i].UploadedAt.After(h.uploads[j].UploadedAt)
	})
}

func (h *uploadHistory) list() []Upload {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Upload, len(h.uploads))
	copy(out, h.uploads)
	return out
}

// remove drops the uploads with the given ids and returns them
func (h *uploadHistory) remove(ids []string) []Upload {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []Upload
	kept := h.uploads[:0]
	for _, u := range h.uploads {
		if want[u.ID] {
			removed = append(removed, u)
		} else {
			kept = append(kept, u)
		}
	}
	h.uploads = kept
	return removed
}

func (h *uploadHistory) clear() {
	h.mu.Lock()
	h.uploads = nil
	h.mu.Unlock()
}
