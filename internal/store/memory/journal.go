package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

const defaultJournalCap = 10000

// Journal implements domain.AuditStore in memory, keeping the most recent
// entries up to a fixed capacity.
type Journal struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	nextID  int64
	cap     int
	now     func() time.Time
}

// NewJournal creates a Journal holding at most capacity entries.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = defaultJournalCap
	}
	return &Journal{cap: capacity, now: time.Now}
}

// Log appends an event.
func (j *Journal) Log(_ context.Context, event string, detail map[string]any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextID++
	cp := make(map[string]any, len(detail))
	for k, v := range detail {
		cp[k] = v
	}
	j.entries = append(j.entries, domain.AuditEntry{
		ID:        j.nextID,
		Event:     event,
		Detail:    cp,
		CreatedAt: j.now().UTC(),
	})
	if n := len(j.entries); n > j.cap {
		j.entries = append([]domain.AuditEntry(nil), j.entries[n-j.cap:]...)
	}
	return nil
}

// List returns entries newest first, filtered and paginated by opts.
func (j *Journal) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]domain.AuditEntry, 0)
	skipped := 0
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if opts.BondID != "" {
			if id, _ := e.Detail["bond_id"].(string); id != opts.BondID {
				continue
			}
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

var _ domain.AuditStore = (*Journal)(nil)
