package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the document store behind the logger.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	// Find returns matching entries newest first plus the total match count.
	Find(ctx context.Context, f Filter, skip, limit int) ([]Entry, int64, error)
	Stats(ctx context.Context, since time.Time, topN int) (Stats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryStore keeps entries in process memory. It backs development runs
// without MongoDB and the package tests. When full, the oldest entries go.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

// NewMemoryStore keeps at most max entries (0 means 10000).
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryStore{max: max}
}

func (m *MemoryStore) Insert(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.max; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

// newestFirst returns the matching entries sorted by timestamp descending.
func (m *MemoryStore) newestFirst(f Filter) []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (m *MemoryStore) Find(_ context.Context, f Filter, skip, limit int) ([]Entry, int64, error) {
	all := m.newestFirst(f)
	total := int64(len(all))
	if skip >= len(all) {
		return []Entry{}, total, nil
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *MemoryStore) Stats(_ context.Context, since time.Time, topN int) (Stats, error) {
	st := Stats{Since: since, TopActions: []ActionCount{}, DailyActivity: []DailyCount{}}
	actions := map[string]int64{}
	days := map[string]int64{}
	for _, e := range m.newestFirst(Filter{From: since}) {
		st.TotalLogs++
		if e.Level == LevelError {
			st.ErrorCount++
		}
		if e.UserID != "" {
			st.UserActions++
		}
		actions[e.Action]++
		days[e.Timestamp.UTC().Format("2006-01-02")]++
	}
	st.SystemActions = st.TotalLogs - st.UserActions

	for a, n := range actions {
		st.TopActions = append(st.TopActions, ActionCount{Action: a, Count: n})
	}
	sort.Slice(st.TopActions, func(i, j int) bool {
		if st.TopActions[i].Count != st.TopActions[j].Count {
			return st.TopActions[i].Count > st.TopActions[j].Count
		}
		return st.TopActions[i].Action < st.TopActions[j].Action
	})
	if topN > 0 && len(st.TopActions) > topN {
		st.TopActions = st.TopActions[:topN]
	}
	for d, n := range days {
		st.DailyActivity = append(st.DailyActivity, DailyCount{Date: d, Count: n})
	}
	sort.Slice(st.DailyActivity, func(i, j int) bool { return st.DailyActivity[i].Date < st.DailyActivity[j].Date })
	return st, nil
}

func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var removed int64
	for _, e := range m.entries {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}
