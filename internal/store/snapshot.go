package store

import (
	"sort"
	"sync"

	"github.com/quantumbands/exchange/internal/domain"
)

// SnapshotStore holds daily trading account snapshots and their profit
// distribution logs. At most one current (non-superseded) snapshot exists
// per (account, date); recalculation supersedes the old row rather than
// duplicating it.
type SnapshotStore struct {
	mu      sync.RWMutex
	snapSeq int64
	logSeq  int64
	current map[int64]map[string]*domain.TradingAccountSnapshot // account → date → current snapshot
	all     map[int64][]*domain.TradingAccountSnapshot          // account → every snapshot incl. superseded
	logs    map[int64][]*domain.ProfitDistributionLog           // snapshot id → logs
}

// NewSnapshotStore creates an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		current: make(map[int64]map[string]*domain.TradingAccountSnapshot),
		all:     make(map[int64][]*domain.TradingAccountSnapshot),
		logs:    make(map[int64][]*domain.ProfitDistributionLog),
	}
}

// Create assigns an id and stores the snapshot as the current one for its
// (account, date). It returns domain.ErrSnapshotExists when a current
// snapshot is already present, and an undo for the caller's journal.
func (s *SnapshotStore) Create(snap *domain.TradingAccountSnapshot) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates, ok := s.current[snap.TradingAccountID]
	if !ok {
		dates = make(map[string]*domain.TradingAccountSnapshot)
		s.current[snap.TradingAccountID] = dates
	}
	if _, exists := dates[snap.SnapshotDate]; exists {
		return nil, domain.ErrSnapshotExists
	}

	s.snapSeq++
	snap.SnapshotID = s.snapSeq
	dates[snap.SnapshotDate] = snap
	s.all[snap.TradingAccountID] = append(s.all[snap.TradingAccountID], snap)

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if dates[snap.SnapshotDate] == snap {
			delete(dates, snap.SnapshotDate)
		}
		list := s.all[snap.TradingAccountID]
		if n := len(list); n > 0 && list[n-1] == snap {
			s.all[snap.TradingAccountID] = list[:n-1]
		}
	}
	return undo, nil
}

// Get returns the current snapshot for (account, date), or
// domain.ErrSnapshotNotFound.
func (s *SnapshotStore) Get(accountID int64, date string) (*domain.TradingAccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.current[accountID][date]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

// LatestBefore returns the current snapshot with the greatest date strictly
// before date, or (nil, false). Dates compare lexically (YYYY-MM-DD).
func (s *SnapshotStore) LatestBefore(accountID int64, date string) (*domain.TradingAccountSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.TradingAccountSnapshot
	for d, snap := range s.current[accountID] {
		if d >= date {
			continue
		}
		if best == nil || d > best.SnapshotDate {
			best = snap
		}
	}
	return best, best != nil
}

// Supersede marks the snapshot as replaced by a recalculation and removes it
// from the current index, keeping the row in the account's history. Returns
// an undo for the caller's journal.
func (s *SnapshotStore) Supersede(snap *domain.TradingAccountSnapshot) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Superseded = true
	wasCurrent := s.current[snap.TradingAccountID][snap.SnapshotDate] == snap
	if wasCurrent {
		delete(s.current[snap.TradingAccountID], snap.SnapshotDate)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		snap.Superseded = false
		if wasCurrent {
			s.current[snap.TradingAccountID][snap.SnapshotDate] = snap
		}
	}
}

// AddLog assigns an id and appends a distribution log entry for a snapshot.
// Returns an undo for the caller's journal.
func (s *SnapshotStore) AddLog(entry *domain.ProfitDistributionLog) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logSeq++
	entry.LogID = s.logSeq
	s.logs[entry.SnapshotID] = append(s.logs[entry.SnapshotID], entry)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.logs[entry.SnapshotID]
		if n := len(list); n > 0 && list[n-1] == entry {
			s.logs[entry.SnapshotID] = list[:n-1]
		}
	}
}

// LogsBySnapshot returns the snapshot's distribution log entries in append
// order (payouts first, reversal markers after).
func (s *SnapshotStore) LogsBySnapshot(snapshotID int64) []*domain.ProfitDistributionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.logs[snapshotID]
	out := make([]*domain.ProfitDistributionLog, len(list))
	copy(out, list)
	return out
}

// History returns every snapshot for the account, oldest first, including
// superseded rows.
func (s *SnapshotStore) History(accountID int64) []*domain.TradingAccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.all[accountID]
	out := make([]*domain.TradingAccountSnapshot, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SnapshotID < out[j].SnapshotID })
	return out
}
