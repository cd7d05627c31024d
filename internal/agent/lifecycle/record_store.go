package lifecycle

import (
	"sort"
	"sync"
	"time"
)

// RecordStore is a concurrent map of agent records with a task index.
type RecordStore struct {
	records map[string]*AgentRecord
	byTask  map[string]map[string]struct{} // taskName -> agentIDs
	mu      sync.RWMutex
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]*AgentRecord),
		byTask:  make(map[string]map[string]struct{}),
	}
}

// Add inserts a record and indexes it under its task.
func (s *RecordStore) Add(r *AgentRecord) {
	if r == nil || r.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	ids, ok := s.byTask[r.Spec.TaskName]
	if !ok {
		ids = make(map[string]struct{})
		s.byTask[r.Spec.TaskName] = ids
	}
	ids[r.ID] = struct{}{}
}

// Get returns a record by agent ID.
func (s *RecordStore) Get(agentID string) (*AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[agentID]
	return r, ok
}

// Len returns the number of retained records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ListTask returns snapshots of the task's records ordered by start time.
// With runningOnly set, terminal records are left out.
func (s *RecordStore) ListTask(taskName string, runningOnly bool) []Snapshot {
	s.mu.RLock()
	recs := make([]*AgentRecord, 0, len(s.byTask[taskName]))
	for id := range s.byTask[taskName] {
		recs = append(recs, s.records[id])
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(recs))
	for _, r := range recs {
		snap := r.Snapshot()
		if runningOnly && snap.Status.Terminal() {
			continue
		}
		out = append(out, snap)
	}
	sortSnapshots(out)
	return out
}

// Prune evicts terminal records older than maxAge, then the oldest terminal
// records until at most maxRecords remain. Running records are never evicted.
// Zero disables the corresponding bound. It returns the evicted IDs.
func (s *RecordStore) Prune(maxRecords int, maxAge time.Duration, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		id   string
		done time.Time
	}
	var terminal []candidate
	for id, r := range s.records {
		snap := r.Snapshot()
		if snap.CompletedAt == nil {
			continue
		}
		terminal = append(terminal, candidate{id: id, done: *snap.CompletedAt})
	}
	sort.Slice(terminal, func(i, j int) bool {
		if terminal[i].done.Equal(terminal[j].done) {
			return terminal[i].id < terminal[j].id
		}
		return terminal[i].done.Before(terminal[j].done)
	})

	var evicted []string
	for _, c := range terminal {
		expired := maxAge > 0 && now.Sub(c.done) > maxAge
		overCount := maxRecords > 0 && len(s.records) > maxRecords
		if !expired && !overCount {
			break
		}
		s.removeLocked(c.id)
		evicted = append(evicted, c.id)
	}
	return evicted
}

func (s *RecordStore) removeLocked(agentID string) {
	r, ok := s.records[agentID]
	if !ok {
		return
	}
	delete(s.records, agentID)
	if ids, ok := s.byTask[r.Spec.TaskName]; ok {
		delete(ids, agentID)
		if len(ids) == 0 {
			delete(s.byTask, r.Spec.TaskName)
		}
	}
}

func sortSnapshots(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
}
