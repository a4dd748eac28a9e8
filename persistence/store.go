package persistence

import (
	"sync"
)

// State is the complete configuration held by a Store.
type State struct {
	Connection   BackendConnection
	DebugLogging bool
	Records      []PersistenceRecord
}

// DefaultState returns the state used when no file exists.
func DefaultState() State {
	return State{Connection: DefaultConnection(), Records: []PersistenceRecord{}}
}

// Store holds the backend connection and the ordered persistence records.
// Every successful mutation invokes the change callback exactly once, after
// the read lock is released. Mutations and their callbacks are serialized, so
// callbacks observe commits in order and never overlap.
type Store struct {
	commitMu sync.Mutex
	mu       sync.RWMutex
	conn     BackendConnection
	debug    bool
	order    []string
	records  map[string]PersistenceRecord
	onChange func()
}

// NewStore builds a store seeded with state. onChange may be nil and must not
// mutate the store.
func NewStore(state State, onChange func()) *Store {
	s := &Store{onChange: onChange}
	s.replace(state)
	return s
}

// Connection returns the current backend connection.
func (s *Store) Connection() BackendConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// DebugLogging reports the persisted debug flag.
func (s *Store) DebugLogging() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debug
}

// SetConnection replaces the connection and debug flag.
func (s *Store) SetConnection(conn BackendConnection, debug bool) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	s.conn = conn
	s.debug = debug
	s.mu.Unlock()
	s.notify()
}

// Records returns copies of all records in insertion order.
func (s *Store) Records() []PersistenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PersistenceRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// Record looks up a record by id.
func (s *Store) Record(id string) (PersistenceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return PersistenceRecord{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// UpsertRecord replaces the record with the same id in place or appends it.
func (s *Store) UpsertRecord(rec PersistenceRecord) {
	rec = rec.Clone()
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	s.mu.Unlock()
	s.notify()
}

// RemoveRecord deletes the record with id. Removing an unknown id is a no-op
// and does not notify.
func (s *Store) RemoveRecord(id string) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := State{Connection: s.conn, DebugLogging: s.debug, Records: make([]PersistenceRecord, 0, len(s.order))}
	for _, id := range s.order {
		state.Records = append(state.Records, s.records[id].Clone())
	}
	return state
}

// Load replaces the whole state, e.g. after the file changed on disk. It does
// not invoke the change callback.
func (s *Store) Load(state State) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.replace(state)
}

// Reload runs fetch while no mutation is in flight and replaces the state with
// its result when fetch reports a change. The change callback is not invoked.
func (s *Store) Reload(fetch func() (State, bool, error)) (bool, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	state, changed, err := fetch()
	if err != nil || !changed {
		return false, err
	}
	s.replace(state)
	return true, nil
}

func (s *Store) replace(state State) {
	records := make(map[string]PersistenceRecord, len(state.Records))
	order := make([]string, 0, len(state.Records))
	for _, rec := range state.Records {
		if _, dup := records[rec.ID]; !dup {
			order = append(order, rec.ID)
		}
		records[rec.ID] = rec.Clone()
	}
	s.mu.Lock()
	s.conn = state.Connection
	s.debug = state.DebugLogging
	s.records = records
	s.order = order
	s.mu.Unlock()
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
