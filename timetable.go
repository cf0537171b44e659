package triptimes

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tidbyt.dev/triptimes/metrics"
)

var (
	ErrTripNotFound   = errors.New("trip not found")
	ErrStaleBatch     = errors.New("batch is based on an outdated timetable")
	ErrBatchCommitted = errors.New("batch already committed")
)

// Timetable is one published generation of trip times. It is never
// modified once published, so any number of readers may use it
// without locking.
type Timetable struct {
	ID        uuid.UUID
	CreatedAt time.Time

	// Sorted by first departure
	trips []*TripTimes
	keys  []string
	byKey map[string]*TripTimes
}

func newTimetable(byKey map[string]*TripTimes) *Timetable {
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	sort.SliceStable(keys, func(i, j int) bool {
		return Compare(byKey[keys[i]], byKey[keys[j]]) < 0
	})

	trips := make([]*TripTimes, len(keys))
	for i, key := range keys {
		trips[i] = byKey[key]
	}

	return &Timetable{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		trips:     trips,
		keys:      keys,
		byKey:     byKey,
	}
}

func (t *Timetable) Len() int {
	return len(t.trips)
}

// Trips ordered by first departure. The slice must not be modified.
func (t *Timetable) Trips() []*TripTimes {
	return t.trips
}

// Keys in the same order as Trips().
func (t *Timetable) Keys() []string {
	return t.keys
}

func (t *Timetable) Get(key string) (*TripTimes, bool) {
	tt, found := t.byKey[key]
	return tt, found
}

// Store publishes Timetables. Readers call Current() and never
// block. Writers stage changes in a Batch and Commit it, which swaps
// in a new Timetable.
type Store struct {
	Metrics *metrics.Collector

	current atomic.Pointer[Timetable]
	mutex   sync.Mutex
}

func NewStore() *Store {
	s := &Store{}
	s.current.Store(newTimetable(map[string]*TripTimes{}))
	return s
}

func (s *Store) Current() *Timetable {
	return s.current.Load()
}

// Starts a batch of changes against the current Timetable.
func (s *Store) Begin() *Batch {
	return &Batch{
		base:   s.Current(),
		staged: map[string]*TripTimes{},
		owned:  map[string]bool{},
	}
}

// Publishes the batch's changes as a new Timetable. Fails with
// ErrStaleBatch if another batch was committed after this one began.
func (s *Store) Commit(b *Batch) (*Timetable, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if b.committed {
		return nil, ErrBatchCommitted
	}
	if s.current.Load() != b.base {
		return nil, errors.Wrapf(ErrStaleBatch, "batch based on %s", b.base.ID)
	}

	byKey := make(map[string]*TripTimes, len(b.base.byKey)+len(b.staged))
	for key, tt := range b.base.byKey {
		byKey[key] = tt
	}
	for key, tt := range b.staged {
		if tt == nil {
			delete(byKey, key)
			continue
		}
		byKey[key] = tt
	}

	next := newTimetable(byKey)
	s.current.Store(next)
	b.committed = true

	s.Metrics.ObservePublish(next.Len())

	return next, nil
}

// Batch collects changes to a Timetable. Records handed out by a
// batch are owned by it, and may be mutated freely until the batch is
// committed. A Batch is not safe for concurrent use.
type Batch struct {
	base *Timetable

	// nil values mark removals
	staged map[string]*TripTimes

	// Staged records cloned by Modify. Records given to Put may be
	// shared, and are cloned before mutation.
	owned     map[string]bool
	committed bool
}

// The Timetable this batch was started from.
func (b *Batch) Base() *Timetable {
	return b.base
}

// Returns the record for key as seen by this batch.
func (b *Batch) Get(key string) (*TripTimes, bool) {
	if tt, found := b.staged[key]; found {
		return tt, tt != nil
	}
	return b.base.Get(key)
}

// Returns a batch owned copy of the record for key, for mutation. The
// copy is made on first call; later calls return the same record.
func (b *Batch) Modify(key string) (*TripTimes, error) {
	if b.owned[key] {
		return b.staged[key], nil
	}

	tt, found := b.Get(key)
	if !found {
		return nil, errors.Wrap(ErrTripNotFound, key)
	}

	c := tt.Clone()
	b.staged[key] = c
	b.owned[key] = true
	return c, nil
}

// Stages tt under key, replacing any existing record. The batch does
// not take ownership: a later Modify works on a clone.
func (b *Batch) Put(key string, tt *TripTimes) {
	b.staged[key] = tt
	delete(b.owned, key)
}

func (b *Batch) Remove(key string) {
	b.staged[key] = nil
	delete(b.owned, key)
}

// Number of staged changes.
func (b *Batch) Len() int {
	return len(b.staged)
}
