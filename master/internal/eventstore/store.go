package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

// DefaultEvictInterval is how often the eviction loop wakes up.
const DefaultEvictInterval = time.Minute

// ErrNotFound is returned by Get for an unknown event id.
var ErrNotFound = errors.New("eventstore: not found")

// CorruptDataError reports a stored record that can no longer be
// decoded. Point lookups surface it; list reads log and skip the
// record so one bad row never hides the rest.
type CorruptDataError struct {
	ID  string
	Err error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("eventstore: corrupt record %s: %v", e.ID, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

type record struct {
	raw     []byte
	expires time.Time
}

// Store is a thread-safe in-memory event store.
type Store struct {
	mu         sync.RWMutex
	events     map[string]record
	byCheck    map[string][]string
	byCustomer map[string][]string
	byZone     map[string][]string

	evictInterval time.Duration
	now           func() time.Time // injectable for deterministic tests
}

func New() *Store {
	return &Store{
		events:        make(map[string]record),
		byCheck:       make(map[string][]string),
		byCustomer:    make(map[string][]string),
		byZone:        make(map[string][]string),
		evictInterval: DefaultEvictInterval,
		now:           time.Now,
	}
}

// Put validates and stores ev. The primary record is written first,
// the three indexes after; there is no transaction across the four
// writes.
func (s *Store) Put(ev types.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.ID == "" {
		return &types.ValidationError{Field: "id"}
	}
	if ev.Expiry <= 0 {
		ev.Expiry = types.DefaultEventExpiry
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventstore: encode %s: %w", ev.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, replacing := s.events[ev.ID]
	s.events[ev.ID] = record{
		raw:     raw,
		expires: s.now().Add(time.Duration(ev.Expiry) * time.Second),
	}
	if !replacing {
		s.byCheck[ev.Check] = append(s.byCheck[ev.Check], ev.ID)
		s.byCustomer[ev.Customer] = append(s.byCustomer[ev.Customer], ev.ID)
		s.byZone[ev.Zone] = append(s.byZone[ev.Zone], ev.ID)
	}
	return nil
}

// Get returns the event with the given id. A record that no longer
// decodes comes back as *CorruptDataError.
func (s *Store) Get(id string) (types.Event, error) {
	s.mu.RLock()
	rec, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return types.Event{}, ErrNotFound
	}
	var ev types.Event
	if err := json.Unmarshal(rec.raw, &ev); err != nil {
		return types.Event{}, &CorruptDataError{ID: id, Err: err}
	}
	return ev, nil
}

// ByCheck returns the stored events for one check id.
func (s *Store) ByCheck(check string) []types.Event {
	return s.list(s.byCheck, check)
}

// ByCustomer returns the stored events for one customer.
func (s *Store) ByCustomer(customer string) []types.Event {
	return s.list(s.byCustomer, customer)
}

// ByZone returns the stored events for one zone.
func (s *Store) ByZone(zone string) []types.Event {
	return s.list(s.byZone, zone)
}

// list resolves index entries to events. Ids whose record is gone
// (evicted after the index was read) or corrupt are skipped.
func (s *Store) list(index map[string][]string, key string) []types.Event {
	s.mu.RLock()
	ids := append([]string(nil), index[key]...)
	recs := make(map[string]record, len(ids))
	for _, id := range ids {
		if rec, ok := s.events[id]; ok {
			recs[id] = rec
		}
	}
	s.mu.RUnlock()

	out := make([]types.Event, 0, len(ids))
	for _, id := range ids {
		rec, ok := recs[id]
		if !ok {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal(rec.raw, &ev); err != nil {
			slog.Error("eventstore: skipping corrupt record", "id", id, "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Count returns the number of stored events, expired ones included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Evict removes events whose expiry has passed, along with their index
// entries. It returns the number of events removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make(map[string]bool)
	for id, rec := range s.events {
		if !rec.expires.After(now) {
			expired[id] = true
			delete(s.events, id)
		}
	}
	if len(expired) == 0 {
		return 0
	}
	purge := func(index map[string][]string) {
		for key, ids := range index {
			kept := ids[:0]
			for _, id := range ids {
				if !expired[id] {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				delete(index, key)
			} else {
				index[key] = kept
			}
		}
	}
	purge(s.byCheck)
	purge(s.byCustomer)
	purge(s.byZone)
	return len(expired)
}

// Run blocks until ctx is cancelled, evicting expired events on every
// tick.
func (s *Store) Run(ctx context.Context) {
	t := time.NewTicker(s.evictInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("eventstore: evicted expired events", "count", n)
			}
		}
	}
}
