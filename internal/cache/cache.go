package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pulseengine/pulse/pkg/logging"
	"github.com/pulseengine/pulse/pkg/metrics"
	"github.com/pulseengine/pulse/pkg/source"
)

// Entry is one source's cached view of one entity. The store is the only
// owner of entries; everything else sees copies or immutable snapshots.
type Entry struct {
	SourceID  string        `json:"source_id"`
	EntityID  string        `json:"entity_id"`
	Record    source.Record `json:"record"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Staleness returns the elapsed time since the entry was fetched.
func (e Entry) Staleness(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Stale reports whether staleness exceeds the TTL.
func (e Entry) Stale(now time.Time) bool {
	return e.Staleness(now) > e.TTL
}

// Critical reports whether staleness exceeds three times the TTL.
func (e Entry) Critical(now time.Time) bool {
	return e.Staleness(now) > 3*e.TTL
}

type key struct {
	sourceID string
	entityID string
}

// Config holds per-source-type TTL windows.
type Config struct {
	FastTTL time.Duration `json:"fast_ttl"`
	SlowTTL time.Duration `json:"slow_ttl"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		FastTTL: 15 * time.Minute,
		SlowTTL: 6 * time.Hour,
	}
}

// Store is the keyed, TTL-aware cache. Staleness is evaluated lazily on
// read; nothing is evicted by timers, so reads never race an eviction. All
// mutation flows through the store's lock.
type Store struct {
	mu      sync.RWMutex
	entries map[key]Entry

	config  Config
	flight  singleflight.Group
	metrics *metrics.Metrics
	logger  *logging.Logger
	clock   func() time.Time
}

// NewStore creates a new cache store
func NewStore(config Config, m *metrics.Metrics) *Store {
	if config.FastTTL <= 0 {
		config.FastTTL = DefaultConfig().FastTTL
	}
	if config.SlowTTL <= 0 {
		config.SlowTTL = DefaultConfig().SlowTTL
	}

	return &Store{
		entries: make(map[key]Entry),
		config:  config,
		metrics: m,
		logger:  logging.GetLogger(),
		clock:   time.Now,
	}
}

// SetClock overrides the store's clock; used by tests.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// TTLFor returns the TTL window for a source type.
func (s *Store) TTLFor(t source.Type) time.Duration {
	if t == source.TypeSlow {
		return s.config.SlowTTL
	}
	return s.config.FastTTL
}

// Get returns the cached entry for (sourceID, entityID), if present. Stale
// entries are still returned; the caller decides what staleness means.
func (s *Store) Get(sourceID, entityID string) (Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key{sourceID, entityID}]
	s.mu.RUnlock()

	if s.metrics != nil {
		s.metrics.RecordCacheHit(ok)
	}

	return entry, ok
}

// Put stores one source record, stamping it with the current time and the
// TTL for the source type.
func (s *Store) Put(sourceID string, sourceType source.Type, record source.Record) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		SourceID:  sourceID,
		EntityID:  record.EntityID,
		Record:    record,
		FetchedAt: s.clock(),
		TTL:       s.TTLFor(sourceType),
	}
	s.entries[key{sourceID, record.EntityID}] = entry

	if s.metrics != nil {
		s.metrics.UpdateCacheEntries(len(s.entries))
	}

	return entry
}

// Refresh fetches a single key through the given fetch function, coalescing
// concurrent refreshes: at most one upstream call is in flight per key, and
// every concurrent caller attaches to its result.
func (s *Store) Refresh(ctx context.Context, sourceID string, sourceType source.Type, entityID string, fetch func(context.Context) (source.Record, error)) (Entry, error) {
	flightKey := sourceID + ":" + entityID

	v, err, shared := s.flight.Do(flightKey, func() (interface{}, error) {
		record, err := fetch(ctx)
		if err != nil {
			return Entry{}, err
		}
		return s.Put(sourceID, sourceType, record), nil
	})
	if err != nil {
		return Entry{}, err
	}

	if shared {
		s.logger.Debug("Refresh attached to in-flight fetch",
			"source_id", sourceID,
			"entity_id", entityID,
		)
	}

	return v.(Entry), nil
}

// Restore loads previously snapshotted entries, keeping their original fetch
// timestamps so staleness accounting survives a restart.
func (s *Store) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.entries[key{e.SourceID, e.EntityID}] = e
	}

	if s.metrics != nil {
		s.metrics.UpdateCacheEntries(len(s.entries))
	}
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot copies the current cache into an immutable view. Scoring always
// runs against a snapshot, so writes from the next cycle never affect a
// cycle already in its scoring phase.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make(map[key]Entry, len(s.entries))
	for k, e := range s.entries {
		entries[k] = e
	}

	return &Snapshot{
		TakenAt: s.clock(),
		entries: entries,
	}
}

// Snapshot is an immutable copy of the cache taken at cycle start.
type Snapshot struct {
	TakenAt time.Time
	entries map[key]Entry
}

// Get returns the snapshotted entry for (sourceID, entityID), if present.
func (sn *Snapshot) Get(sourceID, entityID string) (Entry, bool) {
	e, ok := sn.entries[key{sourceID, entityID}]
	return e, ok
}

// Len returns the number of snapshotted entries.
func (sn *Snapshot) Len() int {
	return len(sn.entries)
}

// EntityIDs returns all entity ids present in the snapshot, sorted.
func (sn *Snapshot) EntityIDs() []string {
	seen := make(map[string]struct{})
	for k := range sn.entries {
		seen[k.entityID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EntityEntries returns the entries for one entity, sorted by source id for
// deterministic iteration. Callers impose source priority themselves.
func (sn *Snapshot) EntityEntries(entityID string) []Entry {
	var out []Entry
	for k, e := range sn.entries {
		if k.entityID == entityID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Entries returns all snapshotted entries sorted by (source, entity).
func (sn *Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(sn.entries))
	for _, e := range sn.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}
