package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bool64/stats"
	"github.com/jonboulle/clockwork"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Metric names reported to Config.Stats, labelled with the namespace name.
const (
	MetricHit     = "cache_hit"
	MetricMiss    = "cache_miss"
	MetricExpired = "cache_expired"
	MetricWrite   = "cache_write"
	MetricDelete  = "cache_delete"
)

// ErrInvalidValue is returned by Set for a value that is not valid JSON.
var ErrInvalidValue = errors.New("cache: value is not valid JSON")

// Config describes one namespace.
type Config struct {
	// Name is used in logs and stats.
	Name string

	// Location is the blob name inside Storage.
	Location string

	Storage Storage

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger

	// Stats defaults to stats.NoOp.
	Stats stats.Tracker
}

// Namespace is the get/set facade over one mapping and its blob.
//
// All methods hold one mutex for their full duration, including the write to
// storage, so evict-on-read and read-modify-persist are atomic per namespace.
type Namespace struct {
	mu sync.Mutex

	name     string
	location string
	storage  Storage
	clock    clockwork.Clock
	log      zerolog.Logger
	stat     stats.Tracker

	// entries holds Entry values with no go-cache expiration; staleness is
	// decided by IsExpired on read.
	entries *gocache.Cache
}

// EntryInfo is a read-only view of one entry used for inspection.
type EntryInfo struct {
	Identifier string
	Entry      Entry
	Expired    bool
}

// Open builds a namespace and loads its blob. A LoadError is never returned:
// the namespace starts empty instead. Only an invalid Config fails.
func Open(cfg Config) (*Namespace, error) {
	if cfg.Storage == nil {
		return nil, errors.New("cache: storage is required")
	}
	if cfg.Location == "" {
		return nil, errors.New("cache: location is required")
	}

	n := &Namespace{
		name:     cfg.Name,
		location: cfg.Location,
		storage:  cfg.Storage,
		clock:    cfg.Clock,
		stat:     cfg.Stats,
		log:      zerolog.Nop(),
	}
	if n.name == "" {
		n.name = cfg.Location
	}
	if n.clock == nil {
		n.clock = clockwork.NewRealClock()
	}
	if n.stat == nil {
		n.stat = stats.NoOp{}
	}
	if cfg.Logger != nil {
		n.log = cfg.Logger.With().Str("namespace", n.name).Logger()
	}

	loaded, err := Load(n.storage, n.location)
	if err != nil {
		n.logLoadError(err)
		loaded = nil
	}

	items := make(map[string]gocache.Item, len(loaded))
	for id, e := range loaded {
		items[id] = gocache.Item{Object: e}
	}
	n.entries = gocache.NewFrom(gocache.NoExpiration, 0, items)

	n.log.Debug().Str("location", n.location).Int("entries", len(items)).Msg("cache namespace loaded")
	return n, nil
}

func (n *Namespace) logLoadError(err error) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) && loadErr.Reason == ReasonAbsent {
		n.log.Debug().Str("location", n.location).Msg("no cache file yet, starting empty")
		return
	}
	n.log.Warn().Err(err).Str("location", n.location).Msg("ignoring unusable cache file, starting empty")
}

// Name returns the namespace name.
func (n *Namespace) Name() string {
	return n.name
}

// Location returns the blob location.
func (n *Namespace) Location() string {
	return n.location
}

// Get returns the value stored for identifier. A stale entry is removed from
// memory and reported as a miss; the blob is left alone until the next write.
func (n *Namespace) Get(ctx context.Context, identifier string) (json.RawMessage, bool) {
	id := Normalize(identifier)

	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.lookup(id)
	if !ok {
		n.log.Debug().Str("identifier", id).Msg("cache miss")
		n.stat.Add(ctx, MetricMiss, 1, "name", n.name)
		return nil, false
	}

	if e.IsExpired(n.clock.Now()) {
		n.entries.Delete(id)
		n.log.Debug().Str("identifier", id).Msg("cache has expired")
		n.stat.Add(ctx, MetricExpired, 1, "name", n.name)
		return nil, false
	}

	n.log.Debug().Str("identifier", id).Msg("cache hit")
	n.stat.Add(ctx, MetricHit, 1, "name", n.name)
	return e.Values, true
}

// Set replaces the entry for identifier and persists the whole namespace,
// stale entries included. A storage error is returned and the in-memory write
// is kept. A nil value is stored as null; any other value must be valid JSON
// or the namespace is left untouched.
func (n *Namespace) Set(ctx context.Context, identifier string, value json.RawMessage, ttlDays int) error {
	id := Normalize(identifier)

	if value == nil {
		value = json.RawMessage("null")
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s", ErrInvalidValue, id)
	}

	stored := make(json.RawMessage, len(value))
	copy(stored, value)

	n.mu.Lock()
	defer n.mu.Unlock()

	n.entries.Set(id, Entry{
		Values:       stored,
		CreatedAt:    n.clock.Now().Truncate(time.Microsecond),
		ExpireInDays: ttlDays,
	}, gocache.NoExpiration)

	n.log.Debug().Str("identifier", id).Int("expire_in_days", ttlDays).Msg("wrote to cache")
	n.stat.Add(ctx, MetricWrite, 1, "name", n.name)

	return n.persist()
}

// Delete removes identifier and persists if it was present.
func (n *Namespace) Delete(ctx context.Context, identifier string) (bool, error) {
	id := Normalize(identifier)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.lookup(id); !ok {
		return false, nil
	}
	n.entries.Delete(id)
	n.stat.Add(ctx, MetricDelete, 1, "name", n.name)

	return true, n.persist()
}

// Prune removes every stale entry and persists once if anything was removed.
func (n *Namespace) Prune(ctx context.Context) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	removed := 0
	for id, item := range n.entries.Items() {
		e, ok := item.Object.(Entry)
		if ok && !e.IsExpired(now) {
			continue
		}
		n.entries.Delete(id)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}

	n.log.Debug().Int("removed", removed).Msg("pruned expired entries")
	n.stat.Add(ctx, MetricExpired, float64(removed), "name", n.name)
	return removed, n.persist()
}

// Clear drops every entry and persists an empty blob.
func (n *Namespace) Clear(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := n.entries.ItemCount()
	n.entries.Flush()
	n.stat.Add(ctx, MetricDelete, float64(count), "name", n.name)

	return n.persist()
}

// Len returns the number of entries held in memory, stale ones included.
func (n *Namespace) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.entries.ItemCount()
}

// Entries returns every entry sorted by identifier without evicting anything.
func (n *Namespace) Entries() []EntryInfo {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	snapshot := n.snapshot()
	out := make([]EntryInfo, 0, len(snapshot))
	for id, e := range snapshot {
		out = append(out, EntryInfo{
			Identifier: id,
			Entry:      e,
			Expired:    e.IsExpired(now),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

func (n *Namespace) lookup(id string) (Entry, bool) {
	obj, found := n.entries.Get(id)
	if !found {
		return Entry{}, false
	}
	e, ok := obj.(Entry)
	return e, ok
}

func (n *Namespace) snapshot() map[string]Entry {
	items := n.entries.Items()
	out := make(map[string]Entry, len(items))
	for id, item := range items {
		if e, ok := item.Object.(Entry); ok {
			out[id] = e
		}
	}
	return out
}

// persist must be called with mu held.
func (n *Namespace) persist() error {
	if err := Save(n.storage, n.location, n.snapshot()); err != nil {
		n.log.Error().Err(err).Str("location", n.location).Msg("failed to persist cache")
		return err
	}
	return nil
}
