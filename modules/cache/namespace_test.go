package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bool64/stats"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/tumblrapi/modules/cache"
)

type memStorage struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	writes   int
	writeErr error
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: make(map[string][]byte)}
}

func (m *memStorage) Read(location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[location]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (m *memStorage) Write(location string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.blobs[location] = append([]byte(nil), data...)
	return nil
}

func (m *memStorage) blob(t *testing.T, location string) map[string]json.RawMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(m.blobs[location], &out))
	return out
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

func openNamespace(t *testing.T, storage cache.Storage, clock clockwork.Clock) *cache.Namespace {
	t.Helper()
	ns, err := cache.Open(cache.Config{
		Name:     "data",
		Location: "cache_contents.json",
		Storage:  storage,
		Clock:    clock,
	})
	require.NoError(t, err)
	return ns
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := cache.Open(cache.Config{Location: "x.json"})
	assert.Error(t, err)

	_, err = cache.Open(cache.Config{Storage: newMemStorage()})
	assert.Error(t, err)
}

func TestNamespace_RoundTripAnyCasing(t *testing.T) {
	ctx := context.Background()
	ns := openNamespace(t, newMemStorage(), clockwork.NewFakeClockAt(epoch))

	require.NoError(t, ns.Set(ctx, "http://x/1", json.RawMessage(`{"a":1}`), 7))

	for _, id := range []string{"http://x/1", "HTTP://X/1", "Http://X/1"} {
		v, ok := ns.Get(ctx, id)
		require.True(t, ok, id)
		assert.JSONEq(t, `{"a":1}`, string(v))
	}
}

func TestNamespace_CaseInsensitiveOverwrite(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	ns := openNamespace(t, storage, clockwork.NewFakeClockAt(epoch))

	require.NoError(t, ns.Set(ctx, "Foo", json.RawMessage(`"v1"`), 30))
	require.NoError(t, ns.Set(ctx, "FOO", json.RawMessage(`"v2"`), 30))

	v, ok := ns.Get(ctx, "foo")
	require.True(t, ok)
	assert.Equal(t, `"v2"`, string(v))
	assert.Equal(t, 1, ns.Len())

	blob := storage.blob(t, "cache_contents.json")
	assert.Len(t, blob, 1)
	assert.Contains(t, blob, "FOO")
}

func TestNamespace_OverwriteReplacesWholeEntry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	ns := openNamespace(t, newMemStorage(), clock)

	require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`1`), 1))
	clock.Advance(10 * 24 * time.Hour)
	require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`2`), 0))

	entries := ns.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Entry.ExpireInDays)
	assert.True(t, clock.Now().Equal(entries[0].Entry.CreatedAt))
	assert.False(t, entries[0].Expired)
}

func TestNamespace_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("hit just before N days", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		ns := openNamespace(t, newMemStorage(), clock)
		require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`1`), 3))

		clock.Advance(3*24*time.Hour - time.Second)
		_, ok := ns.Get(ctx, "k")
		assert.True(t, ok)
	})

	t.Run("miss after N+1 days", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		ns := openNamespace(t, newMemStorage(), clock)
		require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`1`), 3))

		clock.Advance(4*24*time.Hour + time.Second)
		_, ok := ns.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("zero ttl survives the first day", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		ns := openNamespace(t, newMemStorage(), clock)
		require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`1`), 0))

		clock.Advance(23*time.Hour + 59*time.Minute + 59*time.Second)
		_, ok := ns.Get(ctx, "k")
		assert.True(t, ok)

		clock.Advance(time.Hour + 2*time.Second)
		_, ok = ns.Get(ctx, "k")
		assert.False(t, ok)
	})
}

func TestNamespace_ExpiredEntryIsEvictedOnRead(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	storage := newMemStorage()
	ns := openNamespace(t, storage, clock)

	require.NoError(t, ns.Set(ctx, "old", json.RawMessage(`1`), 1))
	require.NoError(t, ns.Set(ctx, "fresh", json.RawMessage(`2`), 30))
	clock.Advance(3 * 24 * time.Hour)

	// stale but not yet observed: still held and still persisted
	assert.Equal(t, 2, ns.Len())

	_, ok := ns.Get(ctx, "old")
	assert.False(t, ok)
	assert.Equal(t, 1, ns.Len())

	// the blob is only rewritten by the next mutation
	assert.Contains(t, storage.blob(t, "cache_contents.json"), "OLD")
	require.NoError(t, ns.Set(ctx, "other", json.RawMessage(`3`), 30))
	blob := storage.blob(t, "cache_contents.json")
	assert.NotContains(t, blob, "OLD")
	assert.Contains(t, blob, "FRESH")
	assert.Contains(t, blob, "OTHER")
}

func TestNamespace_SetPersistsStaleUnobservedEntries(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	storage := newMemStorage()
	ns := openNamespace(t, storage, clock)

	require.NoError(t, ns.Set(ctx, "old", json.RawMessage(`1`), 0))
	clock.Advance(5 * 24 * time.Hour)
	require.NoError(t, ns.Set(ctx, "new", json.RawMessage(`2`), 0))

	blob := storage.blob(t, "cache_contents.json")
	assert.Contains(t, blob, "OLD")
	assert.Contains(t, blob, "NEW")
	assert.Equal(t, 2, storage.writes)
}

func TestNamespace_Durability(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	storage := cache.NewFileStorage(t.TempDir())

	ns := openNamespace(t, storage, clock)
	require.NoError(t, ns.Set(ctx, "http://x/1", json.RawMessage(`{"a":1}`), 7))

	reopened := openNamespace(t, storage, clock)
	v, ok := reopened.Get(ctx, "http://x/1")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v))
}

func TestNamespace_EndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	storage := cache.NewFileStorage(t.TempDir())

	ns := openNamespace(t, storage, clock)
	require.NoError(t, ns.Set(ctx, "http://x/1", json.RawMessage(`{"a":1}`), 7))

	// restart
	ns = openNamespace(t, storage, clock)
	v, ok := ns.Get(ctx, "http://x/1")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v))

	clock.Advance(8 * 24 * time.Hour)
	_, ok = ns.Get(ctx, "http://x/1")
	assert.False(t, ok)

	require.NoError(t, ns.Set(ctx, "http://x/2", json.RawMessage(`{"b":2}`), 7))
	entries, err := cache.Load(storage, "cache_contents.json")
	require.NoError(t, err)
	assert.NotContains(t, entries, "HTTP://X/1")
	assert.Contains(t, entries, "HTTP://X/2")
}

func TestNamespace_ColdStart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storage := cache.NewFileStorage(dir)
	path := filepath.Join(dir, "cache_contents.json")

	for name, content := range map[string]string{
		"corrupt":       `{"HTTP://X/1": {"values": 1, "timestamp": "garbage", "expire_in_days": 7}}`,
		"truncated":     `{"HTTP://X/1": {"values"`,
		"wrong shape":   `"hello"`,
		"missing field": `{"K": {"values": 1, "expire_in_days": 7}}`,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			ns := openNamespace(t, storage, clockwork.NewFakeClockAt(epoch))
			assert.Equal(t, 0, ns.Len())

			require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`1`), 1))
			entries, err := cache.Load(storage, "cache_contents.json")
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}

	t.Run("deleted", func(t *testing.T) {
		require.NoError(t, os.Remove(path))
		ns := openNamespace(t, storage, clockwork.NewFakeClockAt(epoch))
		assert.Equal(t, 0, ns.Len())
		require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`1`), 1))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})
}

func TestNamespace_WriteFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	storage.writeErr = errors.New("disk full")
	ns := openNamespace(t, storage, clockwork.NewFakeClockAt(epoch))

	err := ns.Set(ctx, "k", json.RawMessage(`1`), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.writeErr)
}

func TestNamespace_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	ns := openNamespace(t, newMemStorage(), clockwork.NewFakeClockAt(epoch))

	value := json.RawMessage(`"abc"`)
	require.NoError(t, ns.Set(ctx, "k", value, 1))
	value[1] = 'z'

	v, ok := ns.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"abc"`, string(v))
}

func TestNamespace_SetRejectsInvalidJSON(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	storage := cache.NewFileStorage(t.TempDir())
	ns := openNamespace(t, storage, clock)

	require.NoError(t, ns.Set(ctx, "a", nil, 7))

	err := ns.Set(ctx, "bad", json.RawMessage(`{"x":`), 7)
	assert.ErrorIs(t, err, cache.ErrInvalidValue)
	assert.Equal(t, 1, ns.Len())

	require.NoError(t, ns.Set(ctx, "b", json.RawMessage(`{"x":1}`), 7))

	// restart
	ns = openNamespace(t, storage, clock)
	v, ok := ns.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "null", string(v))

	v, ok = ns.Get(ctx, "b")
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(v))

	_, ok = ns.Get(ctx, "bad")
	assert.False(t, ok)
}

func TestNamespace_DeletePruneClear(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	storage := newMemStorage()
	ns := openNamespace(t, storage, clock)

	require.NoError(t, ns.Set(ctx, "a", json.RawMessage(`1`), 1))
	require.NoError(t, ns.Set(ctx, "b", json.RawMessage(`2`), 10))
	require.NoError(t, ns.Set(ctx, "c", json.RawMessage(`3`), 10))

	removed, err := ns.Delete(ctx, "C")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = ns.Delete(ctx, "c")
	require.NoError(t, err)
	assert.False(t, removed)

	clock.Advance(5 * 24 * time.Hour)
	entries := ns.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Identifier)
	assert.True(t, entries[0].Expired)
	assert.Equal(t, "B", entries[1].Identifier)
	assert.False(t, entries[1].Expired)

	n, err := ns.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, storage.blob(t, "cache_contents.json"), "A")

	writes := storage.writes
	n, err = ns.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, writes, storage.writes)

	require.NoError(t, ns.Clear(ctx))
	assert.Equal(t, 0, ns.Len())
	assert.Empty(t, storage.blob(t, "cache_contents.json"))
}

func TestNamespace_Stats(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	st := &stats.TrackerMock{}

	ns, err := cache.Open(cache.Config{
		Name:     "data",
		Location: "cache_contents.json",
		Storage:  newMemStorage(),
		Clock:    clock,
		Stats:    st,
	})
	require.NoError(t, err)

	_, _ = ns.Get(ctx, "k")
	require.NoError(t, ns.Set(ctx, "k", json.RawMessage(`1`), 0))
	_, _ = ns.Get(ctx, "k")
	clock.Advance(48 * time.Hour)
	_, _ = ns.Get(ctx, "k")

	assert.Equal(t, 1, st.Int(cache.MetricMiss))
	assert.Equal(t, 1, st.Int(cache.MetricWrite))
	assert.Equal(t, 1, st.Int(cache.MetricHit))
	assert.Equal(t, 1, st.Int(cache.MetricExpired))
}

func TestNamespace_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	ns := openNamespace(t, storage, clockwork.NewFakeClockAt(epoch))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			assert.NoError(t, ns.Set(ctx, id, json.RawMessage(`1`), 1))
			_, ok := ns.Get(ctx, id)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, ns.Len())
	assert.Len(t, storage.blob(t, "cache_contents.json"), 20)
}
