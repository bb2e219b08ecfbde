package ldcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/ldcontext/jsonld"
)

// Test helper functions

// newStoreFunc creates a fresh, empty store configured with opts.
type newStoreFunc func(opts ...StoreOption) (*ContextStore, error)

// withClock replaces the store clock.
func withClock(now func() time.Time) StoreOption {
	return func(c *config) {
		c.now = now
	}
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// countingLoader serves docs and counts every call.
type countingLoader struct {
	docs  jsonld.MapLoader
	calls atomic.Int64
}

func (l *countingLoader) LoadDocument(ctx context.Context, url string) (*jsonld.RemoteDocument, error) {
	l.calls.Add(1)
	return l.docs.LoadDocument(ctx, url)
}

// mustStore creates a store and closes it when the test ends.
func mustStore(t *testing.T, newStore newStoreFunc, opts ...StoreOption) *ContextStore {
	t.Helper()
	store, err := newStore(opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func personDocument() map[string]any {
	return map[string]any{
		"@context": map[string]any{
			"name": "http://schema.org/name",
			"knows": map[string]any{
				"@id":   "http://xmlns.com/foaf/0.1/knows",
				"@type": "@id",
			},
		},
	}
}

// runGetPutDeleteTest tests the basic cache operations.
func runGetPutDeleteTest(t *testing.T, store *ContextStore) {
	ctx := context.Background()
	const url = "https://example.com/person.jsonld"

	_, ok, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.False(t, ok, "empty store should not contain %s", url)

	rd := &jsonld.RemoteDocument{Document: personDocument(), ContextURL: "https://example.com/link.jsonld"}
	require.NoError(t, store.Put(ctx, url, rd))

	got, ok, err := store.Get(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, url, got.DocumentURL, "document URL defaults to the requested URL")
	assert.Equal(t, "https://example.com/link.jsonld", got.ContextURL)
	assert.Equal(t, personDocument(), got.Document)

	// Put replaces the previous document.
	replaced := &jsonld.RemoteDocument{
		DocumentURL: "https://example.com/v2/person.jsonld",
		Document:    map[string]any{"@context": map[string]any{"name": "http://xmlns.com/foaf/0.1/name"}},
	}
	require.NoError(t, store.Put(ctx, url, replaced))
	got, ok, err = store.Get(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/v2/person.jsonld", got.DocumentURL)
	assert.Equal(t, "", got.ContextURL)
	assert.Equal(t, replaced.Document, got.Document)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := store.Delete(ctx, url)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, url)
	require.NoError(t, err)
	assert.False(t, removed, "second delete should report absence")

	_, ok, err = store.Get(ctx, url)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, store.Put(ctx, url, nil), "nil document must be rejected")
}

// runURLsTest tests that URLs are listed in sorted order.
func runURLsTest(t *testing.T, store *ContextStore) {
	ctx := context.Background()

	urls, err := store.URLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, urls)

	for _, url := range []string{"https://c.example/", "https://a.example/", "https://b.example/"} {
		require.NoError(t, store.Put(ctx, url, &jsonld.RemoteDocument{Document: map[string]any{"@context": map[string]any{}}}))
	}

	urls, err = store.URLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/", "https://c.example/"}, urls)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// runLoadDocumentTest tests hits, misses and write-back through the next loader.
func runLoadDocumentTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()
	const url = "https://example.com/person.jsonld"

	next := &countingLoader{docs: jsonld.MapLoader{url: personDocument()}}
	store := mustStore(t, newStore, WithLoader(next))

	rd, err := store.LoadDocument(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, personDocument(), rd.Document)
	assert.Equal(t, int64(1), next.calls.Load())

	// Served from the database from now on.
	for range 3 {
		rd, err = store.LoadDocument(ctx, url)
		require.NoError(t, err)
		assert.Equal(t, personDocument(), rd.Document)
	}
	assert.Equal(t, int64(1), next.calls.Load(), "cached document should not be fetched again")

	_, ok, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.True(t, ok, "fetched document should be written back")

	// Errors from the next loader pass through unchanged and are not cached.
	_, err = store.LoadDocument(ctx, "https://example.com/missing.jsonld")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jsonld")
	_, ok, err = store.Get(ctx, "https://example.com/missing.jsonld")
	require.NoError(t, err)
	assert.False(t, ok)
}

// runNotCachedTest tests a store without a next loader.
func runNotCachedTest(t *testing.T, store *ContextStore) {
	ctx := context.Background()
	const url = "https://example.com/person.jsonld"

	_, err := store.LoadDocument(ctx, url)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotCached), "expected ErrNotCached, got %v", err)
	assert.Contains(t, err.Error(), url)

	require.NoError(t, store.Put(ctx, url, &jsonld.RemoteDocument{Document: personDocument()}))
	rd, err := store.LoadDocument(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, personDocument(), rd.Document)
}

// runTTLTest tests that expired documents are fetched again.
func runTTLTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()
	const url = "https://example.com/person.jsonld"

	clock := newFakeClock()
	next := &countingLoader{docs: jsonld.MapLoader{url: personDocument()}}
	reg := prometheus.NewRegistry()
	store := mustStore(t, newStore, WithLoader(next), WithTTL(time.Hour), withClock(clock.Now), WithRegisterer(reg))

	_, err := store.LoadDocument(ctx, url)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = store.LoadDocument(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.calls.Load(), "document younger than the TTL should be served from cache")

	clock.Advance(2 * time.Minute)
	_, err = store.LoadDocument(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.calls.Load(), "expired document should be fetched again")

	// The refetch restamped the entry.
	_, err = store.LoadDocument(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(store.metrics.lookups.WithLabelValues(resultMiss)))
	assert.Equal(t, 2.0, testutil.ToFloat64(store.metrics.lookups.WithLabelValues(resultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(store.metrics.lookups.WithLabelValues(resultStale)))
	assert.Equal(t, 2.0, testutil.ToFloat64(store.metrics.fetches.WithLabelValues("ok")))
}

// runMetricsTest tests metric registration and counting.
func runMetricsTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()
	const url = "https://example.com/person.jsonld"

	reg := prometheus.NewRegistry()
	next := jsonld.MapLoader{url: personDocument()}
	store := mustStore(t, newStore, WithLoader(next), WithRegisterer(reg))

	_, err := store.LoadDocument(ctx, url)
	require.NoError(t, err)
	_, err = store.LoadDocument(ctx, url)
	require.NoError(t, err)
	_, err = store.LoadDocument(ctx, "https://example.com/missing.jsonld")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(store.metrics.lookups.WithLabelValues(resultHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(store.metrics.lookups.WithLabelValues(resultMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(store.metrics.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(store.metrics.fetches.WithLabelValues("error")))

	count, err := testutil.GatherAndCount(reg, "ldcontext_store_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A second store on the same registry shares the collectors.
	other := mustStore(t, newStore, WithRegisterer(reg))
	assert.Same(t, store.metrics.lookups, other.metrics.lookups)
}

// runWriteBackFailureTest tests that a failed cache write does not fail the load.
func runWriteBackFailureTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()
	const url = "https://example.com/bad.jsonld"

	// Channels cannot be encoded as JSON, so the write-back fails.
	next := jsonld.DocumentLoaderFunc(func(ctx context.Context, url string) (*jsonld.RemoteDocument, error) {
		return &jsonld.RemoteDocument{DocumentURL: url, Document: make(chan int)}, nil
	})
	store := mustStore(t, newStore, WithLoader(next))

	rd, err := store.LoadDocument(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, url, rd.DocumentURL)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// runReadWriteTest tests the ReadFrom and WriteTo methods for streaming JSON.
func runReadWriteTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()

	// Setup: Create a source store with documents
	store1 := mustStore(t, newStore)
	docs := map[string]*jsonld.RemoteDocument{
		"https://example.com/a.jsonld": {Document: personDocument()},
		"https://example.com/b.jsonld": {
			DocumentURL: "https://example.com/b/index.jsonld",
			ContextURL:  "https://example.com/b/link.jsonld",
			Document:    map[string]any{"@context": []any{"https://example.com/a.jsonld", map[string]any{"x": nil}}},
		},
		"https://example.com/c.jsonld": {Document: map[string]any{"@context": map[string]any{"@vocab": "http://schema.org/", "n": 1.5, "ok": true}}},
	}
	for url, rd := range docs {
		require.NoError(t, store1.Put(ctx, url, rd))
	}

	// Step 1: Export store1 to a buffer using WriteTo
	var buf strings.Builder
	n, err := store1.WriteTo(&buf)
	require.NoError(t, err)
	require.NotZero(t, n, "WriteTo returned 0 bytes written")
	assert.Equal(t, int64(buf.Len()), n)
	jsonOutput := buf.String()
	assert.Less(t, strings.Index(jsonOutput, "a.jsonld"), strings.Index(jsonOutput, "c.jsonld"), "entries should be written in URL order")

	// Step 2: Import into an empty store
	store2 := mustStore(t, newStore)
	bytesRead, err := store2.ReadFrom(strings.NewReader(jsonOutput))
	require.NoError(t, err)
	assert.Equal(t, int64(len(jsonOutput)), bytesRead)

	// Step 3: Verify that store2 holds the same documents
	count, err := store2.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(docs), count)
	for url, want := range docs {
		got, ok, err := store2.Get(ctx, url)
		require.NoError(t, err)
		require.True(t, ok, "missing %s after import", url)
		assert.Equal(t, want.Document, got.Document, url)
		assert.Equal(t, want.ContextURL, got.ContextURL, url)
		if want.DocumentURL != "" {
			assert.Equal(t, want.DocumentURL, got.DocumentURL, url)
		} else {
			assert.Equal(t, url, got.DocumentURL, url)
		}
	}

	// Step 4: Exporting again produces identical output
	var again strings.Builder
	_, err = store2.WriteTo(&again)
	require.NoError(t, err)
	assert.Equal(t, jsonOutput, again.String())
}

// runReadFromTest tests imports with duplicates, batches and malformed input.
func runReadFromTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()

	t.Run("EmptyArray", func(t *testing.T) {
		store := mustStore(t, newStore)
		_, err := store.ReadFrom(strings.NewReader(`[]`))
		require.NoError(t, err)
		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("DuplicatesLaterWins", func(t *testing.T) {
		store := mustStore(t, newStore)
		input := `[
			{"url": "https://example.com/x", "fetchedAt": 1, "document": {"@context": {"a": "http://a.example/"}}},
			{"url": "https://example.com/x", "fetchedAt": 2, "document": {"@context": {"b": "http://b.example/"}}}
		]`
		_, err := store.ReadFrom(strings.NewReader(input))
		require.NoError(t, err)
		rd, ok, err := store.Get(ctx, "https://example.com/x")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"@context": map[string]any{"b": "http://b.example/"}}, rd.Document)
		assert.Equal(t, "https://example.com/x", rd.DocumentURL)
	})

	t.Run("ManyBatches", func(t *testing.T) {
		store := mustStore(t, newStore)
		var sb strings.Builder
		sb.WriteString("[")
		const total = 450
		for i := range total {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, `{"url":"https://example.com/ctx/%d","fetchedAt":0,"document":{"@context":{}}}`, i)
		}
		sb.WriteString("]")
		_, err := store.ReadFrom(strings.NewReader(sb.String()))
		require.NoError(t, err)
		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, total, n)
	})

	errorTests := []struct {
		name  string
		input string
	}{
		{"NotAnArray", `{"url": "https://example.com/x"}`},
		{"MissingURL", `[{"fetchedAt": 0, "document": {}}]`},
		{"MissingDocument", `[{"url": "https://example.com/x", "fetchedAt": 0}]`},
		{"Truncated", `[{"url": "https://example.com/x", "fetchedAt": 0, "document": {}}`},
		{"Empty", ``},
	}
	for _, tt := range errorTests {
		t.Run(tt.name, func(t *testing.T) {
			store := mustStore(t, newStore)
			_, err := store.ReadFrom(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

// runProcessTest tests the store as the document loader of context processing.
func runProcessTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()
	const url = "https://example.com/person.jsonld"

	next := &countingLoader{docs: jsonld.MapLoader{url: personDocument()}}
	store := mustStore(t, newStore, WithLoader(next))

	active, err := jsonld.NewContext(&jsonld.Options{Base: "https://example.com/doc", DocumentLoader: store})
	require.NoError(t, err)

	for range 2 {
		result, err := active.Process(ctx, url)
		require.NoError(t, err)
		def, ok := result.Term("knows")
		require.True(t, ok)
		assert.Equal(t, "http://xmlns.com/foaf/0.1/knows", def.IRI)
		assert.Equal(t, "@id", def.Type)
	}
	assert.Equal(t, int64(1), next.calls.Load(), "second processing should use the cached document")

	// Without a next loader the cached copy still serves processing.
	offline := mustStore(t, newStore)
	require.NoError(t, offline.Put(ctx, url, &jsonld.RemoteDocument{Document: personDocument()}))
	active, err = jsonld.NewContext(&jsonld.Options{DocumentLoader: offline})
	require.NoError(t, err)
	result, err := active.Process(ctx, url)
	require.NoError(t, err)
	_, ok := result.Term("name")
	assert.True(t, ok)

	_, err = active.Process(ctx, "https://example.com/unknown.jsonld")
	require.Error(t, err)
	assert.Equal(t, jsonld.LoadingRemoteContextFailed, jsonld.CodeOf(err))
	assert.True(t, errors.Is(err, ErrNotCached))
}

// runConcurrentTest tests concurrent loads through one store.
func runConcurrentTest(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()
	docs := jsonld.MapLoader{}
	for _, name := range []string{"a", "b", "c", "d"} {
		docs["https://example.com/"+name] = map[string]any{"@context": map[string]any{name: "http://example.com/vocab#" + name}}
	}
	store := mustStore(t, newStore, WithLoader(docs))

	errs := make(chan error, 32)
	for i := range 32 {
		go func() {
			url := "https://example.com/" + string(rune('a'+i%4))
			_, err := store.LoadDocument(ctx, url)
			errs <- err
		}()
	}
	for range 32 {
		require.NoError(t, <-errs)
	}

	// Write-backs racing on one row may have been dropped; a second pass fills them in.
	for url := range docs {
		_, err := store.LoadDocument(ctx, url)
		require.NoError(t, err)
	}
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// runSuite runs all shared tests for a given store implementation.
func runSuite(t *testing.T, newStore newStoreFunc) {
	t.Run("GetPutDelete", func(t *testing.T) {
		runGetPutDeleteTest(t, mustStore(t, newStore))
	})

	t.Run("URLs", func(t *testing.T) {
		runURLsTest(t, mustStore(t, newStore))
	})

	t.Run("LoadDocument", func(t *testing.T) {
		runLoadDocumentTest(t, newStore)
	})

	t.Run("NotCached", func(t *testing.T) {
		runNotCachedTest(t, mustStore(t, newStore))
	})

	t.Run("TTL", func(t *testing.T) {
		runTTLTest(t, newStore)
	})

	t.Run("Metrics", func(t *testing.T) {
		runMetricsTest(t, newStore)
	})

	t.Run("WriteBackFailure", func(t *testing.T) {
		runWriteBackFailureTest(t, newStore)
	})

	t.Run("ReadWrite", func(t *testing.T) {
		runReadWriteTest(t, newStore)
	})

	t.Run("ReadFrom", func(t *testing.T) {
		runReadFromTest(t, newStore)
	})

	t.Run("Process", func(t *testing.T) {
		runProcessTest(t, newStore)
	})

	t.Run("Concurrent", func(t *testing.T) {
		runConcurrentTest(t, newStore)
	})
}
