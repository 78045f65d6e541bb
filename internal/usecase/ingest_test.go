package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdash/internal/domain"
	"newsdash/internal/infrastructure/storage"
	"newsdash/internal/rules"
)

// fakeFetcher serves canned results per feed URL.
type fakeFetcher struct {
	results map[string]domain.FetchResult
	errs    map[string]error
}

func (f *fakeFetcher) FetchFeed(_ context.Context, url string) (domain.FetchResult, error) {
	if err, ok := f.errs[url]; ok {
		return domain.FetchResult{HTTPStatus: http.StatusNotFound}, err
	}
	return f.results[url], nil
}

func newTestStore(t *testing.T, sources ...domain.Source) *storage.Store {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.sqlite3"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.SeedSources(ctx, sources))
	return store
}

func newTestIngestor(t *testing.T, store *storage.Store, fetcher *fakeFetcher) *Ingestor {
	t.Helper()

	engine, err := rules.NewEngine(rules.DefaultTables())
	require.NoError(t, err)

	return NewIngestor(IngestorDeps{
		Fetcher:    fetcher,
		Store:      store,
		Classifier: engine,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func feedEntry(title, url, guid string) domain.Entry {
	published := time.Now().UTC()
	return domain.Entry{Title: title, URL: url, GUID: guid, Published: &published}
}

func TestFetchOnceEndToEnd(t *testing.T) {
	t.Parallel()

	src := domain.Source{SourceID: "src_a", Publisher: "Reuters", FeedName: "Markets",
		Category: "A", FeedURL: "https://example.com/a.xml", Enabled: true}
	store := newTestStore(t, src)

	fetcher := &fakeFetcher{results: map[string]domain.FetchResult{
		src.FeedURL: {
			HTTPStatus: http.StatusOK,
			Entries: []domain.Entry{
				feedEntry("Fed Signals Potential Rate Cuts in 2026", "https://example.com/fed", ""),
				feedEntry("Oil Prices Surge Amid Middle East Tensions", "https://example.com/oil", "oil-1"),
			},
		},
	}}
	ing := newTestIngestor(t, store, fetcher)
	ctx := context.Background()

	summary, err := ing.FetchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsAdded)
	assert.Empty(t, summary.LastError)
	assert.NotEmpty(t, summary.RunID)

	topics, err := store.TopicCounts(ctx, 24*time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, 1, topics["fed"])
	assert.Equal(t, 1, topics["rates"])
	assert.Equal(t, 1, topics["energy"])

	directions, err := store.DirectionCounts(ctx, 24*time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, 1, directions[domain.DirectionNeutral])
	assert.Equal(t, 1, directions[domain.DirectionPos])

	statuses, err := store.SourceStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].ItemsSeen)
	assert.Equal(t, 2, statuses[0].ItemsAdded)
	assert.NotNil(t, statuses[0].LastOK)
}

func TestFetchOnceDedupOnReIngest(t *testing.T) {
	t.Parallel()

	src := domain.Source{SourceID: "src_a", Publisher: "Reuters", FeedName: "Markets",
		Category: "A", FeedURL: "https://example.com/a.xml", Enabled: true}
	store := newTestStore(t, src)

	fetcher := &fakeFetcher{results: map[string]domain.FetchResult{
		src.FeedURL: {
			HTTPStatus: http.StatusOK,
			Entries: []domain.Entry{
				feedEntry("Fed Signals Potential Rate Cuts in 2026", "https://example.com/fed", ""),
			},
		},
	}}
	ing := newTestIngestor(t, store, fetcher)
	ctx := context.Background()

	first, err := ing.FetchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ItemsAdded)

	second, err := ing.FetchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ItemsAdded)

	items, err := store.AllItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1, "re-ingesting the same payload must not add rows")
}

func TestFetchOnceSourceFailureIsIsolated(t *testing.T) {
	t.Parallel()

	broken := domain.Source{SourceID: "src_broken", Publisher: "X", FeedName: "F",
		Category: "A", FeedURL: "https://example.com/broken.xml", Enabled: true}
	healthy := domain.Source{SourceID: "src_ok", Publisher: "Y", FeedName: "G",
		Category: "A", FeedURL: "https://example.com/ok.xml", Enabled: true}
	store := newTestStore(t, broken, healthy)

	fetcher := &fakeFetcher{
		errs: map[string]error{broken.FeedURL: errors.New("HTTP 404: Not Found (feed may have moved)")},
		results: map[string]domain.FetchResult{
			healthy.FeedURL: {
				HTTPStatus: http.StatusOK,
				Entries:    []domain.Entry{feedEntry("Markets Rally", "https://example.com/rally", "")},
			},
		},
	}
	ing := newTestIngestor(t, store, fetcher)
	ctx := context.Background()

	summary, err := ing.FetchOnce(ctx)
	require.NoError(t, err, "per-source failures must not surface to the caller")
	assert.Equal(t, 1, summary.ItemsAdded)
	assert.Contains(t, summary.LastError, "src_broken")
	assert.Contains(t, summary.LastError, "404")

	statuses, err := store.SourceStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byID := map[string]domain.SourceStatus{}
	for _, st := range statuses {
		byID[st.SourceID] = st
	}
	assert.NotEmpty(t, byID["src_broken"].LastError)
	assert.Nil(t, byID["src_broken"].LastOK)
	assert.Equal(t, http.StatusNotFound, byID["src_broken"].LastHTTPStatus)
	assert.Empty(t, byID["src_ok"].LastError)
	assert.Equal(t, 1, byID["src_ok"].ItemsAdded)
}

func TestFetchOnceSkipsInvalidEntries(t *testing.T) {
	t.Parallel()

	src := domain.Source{SourceID: "src_a", Publisher: "Reuters", FeedName: "Markets",
		Category: "A", FeedURL: "https://example.com/a.xml", Enabled: true}
	store := newTestStore(t, src)

	fetcher := &fakeFetcher{results: map[string]domain.FetchResult{
		src.FeedURL: {
			HTTPStatus: http.StatusOK,
			Entries: []domain.Entry{
				feedEntry("", "https://example.com/no-title", ""),
				feedEntry("No URL Here", "", ""),
				feedEntry("Valid Story", "https://example.com/ok", ""),
			},
		},
	}}
	ing := newTestIngestor(t, store, fetcher)

	summary, err := ing.FetchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsAdded)
	assert.Empty(t, summary.LastError, "skipped entries are not errors")

	statuses, err := store.SourceStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 3, statuses[0].ItemsSeen)
	assert.Equal(t, 1, statuses[0].ItemsAdded)
}

func TestFetchOnceRecordsParseWarning(t *testing.T) {
	t.Parallel()

	src := domain.Source{SourceID: "src_a", Publisher: "Reuters", FeedName: "Markets",
		Category: "A", FeedURL: "https://example.com/a.xml", Enabled: true}
	store := newTestStore(t, src)

	fetcher := &fakeFetcher{results: map[string]domain.FetchResult{
		src.FeedURL: {
			HTTPStatus: http.StatusOK,
			Warning:    "feed parse warning (recovered after sanitizing)",
			Entries:    []domain.Entry{feedEntry("Salvaged Story", "https://example.com/s", "")},
		},
	}}
	ing := newTestIngestor(t, store, fetcher)

	summary, err := ing.FetchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsAdded, "salvaged entries are still ingested")

	statuses, err := store.SourceStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Contains(t, statuses[0].LastError, "parse warning")
	assert.NotNil(t, statuses[0].LastOK, "a warning is not a failed fetch")
}

func TestStatusAccessor(t *testing.T) {
	t.Parallel()

	src := domain.Source{SourceID: "src_a", Publisher: "Reuters", FeedName: "Markets",
		Category: "A", FeedURL: "https://example.com/a.xml", Enabled: true}
	store := newTestStore(t, src)

	fetcher := &fakeFetcher{results: map[string]domain.FetchResult{
		src.FeedURL: {HTTPStatus: http.StatusOK},
	}}
	ing := newTestIngestor(t, store, fetcher)

	assert.Empty(t, ing.Status().RunID, "no run yet")

	summary, err := ing.FetchOnce(context.Background())
	require.NoError(t, err)

	got := ing.Status()
	assert.Equal(t, summary.RunID, got.RunID)
	assert.False(t, got.FinishedAt.Before(got.StartedAt))
}

func TestRetagAppliesNewRules(t *testing.T) {
	t.Parallel()

	src := domain.Source{SourceID: "src_a", Publisher: "Reuters", FeedName: "Markets",
		Category: "A", FeedURL: "https://example.com/a.xml", Enabled: true}
	store := newTestStore(t, src)

	fetcher := &fakeFetcher{results: map[string]domain.FetchResult{
		src.FeedURL: {
			HTTPStatus: http.StatusOK,
			Entries:    []domain.Entry{feedEntry("Lithium Output Jumps", "https://example.com/li", "")},
		},
	}}
	ing := newTestIngestor(t, store, fetcher)
	ctx := context.Background()

	_, err := ing.FetchOnce(ctx)
	require.NoError(t, err)

	// swap in an engine whose table knows a new label and re-run
	engine, err := rules.NewEngine(rules.Tables{
		Topics:       map[string][]string{"lithium": {`\blithium\b`}},
		AssetClasses: map[string][]string{},
		Geo:          map[string][]string{},
	})
	require.NoError(t, err)
	ing.classifier = engine

	count, err := ing.Retag(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	topics, err := store.TopicCounts(ctx, 24*time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, 1, topics["lithium"])
}
