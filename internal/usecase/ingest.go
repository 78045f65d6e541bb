// Package usecase contains the ingestion orchestration workflow.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsdash/internal/domain"
	"newsdash/internal/identity"
	"newsdash/internal/ports"
)

// IngestorDeps wires the driven adapters into the orchestrator.
type IngestorDeps struct {
	Fetcher    ports.FeedFetcher
	Store      ports.ItemStore
	Classifier ports.Classifier
	Logger     *slog.Logger
}

// Ingestor iterates enabled sources, fetches their feeds, annotates entries
// and drives persistence. Per-source failures are isolated: they are recorded
// in the source-status side channel and never abort the run.
type Ingestor struct {
	fetcher    ports.FeedFetcher
	store      ports.ItemStore
	classifier ports.Classifier
	logger     *slog.Logger

	mu     sync.Mutex
	status domain.RunSummary
}

// NewIngestor constructs the orchestration component.
func NewIngestor(deps IngestorDeps) *Ingestor {
	return &Ingestor{
		fetcher:    deps.Fetcher,
		store:      deps.Store,
		classifier: deps.Classifier,
		logger:     deps.Logger,
	}
}

// FetchOnce runs exactly one ingestion cycle across all enabled sources and
// publishes the run summary. Only an outer persistence failure (listing the
// sources) propagates as an error; everything else is recovered locally.
func (ing *Ingestor) FetchOnce(ctx context.Context) (domain.RunSummary, error) {
	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	sources, err := ing.store.EnabledSources(ctx)
	if err != nil {
		summary.LastError = fmt.Sprintf("list sources: %v", err)
		summary.FinishedAt = time.Now().UTC()
		ing.setStatus(summary)
		return summary, fmt.Errorf("list sources: %w", err)
	}

	for _, src := range sources {
		status := ing.processSource(ctx, src, summary.StartedAt)
		summary.ItemsAdded += status.ItemsAdded
		if status.LastError != "" {
			summary.LastError = fmt.Sprintf("%s: %s", src.SourceID, status.LastError)
		}
		if err := ing.store.UpdateSourceStatus(ctx, status); err != nil {
			ing.logger.Error("update source status", "source", src.SourceID, "error", err)
			summary.LastError = fmt.Sprintf("%s: status update: %v", src.SourceID, err)
		}
	}

	summary.FinishedAt = time.Now().UTC()
	ing.setStatus(summary)
	ing.logger.Info("ingestion cycle done",
		"run_id", summary.RunID, "sources", len(sources),
		"items_added", summary.ItemsAdded, "last_error", summary.LastError)
	return summary, nil
}

func (ing *Ingestor) processSource(ctx context.Context, src domain.Source, fetchTime time.Time) domain.SourceStatus {
	status := domain.SourceStatus{SourceID: src.SourceID, LastFetch: fetchTime}

	result, err := ing.fetcher.FetchFeed(ctx, src.FeedURL)
	status.LastHTTPStatus = result.HTTPStatus
	if err != nil {
		status.LastError = err.Error()
		ing.logger.Warn("feed fetch failed", "source", src.SourceID, "error", err)
		return status
	}

	ok := fetchTime
	status.LastOK = &ok
	if result.Warning != "" {
		status.LastError = result.Warning
	}

	for _, entry := range result.Entries {
		status.ItemsSeen++
		// entries without a title or url are not valid items; drop silently
		if entry.Title == "" || entry.URL == "" {
			continue
		}

		created, err := ing.ingestEntry(ctx, src, entry)
		if err != nil {
			status.LastError = err.Error()
			ing.logger.Error("persist entry failed", "source", src.SourceID, "error", err)
			break
		}
		if created {
			status.ItemsAdded++
		}
	}

	return status
}

func (ing *Ingestor) ingestEntry(ctx context.Context, src domain.Source, entry domain.Entry) (bool, error) {
	annotated := domain.AnnotatedItem{
		Item: domain.Item{
			ItemID:      identity.ItemID(src.SourceID, entry.Title, entry.URL, entry.GUID),
			SourceID:    src.SourceID,
			PublishedAt: entry.Published,
			FetchedAt:   time.Now().UTC(),
			Title:       entry.Title,
			URL:         entry.URL,
			GUID:        entry.GUID,
			Summary:     entry.Summary,
		},
		Annotations: ing.classifier.Classify(entry.Title),
	}
	return ing.store.UpsertItemAndAnnotations(ctx, annotated)
}

// Retag re-runs the current rule tables over every stored item. Tags stay
// monotonically additive; signals are replaced with the latest classification.
func (ing *Ingestor) Retag(ctx context.Context) (int, error) {
	items, err := ing.store.AllItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}

	retagged := 0
	for _, item := range items {
		annotated := domain.AnnotatedItem{
			Item:        item,
			Annotations: ing.classifier.Classify(item.Title),
		}
		if _, err := ing.store.UpsertItemAndAnnotations(ctx, annotated); err != nil {
			return retagged, fmt.Errorf("retag item %s: %w", item.ItemID, err)
		}
		retagged++
	}

	ing.logger.Info("retag pass done", "items", retagged)
	return retagged, nil
}

// Status returns a copy of the last run summary.
func (ing *Ingestor) Status() domain.RunSummary {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.status
}

func (ing *Ingestor) setStatus(summary domain.RunSummary) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.status = summary
}
