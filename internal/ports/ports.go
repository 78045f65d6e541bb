package ports

import (
	"context"
	"time"

	"newsdash/internal/domain"
)

// FeedFetcher performs one bounded-retry fetch of a feed URL.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (domain.FetchResult, error)
}

// Classifier maps a headline to its rule-derived annotations.
type Classifier interface {
	Classify(title string) domain.Annotations
}

// ItemStore is the persistence surface the ingestion orchestrator drives.
type ItemStore interface {
	EnabledSources(ctx context.Context) ([]domain.Source, error)
	// UpsertItemAndAnnotations persists the item, replaces its signal and
	// additively tags it in one transaction; reports whether the item was new.
	UpsertItemAndAnnotations(ctx context.Context, item domain.AnnotatedItem) (bool, error)
	UpdateSourceStatus(ctx context.Context, status domain.SourceStatus) error
	AllItems(ctx context.Context) ([]domain.Item, error)
}

// Scheduler controls when ingestion cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
