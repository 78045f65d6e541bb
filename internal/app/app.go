package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsdash/internal/config"
	"newsdash/internal/domain"
	"newsdash/internal/infrastructure/feed"
	"newsdash/internal/infrastructure/scheduler"
	"newsdash/internal/infrastructure/storage"
	"newsdash/internal/logging"
	"newsdash/internal/rules"
	"newsdash/internal/usecase"
)

// Application wires config to the ingestion pipeline and owns its lifecycle.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.Store
	engine   *rules.Engine
	ingestor *usecase.Ingestor
	loop     *usecase.Loop
}

// New builds a runnable application instance. A store that cannot be opened
// or rule tables that do not compile are fatal: the loop must not start on a
// half-wired process.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tables := rules.LoadTables(cfg.Rules.Dir, baseLogger.With("component", "rules"))
	engine, err := rules.NewEngine(tables)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("compile rule tables: %w", err)
	}

	fetcher := feed.NewFetcher(
		time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second,
		baseLogger.With("component", "fetcher"))

	ingestor := usecase.NewIngestor(usecase.IngestorDeps{
		Fetcher:    fetcher,
		Store:      store,
		Classifier: engine,
		Logger:     baseLogger.With("component", "ingestor"),
	})

	driver := scheduler.NewInterval(time.Duration(cfg.Fetch.IntervalSeconds) * time.Second)
	loop := usecase.NewLoop(driver, ingestor)

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		engine:   engine,
		ingestor: ingestor,
		loop:     loop,
	}, nil
}

// Init creates the schema, seeds sources and the tag vocabulary, and runs the
// cooldown-guarded retention sweep so storage stays bounded across restarts.
func (a *Application) Init(ctx context.Context) error {
	if err := a.store.Init(ctx); err != nil {
		return err
	}

	sources := make([]domain.Source, 0, len(a.cfg.Sources))
	for _, s := range a.cfg.Sources {
		sources = append(sources, domain.Source{
			SourceID:  s.SourceID,
			Publisher: s.Publisher,
			FeedName:  s.FeedName,
			Category:  s.Category,
			FeedURL:   s.URL,
			Enabled:   s.IsEnabled(),
		})
	}
	if err := a.store.SeedSources(ctx, sources); err != nil {
		return err
	}

	if err := a.store.SeedVocabulary(ctx,
		a.engine.TopicLabels(), a.engine.AssetClassLabels(), a.engine.GeoLabels()); err != nil {
		return err
	}

	stats, ran, err := a.store.MaybeRunDailyCleanup(ctx, a.cfg.Retention.Days)
	if err != nil {
		return err
	}
	if ran {
		a.logger.Info("startup retention sweep",
			"items_deleted", stats.ItemsDeleted, "retention_days", a.cfg.Retention.Days)
	}

	return nil
}

// Run initializes the store and runs the ingestion loop until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	if err := a.loop.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.loop.Stop(context.Background()) }()

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// FetchOnce runs a single ingestion cycle.
func (a *Application) FetchOnce(ctx context.Context) (domain.RunSummary, error) {
	return a.ingestor.FetchOnce(ctx)
}

// FetchStatus returns the last run summary.
func (a *Application) FetchStatus() domain.RunSummary {
	return a.ingestor.Status()
}

// Cleanup runs the retention sweep with the given period, defaulting to the
// configured retention.
func (a *Application) Cleanup(ctx context.Context, days int) (domain.CleanupStats, error) {
	if days <= 0 {
		days = a.cfg.Retention.Days
	}
	return a.store.RunCleanup(ctx, days)
}

// Archive exports items older than days into the configured archive dir.
func (a *Application) Archive(ctx context.Context, days int) (string, int, error) {
	return a.store.ArchiveOldItems(ctx, days, a.cfg.Archive.Dir)
}

// SourceHealth returns the per-source fetch health snapshot.
func (a *Application) SourceHealth(ctx context.Context) ([]domain.SourceStatus, error) {
	return a.store.SourceStatuses(ctx)
}

// Retag re-applies the current rule tables to all stored items.
func (a *Application) Retag(ctx context.Context) (int, error) {
	return a.ingestor.Retag(ctx)
}

// Close releases held resources.
func (a *Application) Close() error {
	return a.store.Close()
}
