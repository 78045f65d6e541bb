// Package storage owns the relational schema and the transactional
// upsert-and-annotate contract, source-health records, retention and
// archival.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"newsdash/internal/domain"
	"newsdash/internal/ports"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sources (
  source_id TEXT PRIMARY KEY,
  publisher TEXT NOT NULL,
  feed_name TEXT NOT NULL,
  category TEXT NOT NULL,
  rss_url TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS items (
  item_id TEXT PRIMARY KEY,
  source_id TEXT NOT NULL,
  published_at TEXT,
  fetched_at TEXT NOT NULL,
  title TEXT NOT NULL,
  url TEXT NOT NULL,
  guid TEXT,
  summary TEXT,
  raw_json TEXT,
  FOREIGN KEY (source_id) REFERENCES sources(source_id)
);

CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source_id);

CREATE TABLE IF NOT EXISTS tags (
  tag TEXT PRIMARY KEY,
  tag_type TEXT NOT NULL,
  description TEXT
);

CREATE TABLE IF NOT EXISTS item_tags (
  item_id TEXT NOT NULL,
  tag TEXT NOT NULL,
  confidence REAL NOT NULL DEFAULT 1.0,
  tagger TEXT NOT NULL DEFAULT 'rules_v1',
  PRIMARY KEY (item_id, tag),
  FOREIGN KEY (item_id) REFERENCES items(item_id),
  FOREIGN KEY (tag) REFERENCES tags(tag)
);

CREATE TABLE IF NOT EXISTS signals (
  item_id TEXT PRIMARY KEY,
  direction TEXT NOT NULL,
  urgency TEXT NOT NULL,
  mode TEXT NOT NULL,
  notes TEXT,
  scorer TEXT NOT NULL DEFAULT 'rules_v1',
  FOREIGN KEY (item_id) REFERENCES items(item_id)
);

CREATE TABLE IF NOT EXISTS source_status (
  source_id TEXT PRIMARY KEY,
  last_fetch_utc TEXT,
  last_ok_utc TEXT,
  last_error TEXT,
  last_http_status INTEGER,
  items_seen_last_fetch INTEGER NOT NULL DEFAULT 0,
  items_added_last_fetch INTEGER NOT NULL DEFAULT 0,
  FOREIGN KEY (source_id) REFERENCES sources(source_id)
);

CREATE TABLE IF NOT EXISTS maintenance_state (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`

const (
	tagConfidence   = 1.0
	taggerID        = "rules_v1"
	scorerID        = "rules_v1"
	cleanupStateKey = "last_cleanup"
	cleanupCooldown = 24 * time.Hour
)

// Store persists items, annotations and health records in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.ItemStore = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path with WAL mode
// and foreign keys enabled. A single ingestion process is expected to own
// writes, so the pool is capped at one connection.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=30000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SeedSources inserts or replaces the configured source rows. Sources are
// config, not content; retention never touches them.
func (s *Store) SeedSources(ctx context.Context, sources []domain.Source) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, src := range sources {
		enabled := 0
		if src.Enabled {
			enabled = 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO sources(source_id,publisher,feed_name,category,rss_url,enabled)
			 VALUES(?,?,?,?,?,?)`,
			src.SourceID, src.Publisher, src.FeedName, src.Category, src.FeedURL, enabled)
		if err != nil {
			return fmt.Errorf("seed source %s: %w", src.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// SeedVocabulary idempotently inserts tag rows for every label the rule
// engine can currently emit. The vocabulary stays open: labels referenced
// later by external rule tables are added on first hit.
func (s *Store) SeedVocabulary(ctx context.Context, topics, assetClasses, geo []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vocabulary seed: %w", err)
	}
	defer tx.Rollback()

	seed := func(labels []string, tagType string) error {
		for _, label := range labels {
			if err := ensureTag(ctx, tx, label, tagType); err != nil {
				return err
			}
		}
		return nil
	}
	if err := seed(topics, domain.TagTypeTopic); err != nil {
		return err
	}
	if err := seed(assetClasses, domain.TagTypeAssetClass); err != nil {
		return err
	}
	if err := seed(geo, domain.TagTypeGeo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vocabulary seed: %w", err)
	}
	return nil
}

// EnabledSources lists the sources the orchestrator should fetch.
func (s *Store) EnabledSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, publisher, feed_name, category, rss_url, enabled
		 FROM sources WHERE enabled=1 ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var src domain.Source
		var enabled int
		if err := rows.Scan(&src.SourceID, &src.Publisher, &src.FeedName,
			&src.Category, &src.FeedURL, &enabled); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.Enabled = enabled == 1
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// UpsertItemAndAnnotations runs the full upsert contract in one transaction:
// the item row is created once per identity and content-refreshed afterwards
// (fetched_at keeps its first-seen value), the signal row is replaced
// wholesale, and tag joins are added but never removed.
func (s *Store) UpsertItemAndAnnotations(ctx context.Context, ai domain.AnnotatedItem) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	item := ai.Item
	var created bool
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE item_id=?`, item.ItemID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO items(item_id,source_id,published_at,fetched_at,title,url,guid,summary,raw_json)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			item.ItemID, item.SourceID, nullableTime(item.PublishedAt), formatTime(item.FetchedAt),
			item.Title, item.URL, nullable(item.GUID), nullable(item.Summary), nullable(item.RawJSON))
		if err != nil {
			return false, fmt.Errorf("insert item: %w", err)
		}
		created = true
	case err != nil:
		return false, fmt.Errorf("check item: %w", err)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE items SET published_at=?, title=?, url=?, guid=?, summary=?, raw_json=?
			 WHERE item_id=?`,
			nullableTime(item.PublishedAt), item.Title, item.URL,
			nullable(item.GUID), nullable(item.Summary), nullable(item.RawJSON), item.ItemID)
		if err != nil {
			return false, fmt.Errorf("refresh item: %w", err)
		}
	}

	ann := ai.Annotations
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO signals(item_id,direction,urgency,mode,notes,scorer)
		 VALUES(?,?,?,?,?,?)`,
		item.ItemID, ann.Direction, ann.Urgency, ann.Mode, nil, scorerID)
	if err != nil {
		return false, fmt.Errorf("replace signal: %w", err)
	}

	tagSets := []struct {
		labels  []string
		tagType string
	}{
		{ann.Topics, domain.TagTypeTopic},
		{ann.AssetClasses, domain.TagTypeAssetClass},
		{ann.GeoTags, domain.TagTypeGeo},
	}
	for _, set := range tagSets {
		for _, tag := range set.labels {
			if err := ensureTag(ctx, tx, tag, set.tagType); err != nil {
				return false, err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO item_tags(item_id,tag,confidence,tagger) VALUES(?,?,?,?)`,
				item.ItemID, tag, tagConfidence, taggerID)
			if err != nil {
				return false, fmt.Errorf("tag item with %s: %w", tag, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return created, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureTag(ctx context.Context, tx execer, tag, tagType string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags(tag, tag_type, description) VALUES(?,?,?)`,
		tag, tagType, fmt.Sprintf("Auto %s tag: %s", tagType, tag))
	if err != nil {
		return fmt.Errorf("ensure tag %s: %w", tag, err)
	}
	return nil
}

// UpdateSourceStatus overwrites the health record for one source.
func (s *Store) UpdateSourceStatus(ctx context.Context, st domain.SourceStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO source_status
		 (source_id, last_fetch_utc, last_ok_utc, last_error, last_http_status,
		  items_seen_last_fetch, items_added_last_fetch)
		 VALUES(?,?,?,?,?,?,?)`,
		st.SourceID, formatTime(st.LastFetch), nullableTime(st.LastOK),
		nullable(st.LastError), nullableInt(st.LastHTTPStatus), st.ItemsSeen, st.ItemsAdded)
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	return nil
}

// MaintenanceState reads a maintenance key; empty string when absent.
func (s *Store) MaintenanceState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM maintenance_state WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read maintenance state %s: %w", key, err)
	}
	return value, nil
}

// SetMaintenanceState writes a maintenance key.
func (s *Store) SetMaintenanceState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO maintenance_state(key, value, updated_at) VALUES(?,?,?)`,
		key, value, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("set maintenance state %s: %w", key, err)
	}
	return nil
}

// RunCleanup deletes items older than retentionDays (published_at when
// present, else fetched_at) together with their tag joins and signals,
// children before parent, in one transaction. Zero matches is a no-op.
func (s *Store) RunCleanup(ctx context.Context, retentionDays int) (domain.CleanupStats, error) {
	cutoff := formatTime(s.now().AddDate(0, 0, -retentionDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CleanupStats{}, fmt.Errorf("begin cleanup: %w", err)
	}
	defer tx.Rollback()

	const oldItems = `SELECT item_id FROM items WHERE COALESCE(published_at, fetched_at) < ?`

	var stats domain.CleanupStats
	steps := []struct {
		query string
		count *int64
	}{
		{`DELETE FROM item_tags WHERE item_id IN (` + oldItems + `)`, &stats.TagsDeleted},
		{`DELETE FROM signals WHERE item_id IN (` + oldItems + `)`, &stats.SignalsDeleted},
		{`DELETE FROM items WHERE COALESCE(published_at, fetched_at) < ?`, &stats.ItemsDeleted},
	}
	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query, cutoff)
		if err != nil {
			return domain.CleanupStats{}, fmt.Errorf("cleanup delete: %w", err)
		}
		if *step.count, err = res.RowsAffected(); err != nil {
			return domain.CleanupStats{}, fmt.Errorf("cleanup rows affected: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.CleanupStats{}, fmt.Errorf("commit cleanup: %w", err)
	}

	s.logger.Info("retention sweep done",
		"items", stats.ItemsDeleted, "tags", stats.TagsDeleted, "signals", stats.SignalsDeleted)
	return stats, nil
}

// MaybeRunDailyCleanup runs the retention sweep unless one completed within
// the last 24 hours, which makes it safe to invoke on every process start.
// The bool reports whether a sweep actually ran.
func (s *Store) MaybeRunDailyCleanup(ctx context.Context, retentionDays int) (domain.CleanupStats, bool, error) {
	last, err := s.MaintenanceState(ctx, cleanupStateKey)
	if err != nil {
		return domain.CleanupStats{}, false, err
	}
	if last != "" {
		if t, err := time.Parse(time.RFC3339, last); err == nil {
			if s.now().Sub(t) < cleanupCooldown {
				return domain.CleanupStats{}, false, nil
			}
		}
		// unparseable timestamp: proceed with the sweep
	}

	stats, err := s.RunCleanup(ctx, retentionDays)
	if err != nil {
		return domain.CleanupStats{}, false, err
	}
	if err := s.SetMaintenanceState(ctx, cleanupStateKey, formatTime(s.now())); err != nil {
		return domain.CleanupStats{}, false, err
	}
	return stats, true, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
