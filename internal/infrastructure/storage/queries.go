package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsdash/internal/domain"
)

// Read-side queries consumed by the dashboard. They never mutate state and
// rely on the store's own isolation against the ingestion writer.

const recentItemsLimit = 500

// RecentItems returns items whose effective timestamp falls within lookback,
// newest first, optionally filtered by source category and/or topic tag.
func (s *Store) RecentItems(ctx context.Context, lookback time.Duration, category, topic string) ([]domain.Item, error) {
	cutoff := formatTime(s.now().Add(-lookback))

	q := sq.Select("i.item_id", "i.source_id", "i.published_at", "i.fetched_at",
		"i.title", "i.url", "i.guid", "i.summary").
		From("items i").
		Join("sources s ON s.source_id = i.source_id").
		Where(sq.GtOrEq{"COALESCE(i.published_at, i.fetched_at)": cutoff}).
		OrderBy("COALESCE(i.published_at, i.fetched_at) DESC").
		Limit(recentItemsLimit)
	if category != "" {
		q = q.Where(sq.Eq{"s.category": category})
	}
	if topic != "" {
		q = q.Join("item_tags it ON it.item_id = i.item_id").Where(sq.Eq{"it.tag": topic})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent items query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent items: %w", err)
	}
	return items, nil
}

// TopicCounts returns per-topic item counts within lookback, highest first.
func (s *Store) TopicCounts(ctx context.Context, lookback time.Duration, category string) (map[string]int, error) {
	cutoff := formatTime(s.now().Add(-lookback))

	q := sq.Select("it.tag", "COUNT(DISTINCT i.item_id)").
		From("item_tags it").
		Join("tags t ON t.tag = it.tag").
		Join("items i ON i.item_id = it.item_id").
		Join("sources s ON s.source_id = i.source_id").
		Where(sq.Eq{"t.tag_type": domain.TagTypeTopic}).
		Where(sq.GtOrEq{"COALESCE(i.published_at, i.fetched_at)": cutoff}).
		GroupBy("it.tag")
	if category != "" {
		q = q.Where(sq.Eq{"s.category": category})
	}

	return s.countQuery(ctx, q, "topic counts")
}

// DirectionCounts returns sentiment-direction counts within lookback,
// optionally restricted to items carrying the given topic tag.
func (s *Store) DirectionCounts(ctx context.Context, lookback time.Duration, topic string) (map[string]int, error) {
	cutoff := formatTime(s.now().Add(-lookback))

	q := sq.Select("sig.direction", "COUNT(*)").
		From("signals sig").
		Join("items i ON i.item_id = sig.item_id").
		Where(sq.GtOrEq{"COALESCE(i.published_at, i.fetched_at)": cutoff}).
		GroupBy("sig.direction")
	if topic != "" {
		q = q.Join("item_tags it ON it.item_id = i.item_id").Where(sq.Eq{"it.tag": topic})
	}

	return s.countQuery(ctx, q, "direction counts")
}

func (s *Store) countQuery(ctx context.Context, q sq.SelectBuilder, what string) (map[string]int, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", what, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return counts, nil
}

// SourceStatuses returns the health snapshot for every configured source.
func (s *Store) SourceStatuses(ctx context.Context) ([]domain.SourceStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, last_fetch_utc, last_ok_utc, last_error, last_http_status,
		        items_seen_last_fetch, items_added_last_fetch
		 FROM source_status ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("query source status: %w", err)
	}
	defer rows.Close()

	var statuses []domain.SourceStatus
	for rows.Next() {
		var st domain.SourceStatus
		var lastFetch, lastOK, lastErr sql.NullString
		var httpStatus sql.NullInt64
		if err := rows.Scan(&st.SourceID, &lastFetch, &lastOK, &lastErr, &httpStatus,
			&st.ItemsSeen, &st.ItemsAdded); err != nil {
			return nil, fmt.Errorf("scan source status: %w", err)
		}
		if lastFetch.Valid {
			if t, err := time.Parse(time.RFC3339, lastFetch.String); err == nil {
				st.LastFetch = t
			}
		}
		if lastOK.Valid {
			if t, err := time.Parse(time.RFC3339, lastOK.String); err == nil {
				st.LastOK = &t
			}
		}
		st.LastError = lastErr.String
		st.LastHTTPStatus = int(httpStatus.Int64)
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source status: %w", err)
	}
	return statuses, nil
}

// AllItems returns every stored item, used by the retag maintenance pass.
func (s *Store) AllItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, source_id, published_at, fetched_at, title, url, guid, summary
		 FROM items ORDER BY fetched_at`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func scanItem(rows *sql.Rows) (domain.Item, error) {
	var item domain.Item
	var published, guid, summary sql.NullString
	var fetched string
	if err := rows.Scan(&item.ItemID, &item.SourceID, &published, &fetched,
		&item.Title, &item.URL, &guid, &summary); err != nil {
		return domain.Item{}, fmt.Errorf("scan item: %w", err)
	}
	if published.Valid {
		if t, err := time.Parse(time.RFC3339, published.String); err == nil {
			item.PublishedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, fetched); err == nil {
		item.FetchedAt = t
	}
	item.GUID = guid.String
	item.Summary = summary.String
	return item, nil
}
