package storage

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"newsdash/internal/domain"
)

// ErrNothingToArchive is returned when the age threshold matches no items.
// Archival must never silently produce an empty artifact.
var ErrNothingToArchive = errors.New("nothing to archive")

// ArchiveRecord is one self-contained archived item with its denormalized
// source metadata, tags and signal.
type ArchiveRecord struct {
	ItemID       string   `json:"item_id"`
	SourceID     string   `json:"source_id"`
	Publisher    string   `json:"publisher"`
	FeedName     string   `json:"feed_name"`
	Category     string   `json:"category"`
	PublishedAt  string   `json:"published_at,omitempty"`
	FetchedAt    string   `json:"fetched_at"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	GUID         string   `json:"guid,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Direction    string   `json:"direction,omitempty"`
	Urgency      string   `json:"urgency,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Topics       []string `json:"topics"`
	AssetClasses []string `json:"asset_classes"`
	GeoTags      []string `json:"geo_tags"`
}

// ArchiveBatch is the on-disk artifact layout: a manifest plus the records.
type ArchiveBatch struct {
	ArchiveID   string          `json:"archive_id"`
	ArchivedAt  string          `json:"archived_at"`
	ArchiveDays int             `json:"archive_days"`
	TotalItems  int             `json:"total_items"`
	Items       []ArchiveRecord `json:"items"`
}

// ArchiveOldItems serializes every item older than days into a timestamped
// gzip JSON batch under dir and returns the artifact path and item count.
// It does not delete anything; deletion stays a separate caller-initiated
// step so a backup always precedes a purge.
func (s *Store) ArchiveOldItems(ctx context.Context, days int, dir string) (string, int, error) {
	cutoff := formatTime(s.now().AddDate(0, 0, -days))

	records, err := s.collectArchiveRecords(ctx, cutoff)
	if err != nil {
		return "", 0, err
	}
	if len(records) == 0 {
		return "", 0, fmt.Errorf("%w: no items older than %d days", ErrNothingToArchive, days)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create archive dir: %w", err)
	}

	stamp := s.now().UTC().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("news_archive_%s_%ddays.json.gz", stamp, days))

	batch := ArchiveBatch{
		ArchiveID:   uuid.NewString(),
		ArchivedAt:  formatTime(s.now()),
		ArchiveDays: days,
		TotalItems:  len(records),
		Items:       records,
	}
	if err := writeArchive(path, batch); err != nil {
		return "", 0, err
	}

	s.logger.Info("archive written", "path", path, "items", len(records))
	return path, len(records), nil
}

func (s *Store) collectArchiveRecords(ctx context.Context, cutoff string) ([]ArchiveRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.item_id, i.source_id, s.publisher, s.feed_name, s.category,
		        i.published_at, i.fetched_at, i.title, i.url, i.guid, i.summary,
		        sig.direction, sig.urgency, sig.mode
		 FROM items i
		 JOIN sources s ON s.source_id = i.source_id
		 LEFT JOIN signals sig ON sig.item_id = i.item_id
		 WHERE COALESCE(i.published_at, i.fetched_at) < ?
		 ORDER BY COALESCE(i.published_at, i.fetched_at) DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query archivable items: %w", err)
	}
	defer rows.Close()

	var records []ArchiveRecord
	for rows.Next() {
		var rec ArchiveRecord
		var published, guid, summary, direction, urgency, mode sql.NullString
		if err := rows.Scan(&rec.ItemID, &rec.SourceID, &rec.Publisher, &rec.FeedName,
			&rec.Category, &published, &rec.FetchedAt, &rec.Title, &rec.URL,
			&guid, &summary, &direction, &urgency, &mode); err != nil {
			return nil, fmt.Errorf("scan archivable item: %w", err)
		}
		rec.PublishedAt = published.String
		rec.GUID = guid.String
		rec.Summary = summary.String
		rec.Direction = direction.String
		rec.Urgency = urgency.String
		rec.Mode = mode.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archivable items: %w", err)
	}

	for i := range records {
		if err := s.attachTags(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) attachTags(ctx context.Context, rec *ArchiveRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT it.tag, t.tag_type
		 FROM item_tags it JOIN tags t ON t.tag = it.tag
		 WHERE it.item_id = ? ORDER BY it.tag`, rec.ItemID)
	if err != nil {
		return fmt.Errorf("query item tags: %w", err)
	}
	defer rows.Close()

	rec.Topics = []string{}
	rec.AssetClasses = []string{}
	rec.GeoTags = []string{}
	for rows.Next() {
		var tag, tagType string
		if err := rows.Scan(&tag, &tagType); err != nil {
			return fmt.Errorf("scan item tag: %w", err)
		}
		switch tagType {
		case domain.TagTypeTopic:
			rec.Topics = append(rec.Topics, tag)
		case domain.TagTypeAssetClass:
			rec.AssetClasses = append(rec.AssetClasses, tag)
		case domain.TagTypeGeo:
			rec.GeoTags = append(rec.GeoTags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate item tags: %w", err)
	}
	return nil
}

func writeArchive(path string, batch ArchiveBatch) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batch); err != nil {
		_ = gz.Close()
		_ = f.Close()
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}
	return nil
}
