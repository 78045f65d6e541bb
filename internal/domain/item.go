package domain

import "time"

// Entry is one raw syndicated record resolved from a feed, before identity
// computation and classification.
type Entry struct {
	Title     string
	URL       string
	GUID      string
	Summary   string
	Published *time.Time
}

// FetchResult is the structured outcome of fetching a single feed.
// Warning carries a non-fatal parse note (entries were salvaged).
type FetchResult struct {
	Entries    []Entry
	HTTPStatus int
	Warning    string
}

// Source is a configured feed endpoint with publisher/category metadata.
type Source struct {
	SourceID  string
	Publisher string
	FeedName  string
	Category  string
	FeedURL   string
	Enabled   bool
}

// Item is a persisted, deduplicated entry with a stable identifier.
// FetchedAt is the first-seen ingestion time and survives content refreshes.
type Item struct {
	ItemID      string
	SourceID    string
	PublishedAt *time.Time
	FetchedAt   time.Time
	Title       string
	URL         string
	GUID        string
	Summary     string
	RawJSON     string
}

// Direction values produced by the rule engine.
const (
	DirectionPos     = "pos"
	DirectionNeg     = "neg"
	DirectionNeutral = "neutral"
	DirectionMixed   = "mixed"
)

// Urgency values produced by the rule engine.
const (
	UrgencyLow  = "low"
	UrgencyMed  = "med"
	UrgencyHigh = "high"
)

// ModeUnknown is emitted when no editorial-mode rule matches.
const ModeUnknown = "unknown"

// Tag types in the label vocabulary.
const (
	TagTypeTopic      = "topic"
	TagTypeAssetClass = "asset_class"
	TagTypeGeo        = "geo"
)

// Annotations are the rule-derived labels for a single headline. The three
// tag slices are sets (multiple labels may match); direction, urgency and
// mode are single-valued.
type Annotations struct {
	Topics       []string
	AssetClasses []string
	GeoTags      []string
	Direction    string
	Urgency      string
	Mode         string
}

// AnnotatedItem bundles an item with its rule outputs for persistence.
type AnnotatedItem struct {
	Item        Item
	Annotations Annotations
}

// SourceStatus is the per-source health record, overwritten on every fetch.
type SourceStatus struct {
	SourceID       string
	LastFetch      time.Time
	LastOK         *time.Time
	LastError      string
	LastHTTPStatus int
	ItemsSeen      int
	ItemsAdded     int
}

// RunSummary describes the most recent ingestion cycle. Only the last error
// encountered is kept, not a per-source list.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	ItemsAdded int
	LastError  string
}

// CleanupStats reports rows removed by a retention sweep.
type CleanupStats struct {
	ItemsDeleted   int64
	TagsDeleted    int64
	SignalsDeleted int64
}
