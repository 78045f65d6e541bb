package feed

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"newsdash/internal/domain"
	"newsdash/internal/identity"
)

const summaryMaxRunes = 1000

// resolveEntries converts parsed feed items into typed entries with defined
// optional-field fallbacks, resolved once before any further processing.
func resolveEntries(parsed *gofeed.Feed) []domain.Entry {
	entries := make([]domain.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, domain.Entry{
			Title:     identity.NormalizeWhitespace(item.Title),
			URL:       strings.TrimSpace(item.Link),
			GUID:      resolveGUID(item),
			Summary:   cleanSummary(item.Description),
			Published: resolvePublished(item),
		})
	}
	return entries
}

func resolveGUID(item *gofeed.Item) string {
	return strings.TrimSpace(item.GUID)
}

// resolvePublished picks the entry timestamp in a fixed order: pre-parsed
// published, pre-parsed updated, then the raw published/updated strings.
func resolvePublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if t, ok := parseTimeString(raw); ok {
			return &t
		}
	}
	return nil
}

var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
}

func parseTimeString(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// cleanSummary strips markup from the feed description, normalizes
// whitespace and truncates to a storage-friendly length.
func cleanSummary(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	text := raw
	if strings.Contains(raw, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			text = doc.Text()
		}
	}

	text = identity.NormalizeWhitespace(text)
	runes := []rune(text)
	if len(runes) > summaryMaxRunes {
		text = string(runes[:summaryMaxRunes])
	}
	return text
}
