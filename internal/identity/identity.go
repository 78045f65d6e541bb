// Package identity derives stable item identifiers for deduplication.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var wsExpr = regexp.MustCompile(`\s+`)

// Feeds sometimes append the publisher name to titles inconsistently between
// fetches; strip the known variants before hashing so both forms collide.
var publisherSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`\s+-\s+reuters$`),
	regexp.MustCompile(`\s+-\s+bloomberg$`),
	regexp.MustCompile(`\s+-\s+financial times$`),
	regexp.MustCompile(`\s+-\s+the economist$`),
	regexp.MustCompile(`\s+-\s+wsj$`),
}

// NormalizeWhitespace collapses internal whitespace runs into single spaces
// and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(wsExpr.ReplaceAllString(s, " "))
}

func normalizeTitle(title string) string {
	t := NormalizeWhitespace(strings.ToLower(title))
	for _, expr := range publisherSuffixes {
		t = expr.ReplaceAllString(t, "")
	}
	return t
}

// ItemID returns the stable identifier for an entry. When the feed supplies a
// guid the id hashes sourceID|guid (guids are not guaranteed globally unique,
// so they are scoped by source); otherwise it hashes the source id, the
// normalized title and the url. Empty titles and urls must be rejected by the
// caller before reaching this point.
func ItemID(sourceID, title, url, guid string) string {
	var base string
	if guid != "" {
		base = sourceID + "|" + guid
	} else {
		base = sourceID + "|" + normalizeTitle(title) + "|" + url
	}
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
