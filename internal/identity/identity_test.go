package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemIDDeterministic(t *testing.T) {
	t.Parallel()

	first := ItemID("reuters_markets", "Stocks Rally", "https://example.com/a", "")
	second := ItemID("reuters_markets", "Stocks Rally", "https://example.com/a", "")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestItemIDInputSensitivity(t *testing.T) {
	t.Parallel()

	base := ItemID("src", "Stocks Rally", "https://example.com/a", "")

	assert.NotEqual(t, base, ItemID("other", "Stocks Rally", "https://example.com/a", ""))
	assert.NotEqual(t, base, ItemID("src", "Stocks Slump", "https://example.com/a", ""))
	assert.NotEqual(t, base, ItemID("src", "Stocks Rally", "https://example.com/b", ""))
	assert.NotEqual(t, base, ItemID("src", "Stocks Rally", "https://example.com/a", "guid-1"))
}

func TestItemIDGuidScopedBySource(t *testing.T) {
	t.Parallel()

	a := ItemID("src_a", "Title A", "https://example.com/a", "shared-guid")
	b := ItemID("src_b", "Title B", "https://example.com/b", "shared-guid")
	assert.NotEqual(t, a, b)

	// guid wins over title/url differences within one source
	c := ItemID("src_a", "Different Title", "https://example.com/other", "shared-guid")
	assert.Equal(t, a, c)
}

func TestItemIDPublisherSuffixEquivalence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		first  string
		second string
	}{
		{"reuters", "Fed Holds Rates Steady - Reuters", "Fed Holds Rates Steady"},
		{"bloomberg", "Oil Slides On Demand Fears - Bloomberg", "Oil Slides on Demand Fears"},
		{"whitespace", "Stocks   Rally \t Hard", "Stocks Rally Hard"},
		{"wsj", "Banks Brace For Losses - WSJ", "banks brace for losses"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := ItemID("src", tc.first, "https://example.com/x", "")
			b := ItemID("src", tc.second, "https://example.com/x", "")
			assert.Equal(t, a, b)
		})
	}
}

func TestItemIDSuffixOnlyStrippedAtEnd(t *testing.T) {
	t.Parallel()

	a := ItemID("src", "Reuters Poll Shows Optimism", "https://example.com/x", "")
	b := ItemID("src", "Poll Shows Optimism", "https://example.com/x", "")
	assert.NotEqual(t, a, b)
}
