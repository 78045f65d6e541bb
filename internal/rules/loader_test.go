package rules

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadTablesMissingDirUsesDefaults(t *testing.T) {
	t.Parallel()

	tables := LoadTables(filepath.Join(t.TempDir(), "absent"), discardLogger())

	assert.Equal(t, defaultTopicRules(), tables.Topics)
	assert.Equal(t, defaultAssetClassRules(), tables.AssetClasses)
	assert.Equal(t, defaultGeoRules(), tables.Geo)
}

func TestLoadTablesExternalTableReplacesDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleFile(t, dir, "topics.json", `{"lithium": ["\\blithium\\b", "\\bbattery\\b"]}`)

	tables := LoadTables(dir, discardLogger())

	assert.Equal(t, map[string][]string{"lithium": {`\blithium\b`, `\bbattery\b`}}, tables.Topics)
	// other tables still fall back per domain
	assert.Equal(t, defaultGeoRules(), tables.Geo)
}

func TestLoadTableFileRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleFile(t, dir, "topics.json",
		`{"good": ["\\bgood\\b"], "not_a_list": "oops", "mixed": ["ok", 7], "bad_regex": ["("]}`)

	result := loadTableFile(filepath.Join(dir, "topics.json"))

	assert.True(t, result.External)
	assert.Equal(t, map[string][]string{"good": {`\bgood\b`}}, result.Table)
	assert.ElementsMatch(t, []string{"not_a_list", "mixed", "bad_regex"}, result.Rejected)
}

func TestLoadTableFileAllInvalidFallsBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleFile(t, dir, "geo.json", `{"broken": "not a list"}`)

	tables := LoadTables(dir, discardLogger())
	assert.Equal(t, defaultGeoRules(), tables.Geo)
}

func TestLoadTableFileMalformedJSONFallsBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleFile(t, dir, "asset_classes.json", `{not json`)

	tables := LoadTables(dir, discardLogger())
	assert.Equal(t, defaultAssetClassRules(), tables.AssetClasses)
}

func TestExternalTableDrivesEngine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleFile(t, dir, "asset_classes.json", `{"crypto_assets": ["\\bcrypto\\b", "\\bbitcoin\\b"]}`)

	e, err := NewEngine(LoadTables(dir, discardLogger()))
	require.NoError(t, err)

	ann := e.Classify("Bitcoin Hits New Record")
	assert.Equal(t, []string{"crypto_assets"}, ann.AssetClasses)
}
