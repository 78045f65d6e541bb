package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
)

// Rule table files looked up inside the rules directory.
const (
	topicsFile       = "topics.json"
	assetClassesFile = "asset_classes.json"
	geoFile          = "geo.json"
)

// TableResult is the tagged outcome of loading one rule table: either the
// validated external table or the built-in fallback. A broken file is never
// partially merged with defaults.
type TableResult struct {
	Table    map[string][]string
	External bool
	Rejected []string
}

// LoadTables reads the three rule tables from dir, falling back to the
// built-in defaults per table when a file is missing, unreadable or yields no
// valid entries. Individual entries that are not label-to-string-list
// mappings, or whose patterns do not compile, are rejected with a warning.
func LoadTables(dir string, logger *slog.Logger) Tables {
	return Tables{
		Topics:       loadTable(filepath.Join(dir, topicsFile), defaultTopicRules(), logger),
		AssetClasses: loadTable(filepath.Join(dir, assetClassesFile), defaultAssetClassRules(), logger),
		Geo:          loadTable(filepath.Join(dir, geoFile), defaultGeoRules(), logger),
	}
}

func loadTable(path string, fallback map[string][]string, logger *slog.Logger) map[string][]string {
	result := loadTableFile(path)
	for _, label := range result.Rejected {
		logger.Warn("rejected rule table entry", "file", filepath.Base(path), "label", label)
	}
	if !result.External {
		logger.Debug("using built-in rule table", "file", filepath.Base(path))
		return fallback
	}
	logger.Info("loaded external rule table",
		"file", filepath.Base(path), "labels", len(result.Table))
	return result.Table
}

func loadTableFile(path string) TableResult {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return TableResult{Rejected: []string{fmt.Sprintf("unreadable: %v", err)}}
		}
		return TableResult{}
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TableResult{Rejected: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}

	validated := make(map[string][]string)
	var rejected []string
	for label, value := range parsed {
		patterns, ok := asPatternList(value)
		if !ok {
			rejected = append(rejected, label)
			continue
		}
		validated[label] = patterns
	}

	if len(validated) == 0 {
		return TableResult{Rejected: rejected}
	}
	return TableResult{Table: validated, External: true, Rejected: rejected}
}

// asPatternList accepts only a list with all-string, compilable entries.
func asPatternList(value any) ([]string, bool) {
	list, ok := value.([]any)
	if !ok {
		return nil, false
	}
	patterns := make([]string, 0, len(list))
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return nil, false
		}
		if _, err := regexp.Compile("(?i)" + s); err != nil {
			return nil, false
		}
		patterns = append(patterns, s)
	}
	return patterns, true
}
