package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "NEWSDASH_CONFIG"
	databasePathEnv  = "NEWSDASH_DB"
	fetchIntervalEnv = "NEWSDASH_FETCH_INTERVAL"
	fetchTimeoutEnv  = "NEWSDASH_FETCH_TIMEOUT"
	retentionDaysEnv = "NEWSDASH_RETENTION_DAYS"
	rulesDirEnv      = "NEWSDASH_RULES_DIR"
	archiveDirEnv    = "NEWSDASH_ARCHIVE_DIR"
	logLevelEnv      = "NEWSDASH_LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Retention RetentionConfig `yaml:"retention"`
	Rules     RulesConfig     `yaml:"rules"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sources   []SourceConfig  `yaml:"sources"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// FetchConfig controls the ingestion loop timing.
type FetchConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	TimeoutSeconds  int `yaml:"timeoutSeconds"`
}

// RetentionConfig bounds storage growth.
type RetentionConfig struct {
	Days int `yaml:"days"`
}

// RulesConfig points at the external rule-table directory.
type RulesConfig struct {
	Dir string `yaml:"dir"`
}

// ArchiveConfig points at the export artifact directory.
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SourceConfig describes a single feed endpoint. Enabled defaults to true
// when omitted.
type SourceConfig struct {
	SourceID  string `yaml:"sourceId"`
	Publisher string `yaml:"publisher"`
	FeedName  string `yaml:"feedName"`
	Category  string `yaml:"category"`
	URL       string `yaml:"url"`
	Enabled   *bool  `yaml:"enabled"`
}

// IsEnabled resolves the optional enabled flag.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := envInt(fetchIntervalEnv); v > 0 {
		c.Fetch.IntervalSeconds = v
	}
	if v := envInt(fetchTimeoutEnv); v > 0 {
		c.Fetch.TimeoutSeconds = v
	}
	if v := envInt(retentionDaysEnv); v > 0 {
		c.Retention.Days = v
	}

	if v := os.Getenv(rulesDirEnv); v != "" {
		c.Rules.Dir = v
	}
	if v := os.Getenv(archiveDirEnv); v != "" {
		c.Archive.Dir = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, ignoring", key, v)
		return 0
	}
	return n
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Fetch.IntervalSeconds > 0 {
		base.Fetch.IntervalSeconds = override.Fetch.IntervalSeconds
	}
	if override.Fetch.TimeoutSeconds > 0 {
		base.Fetch.TimeoutSeconds = override.Fetch.TimeoutSeconds
	}

	if override.Retention.Days > 0 {
		base.Retention.Days = override.Retention.Days
	}

	if override.Rules.Dir != "" {
		base.Rules = override.Rules
	}
	if override.Archive.Dir != "" {
		base.Archive = override.Archive
	}
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database:  DatabaseConfig{Path: "newsdash.sqlite3"},
		Fetch:     FetchConfig{IntervalSeconds: 15 * 60, TimeoutSeconds: 30},
		Retention: RetentionConfig{Days: 90},
		Rules:     RulesConfig{Dir: "config"},
		Archive:   ArchiveConfig{Dir: "archives"},
		Logging:   LoggingConfig{Level: "info"},
		Sources:   defaultSources(),
	}
}

func defaultSources() []SourceConfig {
	return []SourceConfig{
		// Category A: market news
		{SourceID: "reuters_markets", Publisher: "Reuters", FeedName: "Markets", Category: "A",
			URL: "https://www.reuters.com/markets/rss"},
		{SourceID: "bloomberg_markets", Publisher: "Bloomberg", FeedName: "Markets", Category: "A",
			URL: "https://www.bloomberg.com/feeds/markets.xml"},
		{SourceID: "ft_markets", Publisher: "Financial Times", FeedName: "Markets", Category: "A",
			URL: "https://www.ft.com/markets?format=rss"},
		{SourceID: "wsj_markets", Publisher: "WSJ", FeedName: "Markets", Category: "A",
			URL: "https://feeds.a.dj.com/rss/RSSMarketsMain.xml"},

		// Category B: interpretive / opinion
		{SourceID: "bloomberg_opinion", Publisher: "Bloomberg", FeedName: "Opinion", Category: "B",
			URL: "https://www.bloomberg.com/feeds/opinion.xml"},
		{SourceID: "ft_alphaville", Publisher: "Financial Times", FeedName: "Alphaville", Category: "B",
			URL: "https://www.ft.com/alphaville?format=rss"},
		{SourceID: "ft_opinion", Publisher: "Financial Times", FeedName: "Opinion", Category: "B",
			URL: "https://www.ft.com/opinion?format=rss"},
		{SourceID: "economist_finance", Publisher: "The Economist", FeedName: "Finance & Economics", Category: "B",
			URL: "https://www.economist.com/finance-and-economics/rss.xml"},

		// Category C: macro / policy anchors
		{SourceID: "nyfed_liberty", Publisher: "NY Fed", FeedName: "Liberty Street Economics", Category: "C",
			URL: "https://libertystreeteconomics.newyorkfed.org/feed/"},
		{SourceID: "stlouisfed_research", Publisher: "St. Louis Fed", FeedName: "Research/Publications", Category: "C",
			URL: "https://research.stlouisfed.org/publications/rss.xml"},
		{SourceID: "bis_all", Publisher: "BIS", FeedName: "BIS RSS", Category: "C",
			URL: "https://www.bis.org/rss/bis.xml"},
		{SourceID: "imf_blogs", Publisher: "IMF", FeedName: "Blogs", Category: "C",
			URL: "https://www.imf.org/en/Blogs/rss"},

		// Category D: practitioner / allocator commentary
		{SourceID: "aqr_insights", Publisher: "AQR", FeedName: "Insights", Category: "D",
			URL: "https://www.aqr.com/Insights/RSS"},
		{SourceID: "bridgewater_insights", Publisher: "Bridgewater", FeedName: "Research & Insights", Category: "D",
			URL: "https://www.bridgewater.com/research-and-insights/rss.xml"},
		{SourceID: "blackrock_insights", Publisher: "BlackRock", FeedName: "Investment Insights", Category: "D",
			URL: "https://www.blackrock.com/us/individual/insights/rss"},
	}
}
