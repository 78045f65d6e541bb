// Package rules implements the deterministic headline classifier: regex-based
// topic/asset-class/geo tagging plus direction, urgency and editorial-mode
// classification. Matching is literal regular-expression search over the
// title; there is no tokenization or NLP.
package rules

import (
	"fmt"
	"regexp"
	"sort"

	"newsdash/internal/domain"
)

// Tables holds the three label tables the engine tags with.
type Tables struct {
	Topics       map[string][]string
	AssetClasses map[string][]string
	Geo          map[string][]string
}

// DefaultTables returns the built-in rule tables.
func DefaultTables() Tables {
	return Tables{
		Topics:       defaultTopicRules(),
		AssetClasses: defaultAssetClassRules(),
		Geo:          defaultGeoRules(),
	}
}

type labelRule struct {
	label    string
	patterns []*regexp.Regexp
}

type modeRule struct {
	mode     string
	patterns []*regexp.Regexp
}

// Engine classifies headlines against precompiled rule tables. It is
// immutable after construction and safe for concurrent use.
type Engine struct {
	topics  []labelRule
	assets  []labelRule
	geo     []labelRule
	neg     []*regexp.Regexp
	pos     []*regexp.Regexp
	urgHigh []*regexp.Regexp
	urgMed  []*regexp.Regexp
	modes   []modeRule
}

// NewEngine compiles the given tables together with the fixed cue lists.
func NewEngine(tables Tables) (*Engine, error) {
	e := &Engine{}

	var err error
	if e.topics, err = compileTable(tables.Topics); err != nil {
		return nil, fmt.Errorf("topic rules: %w", err)
	}
	if e.assets, err = compileTable(tables.AssetClasses); err != nil {
		return nil, fmt.Errorf("asset class rules: %w", err)
	}
	if e.geo, err = compileTable(tables.Geo); err != nil {
		return nil, fmt.Errorf("geo rules: %w", err)
	}
	if e.neg, err = compilePatterns(negCues); err != nil {
		return nil, fmt.Errorf("negative cues: %w", err)
	}
	if e.pos, err = compilePatterns(posCues); err != nil {
		return nil, fmt.Errorf("positive cues: %w", err)
	}
	if e.urgHigh, err = compilePatterns(urgencyHighCues); err != nil {
		return nil, fmt.Errorf("high urgency cues: %w", err)
	}
	if e.urgMed, err = compilePatterns(urgencyMedCues); err != nil {
		return nil, fmt.Errorf("medium urgency cues: %w", err)
	}
	for _, m := range modeCues {
		patterns, err := compilePatterns(m.Patterns)
		if err != nil {
			return nil, fmt.Errorf("mode %s cues: %w", m.Mode, err)
		}
		e.modes = append(e.modes, modeRule{mode: m.Mode, patterns: patterns})
	}

	return e, nil
}

// Classify maps a headline to its full annotation set.
func (e *Engine) Classify(title string) domain.Annotations {
	return domain.Annotations{
		Topics:       matchLabels(e.topics, title),
		AssetClasses: matchLabels(e.assets, title),
		GeoTags:      matchLabels(e.geo, title),
		Direction:    e.classifyDirection(title),
		Urgency:      e.classifyUrgency(title),
		Mode:         e.classifyMode(title),
	}
}

// TopicLabels returns the topic vocabulary the engine can currently emit.
func (e *Engine) TopicLabels() []string { return labels(e.topics) }

// AssetClassLabels returns the asset-class vocabulary.
func (e *Engine) AssetClassLabels() []string { return labels(e.assets) }

// GeoLabels returns the geography vocabulary.
func (e *Engine) GeoLabels() []string { return labels(e.geo) }

func (e *Engine) classifyDirection(title string) string {
	hasNeg := anyMatch(e.neg, title)
	hasPos := anyMatch(e.pos, title)
	switch {
	case hasNeg && hasPos:
		return domain.DirectionMixed
	case hasNeg:
		return domain.DirectionNeg
	case hasPos:
		return domain.DirectionPos
	default:
		return domain.DirectionNeutral
	}
}

// Urgency is a strict three-tier cascade: high cues shadow medium cues.
func (e *Engine) classifyUrgency(title string) string {
	if anyMatch(e.urgHigh, title) {
		return domain.UrgencyHigh
	}
	if anyMatch(e.urgMed, title) {
		return domain.UrgencyMed
	}
	return domain.UrgencyLow
}

func (e *Engine) classifyMode(title string) string {
	for _, m := range e.modes {
		if anyMatch(m.patterns, title) {
			return m.mode
		}
	}
	return domain.ModeUnknown
}

func compileTable(table map[string][]string) ([]labelRule, error) {
	rules := make([]labelRule, 0, len(table))
	for label, patterns := range table {
		compiled, err := compilePatterns(patterns)
		if err != nil {
			return nil, fmt.Errorf("label %s: %w", label, err)
		}
		rules = append(rules, labelRule{label: label, patterns: compiled})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].label < rules[j].label })
	return rules, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		expr, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, expr)
	}
	return compiled, nil
}

func matchLabels(rules []labelRule, title string) []string {
	var hits []string
	for _, r := range rules {
		if anyMatch(r.patterns, title) {
			hits = append(hits, r.label)
		}
	}
	return hits
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func labels(rules []labelRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.label)
	}
	return out
}
