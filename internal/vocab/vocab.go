// Package vocab is the versioned partner-rule and known-vocabulary store.
// Runs read an immutable snapshot pinned to a version; corrections from
// the feedback-learning path append new rows and bump the version, so a
// completed run's interpretation never changes retroactively.
package vocab

import (
	"strings"
)

// Partner is a known partner identity with its accepted aliases.
type Partner struct {
	Name    string   `yaml:"name" json:"name"`
	Code    string   `yaml:"code,omitempty" json:"code,omitempty"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Metric maps a canonical metric name to the raw names partners use.
type Metric struct {
	Canonical string   `yaml:"canonical" json:"canonical"`
	Aliases   []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// PartnerRule forces a source_column → canonical_field pairing for one
// partner, short-circuiting the generic mapping ladder.
type PartnerRule struct {
	PartnerName    string `yaml:"partner_name" json:"partner_name"`
	SourceColumn   string `yaml:"source_column" json:"source_column"`
	CanonicalField string `yaml:"canonical_field" json:"canonical_field"`
}

// Snapshot is one immutable version of the vocabulary. All lookups are
// case/whitespace-normalized.
type Snapshot struct {
	Version  int64
	partners map[string]string   // normalized alias -> canonical partner name
	metrics  map[string]string   // normalized alias -> canonical metric name
	rules    map[string][]PartnerRule // normalized partner name -> rules

	Partners []Partner
	Metrics  []Metric
	Rules    []PartnerRule
}

// NewSnapshot indexes the given vocabulary at a version.
func NewSnapshot(version int64, partners []Partner, metrics []Metric, rules []PartnerRule) *Snapshot {
	s := &Snapshot{
		Version:  version,
		Partners: partners,
		Metrics:  metrics,
		Rules:    rules,
		partners: make(map[string]string),
		metrics:  make(map[string]string),
		rules:    make(map[string][]PartnerRule),
	}
	for _, p := range partners {
		s.partners[normalize(p.Name)] = p.Name
		for _, a := range p.Aliases {
			s.partners[normalize(a)] = p.Name
		}
	}
	for _, m := range metrics {
		s.metrics[normalize(m.Canonical)] = m.Canonical
		for _, a := range m.Aliases {
			s.metrics[normalize(a)] = m.Canonical
		}
	}
	for _, r := range rules {
		key := normalize(r.PartnerName)
		s.rules[key] = append(s.rules[key], r)
	}
	return s
}

// ResolvePartner returns the canonical partner name for a raw name.
func (s *Snapshot) ResolvePartner(raw string) (string, bool) {
	name, ok := s.partners[normalize(raw)]
	return name, ok
}

// ResolveMetric returns the canonical metric name for a raw column name.
func (s *Snapshot) ResolveMetric(raw string) (string, bool) {
	name, ok := s.metrics[normalize(raw)]
	return name, ok
}

// RulesFor returns the forced column mappings for a partner.
func (s *Snapshot) RulesFor(partner string) []PartnerRule {
	return s.rules[normalize(partner)]
}

// KnownMetricColumns returns, for each column name, its canonical metric
// name when the column is a known metric. Preserves column order.
func (s *Snapshot) KnownMetricColumns(columns []string) map[string]string {
	out := make(map[string]string)
	for _, col := range columns {
		if canonical, ok := s.ResolveMetric(col); ok {
			out[col] = canonical
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
