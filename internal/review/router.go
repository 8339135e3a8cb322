package review

import (
	"fmt"
	"time"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// Config holds the escalation thresholds.
type Config struct {
	ConfidenceThreshold float64 // escalate strictly below this
	MaxErrorRate        float64
	MaxWarningRate      float64
	ItemTTL             time.Duration
}

func (c Config) threshold() float64 {
	if c.ConfidenceThreshold <= 0 {
		return 0.6
	}
	return c.ConfidenceThreshold
}

func (c Config) maxErrorRate() float64 {
	if c.MaxErrorRate <= 0 {
		return 0.05
	}
	return c.MaxErrorRate
}

func (c Config) maxWarningRate() float64 {
	if c.MaxWarningRate <= 0 {
		return 0.20
	}
	return c.MaxWarningRate
}

func (c Config) ttl() time.Duration {
	if c.ItemTTL <= 0 {
		return 72 * time.Hour
	}
	return c.ItemTTL
}

// Input is everything the router inspects for one source.
type Input struct {
	RunID     string
	SourceRef string
	SchemaMap *model.SchemaMap
	Overall   float64
	Rates     Rates
	// PartnerKnown is false when the resolved partner name is absent from
	// the vocabulary.
	PartnerKnown bool
	PartnerName  string
	// PriorColumns is the column set from the last successful run of this
	// source; nil means this source has never been seen.
	PriorColumns []string
	// Samples returns observed values for a source column, for reviewer
	// context. May be nil.
	Samples func(column string) []string
	Now     time.Time
}

// Route evaluates every escalation trigger and returns the resulting
// review items. An empty slice means the source can be auto-accepted.
func Route(in Input, cfg Config) []model.ReviewItem {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	threshold := cfg.threshold()

	var items []model.ReviewItem
	add := func(reason model.TriggerReason, desc string, mutate func(*model.ReviewItem)) {
		item := model.ReviewItem{
			ReviewID:      model.NewReviewID(),
			RunID:         in.RunID,
			SourceRef:     in.SourceRef,
			TriggerReason: reason,
			Description:   desc,
			CreatedAt:     now,
			ExpiresAt:     now.Add(cfg.ttl()),
			Status:        model.ReviewPending,
		}
		if mutate != nil {
			mutate(&item)
		}
		items = append(items, item)
	}

	required := requiredSet(model.DefaultSchema())

	// Per-field: weak or flagged mappings of required fields.
	for i := range in.SchemaMap.Mappings {
		fm := &in.SchemaMap.Mappings[i]
		if !required[fm.CanonicalField] {
			continue
		}
		switch {
		case fm.Confidence < threshold:
			add(model.TriggerLowFieldConfidence,
				fmt.Sprintf("mapping for %q resolved at confidence %.2f, below %.2f", fm.CanonicalField, fm.Confidence, threshold),
				func(it *model.ReviewItem) {
					it.AffectedField = fm.CanonicalField
					it.Confidence = ptr(fm.Confidence)
					it.Threshold = ptr(threshold)
					it.ProposedMapping = fm
					it.Alternatives = fm.Alternatives
					it.SampleValues = samples(in, fm.SourceColumn)
				})
		case fm.ReviewRequired:
			add(model.TriggerLowFieldConfidence,
				fmt.Sprintf("mapping for %q flagged: %s", fm.CanonicalField, fm.ReviewReason),
				func(it *model.ReviewItem) {
					it.AffectedField = fm.CanonicalField
					it.Confidence = ptr(fm.Confidence)
					it.ProposedMapping = fm
					it.Alternatives = fm.Alternatives
					it.SampleValues = samples(in, fm.SourceColumn)
				})
		}
	}

	// Required fields nothing could map.
	for _, uf := range in.SchemaMap.UnmappedFields {
		if !uf.Required {
			continue
		}
		add(model.TriggerUnmappableField,
			fmt.Sprintf("required field %q has no viable source column: %s", uf.Name, uf.Reason),
			func(it *model.ReviewItem) { it.AffectedField = uf.Name })
	}

	if !in.PartnerKnown {
		add(model.TriggerUnknownPartner,
			fmt.Sprintf("partner %q is not in the vocabulary; mappings cannot be cross-checked against partner rules", in.PartnerName),
			func(it *model.ReviewItem) { it.AffectedField = model.FieldPartnerName })
	}

	if in.PriorColumns == nil {
		add(model.TriggerFirstRun, "first run for this source; no prior column set to compare against", nil)
	} else if added, removed := columnDrift(in.PriorColumns, in.SchemaMap.SourceColumns); len(added)+len(removed) > 0 {
		add(model.TriggerColumnSetChanged,
			fmt.Sprintf("column set changed since last run: added %v, removed %v", added, removed), nil)
	}

	if in.Rates.ErrorRate > cfg.maxErrorRate() {
		add(model.TriggerHighErrorRate,
			fmt.Sprintf("error rate %.1f%% exceeds %.1f%%", 100*in.Rates.ErrorRate, 100*cfg.maxErrorRate()), nil)
	}
	if in.Rates.WarningRate > cfg.maxWarningRate() {
		add(model.TriggerHighWarningRate,
			fmt.Sprintf("warning rate %.1f%% exceeds %.1f%%", 100*in.Rates.WarningRate, 100*cfg.maxWarningRate()), nil)
	}

	if in.Overall < threshold {
		add(model.TriggerLowOverallConfidence,
			fmt.Sprintf("overall confidence %.2f is below %.2f", in.Overall, threshold),
			func(it *model.ReviewItem) {
				it.Confidence = ptr(in.Overall)
				it.Threshold = ptr(threshold)
			})
	}

	return items
}

func requiredSet(reg *model.SchemaRegistry) map[string]bool {
	out := make(map[string]bool)
	for _, f := range reg.Required() {
		out[f.Name] = true
	}
	return out
}

func samples(in Input, column string) []string {
	if in.Samples == nil || column == "" {
		return nil
	}
	return in.Samples(column)
}

// columnDrift diffs two column sets order-insensitively.
func columnDrift(prior, current []string) (added, removed []string) {
	p := make(map[string]bool, len(prior))
	for _, c := range prior {
		p[c] = true
	}
	cur := make(map[string]bool, len(current))
	for _, c := range current {
		cur[c] = true
		if !p[c] {
			added = append(added, c)
		}
	}
	for _, c := range prior {
		if !cur[c] {
			removed = append(removed, c)
		}
	}
	return added, removed
}

func ptr(f float64) *float64 { return &f }
