package mapping

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// adjust applies the additive and subtractive confidence corrections
// after strategy selection, then clamps to [0,1].
func (e *Engine) adjust(m *model.FieldMapping, field model.CanonicalField, rc *resolveCtx) {
	if m.SourceColumn == "" {
		m.Confidence = model.Clamp(m.Confidence)
		return
	}
	col := rc.byName(m.SourceColumn)
	if col == nil {
		m.Confidence = model.Clamp(m.Confidence)
		return
	}

	note := func(delta float64, why string) {
		m.Confidence += delta
		m.Notes = append(m.Notes, fmt.Sprintf("%+.2f %s", delta, why))
	}

	if col.profile.InferredType == field.Type {
		note(+0.10, "data type matches expected type")
	}
	if samplesParse(col.profile.SampleValues, field.Type) {
		note(+0.05, "sampled values parse cleanly")
	}
	if col.profile.NullRate > e.cfg.HighNullRate {
		note(-0.15, fmt.Sprintf("null rate %.0f%% above %.0f%%",
			col.profile.NullRate*100, e.cfg.HighNullRate*100))
	}
	if rc.isGeneric(col.name) {
		note(-0.10, "column name is generic")
	}
	if runnerUpWithinGap(m, e.cfg.RunnerUpGap) {
		note(-0.20, "multiple candidate columns within gap of winner")
	}

	m.Confidence = model.Clamp(m.Confidence)
}

// runnerUpWithinGap reports whether more than one column competed within
// the configured gap of the winner's pre-adjustment confidence.
func runnerUpWithinGap(m *model.FieldMapping, gap float64) bool {
	base := preAdjustConfidence(m)
	for _, alt := range m.Alternatives {
		if base-alt.Confidence < gap {
			return true
		}
	}
	return false
}

func preAdjustConfidence(m *model.FieldMapping) float64 {
	switch m.Method {
	case model.MethodExactName, model.MethodPartnerRule:
		return confExactName
	case model.MethodFuzzyName:
		return confFuzzyName
	case model.MethodDerived:
		return confDerived
	default:
		return m.Confidence
	}
}

// samplesParse reports whether every sampled value parses under the
// expected canonical type. Empty samples count as not parsing.
func samplesParse(samples []string, t model.DataType) bool {
	if len(samples) == 0 {
		return false
	}
	for _, v := range samples {
		switch t {
		case model.TypeNumeric:
			if _, ok := parseLooseNumber(v); !ok {
				return false
			}
		case model.TypeDate:
			if !parsesAsDate(v) {
				return false
			}
		case model.TypeBoolean:
			if _, err := strconv.ParseBool(v); err != nil {
				return false
			}
		}
	}
	return true
}

var adjustDateLayouts = []string{
	"2006-01-02", "01/02/2006", "2006/01/02", "Jan 2, 2006", "2 Jan 2006",
	"2006-01-02T15:04:05Z07:00",
}

func parsesAsDate(s string) bool {
	for _, layout := range adjustDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func parseLooseNumber(s string) (float64, bool) {
	cleaned := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case ',', '$', '€', '£', ' ', '%':
			continue
		}
		cleaned = append(cleaned, r)
	}
	f, err := strconv.ParseFloat(string(cleaned), 64)
	return f, err == nil
}
