package review

import "github.com/sells-group/harmonize-cli/internal/model"

// Rates holds the quality outcome ratios for one source, over rows that
// reached the quality stage.
type Rates struct {
	ErrorRate   float64
	WarningRate float64
}

// RatesFrom derives error and warning rates from row counts. A source
// with zero rows has rate 0 on both axes; emptiness is reported upstream.
func RatesFrom(total, failed, warned int) Rates {
	if total <= 0 {
		return Rates{}
	}
	return Rates{
		ErrorRate:   float64(failed) / float64(total),
		WarningRate: float64(warned) / float64(total),
	}
}

// Aggregate combines mapping and quality confidence into the per-source
// overall score: the minimum of the weakest field mapping, 1 - error_rate,
// and 1 - 0.5*warning_rate. Warnings weigh half an error.
func Aggregate(sm *model.SchemaMap, r Rates) float64 {
	overall := 1.0
	for _, fm := range sm.Mappings {
		if fm.Confidence < overall {
			overall = fm.Confidence
		}
	}
	if v := 1 - r.ErrorRate; v < overall {
		overall = v
	}
	if v := 1 - 0.5*r.WarningRate; v < overall {
		overall = v
	}
	return model.Clamp(overall)
}
