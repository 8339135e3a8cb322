package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// HarmonizedRow is one long-format fact row in the canonical schema.
// Rows are append-only outputs of the transform stage; quality rules may
// flag a row excluded but never delete it.
type HarmonizedRow struct {
	Date                 string   `json:"date"`
	PartnerName          string   `json:"partner_name"`
	PackagePartnerName   string   `json:"package_partner_name,omitempty"`
	PlacementPartnerName string   `json:"placement_partner_name,omitempty"`
	MetricName           string   `json:"metric_name"`
	MetricValue          *float64 `json:"metric_value"`
	Currency             string   `json:"currency,omitempty"`
	SourceSystem         string   `json:"source_system"`
	SourceLocation       string   `json:"source_location"`
	SourceRecordID       string   `json:"source_record_id"`
	IngestedAt           time.Time `json:"ingested_at"`

	Excluded        bool     `json:"excluded,omitempty"`
	ExclusionReason string   `json:"exclusion_reason,omitempty"`
	Fixes           []string `json:"fixes,omitempty"`
}

// Field returns the row value for a canonical field name as a string,
// with ok=false when the value is null/absent.
func (r *HarmonizedRow) Field(name string) (string, bool) {
	switch name {
	case FieldDate:
		return r.Date, r.Date != ""
	case FieldPartnerName:
		return r.PartnerName, r.PartnerName != ""
	case FieldPackagePartnerName:
		return r.PackagePartnerName, r.PackagePartnerName != ""
	case FieldPlacementPartnerName:
		return r.PlacementPartnerName, r.PlacementPartnerName != ""
	case FieldMetricName:
		return r.MetricName, r.MetricName != ""
	case FieldMetricValue:
		if r.MetricValue == nil {
			return "", false
		}
		return strconv.FormatFloat(*r.MetricValue, 'f', -1, 64), true
	case FieldCurrency:
		return r.Currency, r.Currency != ""
	case FieldSourceSystem:
		return r.SourceSystem, r.SourceSystem != ""
	case FieldSourceLocation:
		return r.SourceLocation, r.SourceLocation != ""
	case FieldSourceRecordID:
		return r.SourceRecordID, r.SourceRecordID != ""
	case FieldIngestedAt:
		if r.IngestedAt.IsZero() {
			return "", false
		}
		return r.IngestedAt.UTC().Format(time.RFC3339), true
	default:
		return "", false
	}
}

// CompositeKey returns the duplicate-detection key
// (date, package_partner_name, placement_partner_name, metric_name).
func (r *HarmonizedRow) CompositeKey() string {
	return strings.Join([]string{r.Date, r.PackagePartnerName, r.PlacementPartnerName, r.MetricName}, "\x1f")
}

// recordIDSep separates the source ref, row index, and metric column in a
// source_record_id. Unit separator keeps ids reversible even when the
// source ref contains colons or slashes.
const recordIDSep = "\x1f"

// RecordID deterministically encodes the lineage of one output row:
// originating source, zero-based raw row index, and the metric column the
// row was unpivoted from (empty for non-unpivoted rows).
func RecordID(sourceRef string, rowIndex int, metricColumn string) string {
	return sourceRef + recordIDSep + strconv.Itoa(rowIndex) + recordIDSep + metricColumn
}

// ParseRecordID reverses RecordID, recovering the raw-row/metric pair.
func ParseRecordID(id string) (sourceRef string, rowIndex int, metricColumn string, err error) {
	parts := strings.Split(id, recordIDSep)
	if len(parts) != 3 {
		return "", 0, "", eris.Errorf("model: malformed record id %q", id)
	}
	idx, convErr := strconv.Atoi(parts[1])
	if convErr != nil {
		return "", 0, "", eris.Wrapf(convErr, "model: record id row index %q", parts[1])
	}
	return parts[0], idx, parts[2], nil
}

// ColumnInfo describes one column of the emitted harmonized table.
type ColumnInfo struct {
	Name      string   `json:"name"`
	Type      DataType `json:"type"`
	NullCount int      `json:"null_count"`
}

// HarmonizedTable is the primary output artifact for a run.
type HarmonizedTable struct {
	SchemaVersion string          `json:"schema_version"`
	RunID         string          `json:"run_id"`
	RowCount      int             `json:"row_count"`
	ExcludedCount int             `json:"excluded_count"`
	Columns       []ColumnInfo    `json:"columns"`
	Rows          []HarmonizedRow `json:"rows"`
}
