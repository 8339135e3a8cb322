package model

import "time"

// SourceFormat identifies the payload format of a raw source.
type SourceFormat string

const (
	FormatCSV  SourceFormat = "csv"
	FormatXLSX SourceFormat = "xlsx"
)

// RawSource describes one tabular delivery to harmonize. It is immutable
// once ingested; the run that ingests it owns the descriptor.
type RawSource struct {
	SourceSystem        string       `json:"source_system"`
	SourceLocation      string       `json:"source_location"`
	Format              SourceFormat `json:"format,omitempty"`
	PartnerName         string       `json:"partner_name,omitempty"`
	ReceivedAt          *time.Time   `json:"received_at,omitempty"`
	PayloadRef          string       `json:"payload_ref,omitempty"`
	ExpectedGranularity string       `json:"expected_granularity,omitempty"`
	ExpectedMetrics     []string     `json:"expected_metrics,omitempty"`
}

// Ref returns the stable identity used in lineage record ids and for
// column-set drift tracking. PayloadRef wins when set so re-deliveries of
// the same file under a new path keep their identity.
func (s RawSource) Ref() string {
	if s.PayloadRef != "" {
		return s.PayloadRef
	}
	return s.SourceSystem + ":" + s.SourceLocation
}

// IngestionMetadata records what the reader saw while loading a source.
type IngestionMetadata struct {
	RowsRead            int      `json:"rows_read"`
	ColumnsRead         int      `json:"columns_read"`
	Encoding            string   `json:"encoding"`
	FileSizeBytes       int64    `json:"file_size_bytes,omitempty"`
	HeaderRow           int      `json:"header_row"`
	MetadataRowsSkipped int      `json:"metadata_rows_skipped"`
	Warnings            []string `json:"warnings,omitempty"`
}

// Table is an in-memory tabular payload: a header plus string cells.
// Empty string cells are treated as nulls throughout the engine.
type Table struct {
	Header []string
	Rows   [][]string
}
