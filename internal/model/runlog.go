package model

import "time"

// SchemaVersion versions the three output artifacts. A MAJOR bump signals
// a breaking canonical-field change for downstream consumers.
const SchemaVersion = "1.0.0"

// ErrorCode classifies structured engine errors and warnings.
type ErrorCode string

const (
	CodeEmptySource             ErrorCode = "EMPTY_SOURCE"
	CodeEncodingFailure         ErrorCode = "ENCODING_FAILURE"
	CodeDuplicateColumns        ErrorCode = "DUPLICATE_COLUMNS"
	CodeRequiredFieldUnmappable ErrorCode = "REQUIRED_FIELD_UNMAPPABLE"
	CodeTypeMismatch            ErrorCode = "TYPE_MISMATCH"
	CodeRowCountMismatch        ErrorCode = "ROW_COUNT_MISMATCH"
	CodeUnpivotInconsistent     ErrorCode = "UNPIVOT_INCONSISTENT"
	CodeRuleFail                ErrorCode = "RULE_FAIL"
	CodeMissingRequired         ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeOptionalFieldUnmapped   ErrorCode = "OPTIONAL_FIELD_UNMAPPED"
	CodeCancelled               ErrorCode = "CANCELLED"
)

// EngineError is a structured error or warning record. Errors are never
// reported as plain text alone.
type EngineError struct {
	Code           ErrorCode `json:"code"`
	Message        string    `json:"message"`
	SourceRef      string    `json:"source_ref,omitempty"`
	AffectedRows   []string  `json:"affected_rows,omitempty"`
	AffectedFields []string  `json:"affected_fields,omitempty"`
}

// StageStatus reports how one pipeline stage finished.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageResult is the per-stage slice of the run audit trail.
type StageResult struct {
	Status     StageStatus    `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Warnings   []string       `json:"warnings,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SourceOutcome summarizes one raw source's processing within a run.
type SourceOutcome struct {
	SourceRef       string                 `json:"source_ref"`
	PartnerName     string                 `json:"partner_name,omitempty"`
	Status          string                 `json:"status"`
	RecordsRead     int                    `json:"records_read"`
	RecordsWritten  int                    `json:"records_written"`
	RecordsExcluded int                    `json:"records_excluded"`
	Confidence      float64                `json:"confidence"`
	StageResults    map[string]StageResult `json:"stage_results"`
}

// RunStatus tracks a run through the pipeline.
type RunStatus string

const (
	RunRunning        RunStatus = "running"
	RunComplete       RunStatus = "complete"
	RunCompleteReview RunStatus = "complete_needs_review"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
)

// RunLog is the write-once run summary, assembled incrementally and
// finalized at run completion. A run always produces one, even when zero
// rows were written.
type RunLog struct {
	SchemaVersion       string          `json:"schema_version"`
	RunID               string          `json:"run_id"`
	Status              RunStatus       `json:"status"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	VocabularyVersion   int64           `json:"vocabulary_version"`
	RecordsRead         int             `json:"records_read"`
	RecordsWritten      int             `json:"records_written"`
	RecordsExcluded     int             `json:"records_excluded"`
	OverallConfidence   float64         `json:"overall_confidence"`
	Sources             []SourceOutcome `json:"sources"`
	Warnings            []EngineError   `json:"warnings"`
	Errors              []EngineError   `json:"errors"`
	HumanReviewRequired bool            `json:"human_review_required"`
	ReviewItems         []ReviewItem    `json:"review_items"`
	OutputArtifacts     map[string]string `json:"output_artifacts,omitempty"`
}
