package model

import "time"

// ReviewStatus tracks a review item through reviewer adjudication.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewResolved ReviewStatus = "resolved"
	ReviewExpired  ReviewStatus = "expired"
)

// ReviewAction is a reviewer decision applied to a pending item.
type ReviewAction string

const (
	ActionApprove           ReviewAction = "approve"
	ActionReject            ReviewAction = "reject"
	ActionSelectAlternative ReviewAction = "select_alternative"
	ActionManualMap         ReviewAction = "manual_map"
)

// TriggerReason names the escalation condition that created a review item.
type TriggerReason string

const (
	TriggerLowFieldConfidence   TriggerReason = "low_field_confidence"
	TriggerLowOverallConfidence TriggerReason = "low_overall_confidence"
	TriggerUnknownPartner       TriggerReason = "unknown_partner"
	TriggerColumnSetChanged     TriggerReason = "column_set_changed"
	TriggerHighErrorRate        TriggerReason = "high_error_rate"
	TriggerHighWarningRate      TriggerReason = "high_warning_rate"
	TriggerFirstRun             TriggerReason = "first_run_for_source"
	TriggerUnmappableField      TriggerReason = "required_field_unmappable"
)

// ReviewItem is a unit of human adjudication work. The engine creates it
// and never mutates it afterwards; only reviewer actions change status.
type ReviewItem struct {
	ReviewID        string               `json:"review_id"`
	RunID           string               `json:"run_id"`
	SourceRef       string               `json:"source_ref,omitempty"`
	TriggerReason   TriggerReason        `json:"trigger_reason"`
	Description     string               `json:"description"`
	AffectedField   string               `json:"affected_field,omitempty"`
	Confidence      *float64             `json:"confidence,omitempty"`
	Threshold       *float64             `json:"threshold,omitempty"`
	ProposedMapping *FieldMapping        `json:"proposed_mapping,omitempty"`
	Alternatives    []MappingAlternative `json:"alternatives,omitempty"`
	SampleValues    []string             `json:"sample_values,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
	Status          ReviewStatus         `json:"status"`
	Resolution      string               `json:"resolution,omitempty"`
}
