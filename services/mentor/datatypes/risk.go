// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// RiskDimension is one of the five independent axes of risk scoring.
type RiskDimension string

const (
	DimensionCognitive  RiskDimension = "cognitive"
	DimensionEthical    RiskDimension = "ethical"
	DimensionEpistemic  RiskDimension = "epistemic"
	DimensionTechnical  RiskDimension = "technical"
	DimensionGovernance RiskDimension = "governance"
)

// RiskType is the specific kind of risk a detector found.
type RiskType string

const (
	// Cognitive dimension.
	RiskDelegationPattern RiskType = "delegation_pattern"
	RiskAIDependency      RiskType = "ai_dependency"
	RiskLowJustification  RiskType = "low_justification"
	RiskLowAutonomy       RiskType = "low_autonomy"

	// Ethical dimension.
	RiskSuspectedExternalCopy RiskType = "suspected_external_copy"
	RiskUnverifiedReuse       RiskType = "unverified_reuse"

	// Epistemic dimension.
	RiskUncriticalAcceptance RiskType = "uncritical_acceptance"
	RiskNoVerification       RiskType = "no_verification"
	RiskContradictionIgnored RiskType = "contradiction_ignored"

	// Technical dimension.
	RiskStringBuiltQuery      RiskType = "string_built_query"
	RiskHardcodedSecret       RiskType = "hardcoded_secret"
	RiskEvalUsage             RiskType = "eval_usage"
	RiskUnsafeDeserialization RiskType = "unsafe_deserialization"
	RiskNullDereference       RiskType = "null_dereference_pattern"
	RiskWeakErrorHandling     RiskType = "weak_error_handling"

	// Governance dimension.
	RiskSessionOverrun        RiskType = "session_overrun"
	RiskRestrictionBypass     RiskType = "restriction_bypass"
	RiskPolicyViolationRepeat RiskType = "policy_violation_repeat"
	RiskModeMisuse            RiskType = "mode_misuse"
)

// Severity ranks how serious a risk is. Ordered for comparison.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric rank of a severity for ordering. Unknown
// severities rank below info so malformed data never inflates a report.
func (s Severity) Rank() int {
	r, ok := severityRank[s]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Evidence ties a risk back to the traces that support it. The excerpt
// is bounded; the trace id is the authoritative pointer.
type Evidence struct {
	TraceID string `json:"trace_id"`
	Excerpt string `json:"excerpt,omitempty"`
}

// Risk is one finding produced by a detector. RiskID is deterministic
// over (session, detector, window) so re-running analysis upserts
// instead of duplicating.
type Risk struct {
	RiskID          string        `json:"risk_id"`
	SessionID       string        `json:"session_id"`
	Dimension       RiskDimension `json:"dimension"`
	Type            RiskType      `json:"type"`
	Severity        Severity      `json:"severity"`
	Description     string        `json:"description"`
	Evidence        []Evidence    `json:"evidence"`
	Recommendations []string      `json:"recommendations,omitempty"`
	Resolved        bool          `json:"resolved"`
	DetectedAtMs    int64         `json:"detected_at_ms"`
}

// Trend is the direction the session is moving between its halves.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendWorsening        Trend = "worsening"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// Intervention is one ranked recommendation in a report.
type Intervention struct {
	Priority  int           `json:"priority"`
	Dimension RiskDimension `json:"dimension"`
	Action    string        `json:"action"`
}

// RiskReport aggregates one analysis run over a session window.
type RiskReport struct {
	ReportID         string                   `json:"report_id"`
	SessionID        string                   `json:"session_id"`
	WindowStartSeq   int                      `json:"window_start_seq"`
	WindowEndSeq     int                      `json:"window_end_seq"`
	SeverityTotals   map[Severity]int         `json:"severity_totals"`
	TypeDistribution map[RiskType]int         `json:"type_distribution"`
	OverallSeverity  Severity                 `json:"overall_severity"`
	Assessment       string                   `json:"assessment"`
	Interventions    []Intervention           `json:"interventions,omitempty"`
	Trend            Trend                    `json:"trend"`
	DetectorFailures map[RiskDimension]string `json:"detector_failures,omitempty"`
	GeneratedAtMs    int64                    `json:"generated_at_ms"`
}
