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

// SemaphoreColor is the traffic-light governance state for a single turn.
type SemaphoreColor string

const (
	SemaphoreGreen  SemaphoreColor = "green"
	SemaphoreYellow SemaphoreColor = "yellow"
	SemaphoreRed    SemaphoreColor = "red"
)

// Restriction is a governance flag that constrains the response for the
// current turn. Restrictions only ever accumulate as the color worsens;
// no stage may remove one set by an earlier stage.
type Restriction string

const (
	RestrictBlockCodeGeneration  Restriction = "block_code_generation"
	RestrictRequireJustification Restriction = "require_justification"
	RestrictEducativeWarning     Restriction = "educative_warning"
	RestrictReduceHelpLevel      Restriction = "reduce_help_level"
	RestrictIncreaseQuestions    Restriction = "increase_question_ratio"
	RestrictRequireWorkShown     Restriction = "require_work_shown"
)

// GovernanceAssessment is the ephemeral output of the semaphore stage.
type GovernanceAssessment struct {
	Color        SemaphoreColor `json:"color"`
	Restrictions []Restriction  `json:"restrictions,omitempty"`
	Warning      string         `json:"warning,omitempty"`

	// RuleID names the decision-table row that fired, for audit.
	RuleID string `json:"rule_id,omitempty"`
}

// Restricted reports whether a specific restriction is active.
func (g *GovernanceAssessment) Restricted(r Restriction) bool {
	for _, have := range g.Restrictions {
		if have == r {
			return true
		}
	}
	return false
}

// AllowsPseudocode reports whether the color permits pseudocode in the
// response. Executable code is never permitted at any color; RED also
// forbids pseudocode.
func (g *GovernanceAssessment) AllowsPseudocode() bool {
	return g.Color != SemaphoreRed
}
