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

import "fmt"

// TraceDirection tells who produced a trace.
type TraceDirection string

const (
	DirectionStudentPrompt TraceDirection = "student_prompt"
	DirectionAIResponse    TraceDirection = "ai_response"
	DirectionIntervention  TraceDirection = "intervention"
)

// CognitiveState is the estimated state of the student at the time of a
// turn. The classifier suggests one; detectors read it back later.
type CognitiveState string

const (
	StateExploring   CognitiveState = "exploring"
	StateBlocked     CognitiveState = "blocked"
	StateDelegating  CognitiveState = "delegating"
	StateConsolidate CognitiveState = "consolidating"
	StateValidating  CognitiveState = "validating"
)

// Metadata keys written by the pipeline onto traces. Detectors and the
// governance stats reconstruction key off these, so they are part of the
// storage contract, not free-form.
const (
	MetaIntent          = "intent"
	MetaAutonomy        = "autonomy"
	MetaSemaphoreColor  = "semaphore_color"
	MetaRestrictions    = "restrictions"
	MetaRuleTriggered   = "rule_triggered"
	MetaDirective       = "directive"
	MetaModelCallFailed = "model_call_failed"
	MetaCacheHit        = "cache_hit"
	MetaWorkShown       = "work_shown"
	MetaCompetencies    = "competencies"
)

// InteractionTrace is the atomic unit of session history. Once appended
// it is immutable; the ordered trace sequence is the sole source of truth
// for every later reconstruction and analysis.
type InteractionTrace struct {
	TraceID       string         `json:"trace_id"`
	SessionID     string         `json:"session_id"`
	Seq           int            `json:"seq"`
	Direction     TraceDirection `json:"direction"`
	Content       string         `json:"content"`
	State         CognitiveState `json:"cognitive_state,omitempty"`
	AIInvolvement float64        `json:"ai_involvement"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAtMs   int64          `json:"created_at_ms"`
}

// Validate checks the fields the storage layer refuses to persist without.
func (t *InteractionTrace) Validate() error {
	if t.TraceID == "" {
		return fmt.Errorf("trace is missing a trace_id")
	}
	if t.SessionID == "" {
		return fmt.Errorf("trace %s is missing a session_id", t.TraceID)
	}
	switch t.Direction {
	case DirectionStudentPrompt, DirectionAIResponse, DirectionIntervention:
	default:
		return fmt.Errorf("trace %s has unknown direction %q", t.TraceID, t.Direction)
	}
	if t.AIInvolvement < 0 || t.AIInvolvement > 1 {
		return fmt.Errorf("trace %s ai_involvement %.2f is outside [0,1]", t.TraceID, t.AIInvolvement)
	}
	return nil
}

// MetaBool reads a boolean metadata value, tolerating absence.
func (t *InteractionTrace) MetaBool(key string) bool {
	if t.Metadata == nil {
		return false
	}
	v, ok := t.Metadata[key].(bool)
	return ok && v
}

// MetaString reads a string metadata value, tolerating absence.
func (t *InteractionTrace) MetaString(key string) string {
	if t.Metadata == nil {
		return ""
	}
	s, _ := t.Metadata[key].(string)
	return s
}

// MetaStrings reads a string-slice metadata value. JSON round-trips turn
// []string into []any, so both shapes are accepted.
func (t *InteractionTrace) MetaStrings(key string) []string {
	if t.Metadata == nil {
		return nil
	}
	switch v := t.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
