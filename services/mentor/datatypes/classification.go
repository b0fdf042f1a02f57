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

// Intent is the classified purpose of a student message.
type Intent string

const (
	IntentExploration   Intent = "exploration"
	IntentDebugging     Intent = "debugging"
	IntentDelegation    Intent = "delegation"
	IntentClarification Intent = "clarification"
	IntentValidation    Intent = "validation"
)

// ClassificationResult is the ephemeral output of the prompt classifier.
// It is never persisted directly; the pipeline copies the fields it needs
// into the input trace's metadata.
type ClassificationResult struct {
	Intent Intent `json:"intent"`

	// Delegation is true when the message asks the system to produce the
	// full solution rather than guide reasoning. It overrides every other
	// intent signal.
	Delegation bool `json:"delegation"`

	// RequestsExplanation is true when the message asks for conceptual
	// explanation rather than output.
	RequestsExplanation bool `json:"requests_explanation"`

	// Autonomy estimates how much of the cognitive work the student is
	// doing, in [0,1]. 0.5 is the neutral baseline.
	Autonomy float64 `json:"autonomy"`

	State CognitiveState `json:"cognitive_state"`

	// WorkShown is true when the message carries visible student work:
	// an embedded code block or explicit reasoning. The semaphore's
	// no-work counter is built from this flag.
	WorkShown bool `json:"work_shown"`

	// LowConfidence marks classifications that fell through to the
	// exploration default with no positive signal. Never an error.
	LowConfidence bool `json:"low_confidence"`
}
