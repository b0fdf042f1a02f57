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

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest marks client-side validation failures so the
// transport layer can map them to a 400 instead of a 500.
var ErrInvalidRequest = errors.New("invalid request")

// maxMessageBytes caps the accepted student message size. Checked in
// bytes, not runes, because the limit protects storage and the model
// context window.
const maxMessageBytes = 32 * 1024

var turnValidate *validator.Validate

func init() {
	turnValidate = validator.New()
	if err := turnValidate.RegisterValidation("maxbytes", validateMaxBytes); err != nil {
		panic(fmt.Sprintf("failed to register maxbytes validator: %v", err))
	}
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= maxMessageBytes
}

// TurnRequest is one student message entering the pipeline.
type TurnRequest struct {
	SessionID  string `json:"session_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`
	ActivityID string `json:"activity_id" validate:"required"`
	Message    string `json:"message" validate:"required,maxbytes"`

	// DeclaredState optionally carries the cognitive intent the student
	// declared in the UI. The classifier treats it as a hint, never as
	// ground truth.
	DeclaredState CognitiveState `json:"declared_state,omitempty"`

	// TraceID lets clients retry idempotently. Generated server-side
	// when empty.
	TraceID string `json:"trace_id,omitempty"`
}

// Validate checks the request before the pipeline touches storage.
func (r *TurnRequest) Validate() error {
	if err := turnValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// TurnResult is what the pipeline hands back for one processed turn.
type TurnResult struct {
	SessionID    string               `json:"session_id"`
	InputTrace   string               `json:"input_trace_id"`
	OutputTrace  string               `json:"output_trace_id"`
	Response     string               `json:"response"`
	Assessment   GovernanceAssessment `json:"assessment"`
	Intent       Intent               `json:"intent"`
	Directive    string               `json:"directive"`
	HelpLevel    HelpLevel            `json:"help_level"`
	CacheHit     bool                 `json:"cache_hit"`
	ModelFailed  bool                 `json:"model_call_failed"`
	FallbackUsed bool                 `json:"fallback_used"`
}
