// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire and storage records shared by the
// mentor pipeline stages. Everything here is a plain value type: the
// pipeline re-derives all rolling state from persisted traces, so none
// of these structs carry behavior that mutates across requests.
package datatypes

import (
	"fmt"
	"time"
)

// SessionMode identifies which interaction surface owns the session.
type SessionMode string

const (
	ModeTutor       SessionMode = "tutor"
	ModeEvaluator   SessionMode = "evaluator"
	ModeSimulator   SessionMode = "simulator"
	ModeRiskAnalyst SessionMode = "risk_analyst"
	ModeGovernance  SessionMode = "governance"
	ModePractice    SessionMode = "practice"
)

// SessionStatus is the lifecycle state of a session. Sessions are never
// deleted; termination soft-closes them by flipping the status.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

// Session is a bounded learning interaction between one student and one
// activity. Created on first contact; the only legal mutations afterwards
// are mode transitions and soft-close.
type Session struct {
	SessionID   string        `json:"session_id"`
	StudentID   string        `json:"student_id"`
	ActivityID  string        `json:"activity_id"`
	Mode        SessionMode   `json:"mode"`
	Status      SessionStatus `json:"status"`
	CreatedAtMs int64         `json:"created_at_ms"`
	ClosedAtMs  int64         `json:"closed_at_ms,omitempty"`
}

// NewSession creates an active session stamped with the current time.
func NewSession(sessionID, studentID, activityID string, mode SessionMode) *Session {
	return &Session{
		SessionID:   sessionID,
		StudentID:   studentID,
		ActivityID:  activityID,
		Mode:        mode,
		Status:      SessionActive,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}

// Transition moves the session to a new mode. Closed sessions refuse
// transitions so a finished record can never be reopened by accident.
func (s *Session) Transition(mode SessionMode) error {
	if s.Status != SessionActive {
		return fmt.Errorf("session %s is %s and cannot change mode", s.SessionID, s.Status)
	}
	switch mode {
	case ModeTutor, ModeEvaluator, ModeSimulator, ModeRiskAnalyst, ModeGovernance, ModePractice:
		s.Mode = mode
		return nil
	default:
		return fmt.Errorf("unknown session mode %q", mode)
	}
}

// Close soft-closes the session with the given terminal status.
func (s *Session) Close(status SessionStatus, nowMs int64) error {
	if status != SessionCompleted && status != SessionAborted {
		return fmt.Errorf("%q is not a terminal session status", status)
	}
	if s.Status != SessionActive {
		return fmt.Errorf("session %s is already closed", s.SessionID)
	}
	s.Status = status
	s.ClosedAtMs = nowMs
	return nil
}
