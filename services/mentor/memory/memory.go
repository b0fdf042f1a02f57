// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory reconstructs conversational context from persisted
// traces. The pipeline holds no session state between requests; every
// turn starts with a Load here, so what this package returns is the
// session as far as the rest of the system is concerned.
package memory

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

// DefaultHistoryTurns bounds how many traces feed the model's chat
// history. Governance stats use their own window; this one only caps
// prompt size.
const DefaultHistoryTurns = 12

// TraceReader is the slice of the trace store the loader needs.
type TraceReader interface {
	LoadSequence(ctx context.Context, sessionID string) ([]*datatypes.InteractionTrace, error)
}

// SessionMemory is the reconstructed context for one turn.
type SessionMemory struct {
	// Traces is the full ordered trace sequence for the session.
	Traces []*datatypes.InteractionTrace

	// History is the bounded chat history in model message form,
	// oldest first. Interventions appear as assistant messages; the
	// student saw them as such.
	History []llm.Message

	// PriorAIResponses counts AI responses across the whole session,
	// not just the history window.
	PriorAIResponses int

	// LastState is the most recent cognitive state recorded on any
	// trace, empty when none was.
	LastState datatypes.CognitiveState
}

// NextSeq returns the sequence number the next trace will receive.
func (m *SessionMemory) NextSeq() int {
	if len(m.Traces) == 0 {
		return 1
	}
	return m.Traces[len(m.Traces)-1].Seq + 1
}

// Loader rebuilds session memory from the trace store.
type Loader struct {
	traces       TraceReader
	historyTurns int
}

// NewLoader creates a Loader. Non-positive historyTurns falls back to
// DefaultHistoryTurns.
func NewLoader(traces TraceReader, historyTurns int) *Loader {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Loader{traces: traces, historyTurns: historyTurns}
}

// Load reconstructs the memory for a session. A session with no traces
// yields an empty, usable memory: first turns are not an error.
func (l *Loader) Load(ctx context.Context, sessionID string) (*SessionMemory, error) {
	traces, err := l.traces.LoadSequence(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load trace sequence for %s: %w", sessionID, err)
	}

	mem := &SessionMemory{Traces: traces}
	for _, trace := range traces {
		if trace.Direction == datatypes.DirectionAIResponse {
			mem.PriorAIResponses++
		}
		if trace.State != "" {
			mem.LastState = trace.State
		}
	}

	start := 0
	if len(traces) > l.historyTurns {
		start = len(traces) - l.historyTurns
	}
	for _, trace := range traces[start:] {
		role := llm.RoleUser
		if trace.Direction != datatypes.DirectionStudentPrompt {
			role = llm.RoleAssistant
		}
		mem.History = append(mem.History, llm.Message{Role: role, Content: trace.Content})
	}
	return mem, nil
}
