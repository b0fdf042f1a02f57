// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

type stubReader struct {
	traces []*datatypes.InteractionTrace
	err    error
}

func (s *stubReader) LoadSequence(ctx context.Context, sessionID string) ([]*datatypes.InteractionTrace, error) {
	return s.traces, s.err
}

func trace(seq int, dir datatypes.TraceDirection, content string) *datatypes.InteractionTrace {
	return &datatypes.InteractionTrace{
		TraceID:   fmt.Sprintf("t%d", seq),
		SessionID: "sess-1",
		Seq:       seq,
		Direction: dir,
		Content:   content,
	}
}

func TestLoader_EmptySessionIsUsable(t *testing.T) {
	loader := NewLoader(&stubReader{}, 0)

	mem, err := loader.Load(context.Background(), "sess-new")
	require.NoError(t, err)
	assert.Empty(t, mem.Traces)
	assert.Empty(t, mem.History)
	assert.Zero(t, mem.PriorAIResponses)
	assert.Equal(t, 1, mem.NextSeq())
}

func TestLoader_CountsAIResponsesAcrossWholeSession(t *testing.T) {
	reader := &stubReader{}
	for i := 1; i <= 30; i++ {
		dir := datatypes.DirectionStudentPrompt
		if i%2 == 0 {
			dir = datatypes.DirectionAIResponse
		}
		reader.traces = append(reader.traces, trace(i, dir, fmt.Sprintf("m%d", i)))
	}
	loader := NewLoader(reader, 4)

	mem, err := loader.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	// History is bounded, the counter is not.
	assert.Len(t, mem.History, 4)
	assert.Equal(t, 15, mem.PriorAIResponses)
	assert.Equal(t, 31, mem.NextSeq())
}

func TestLoader_HistoryRolesAndOrder(t *testing.T) {
	reader := &stubReader{traces: []*datatypes.InteractionTrace{
		trace(1, datatypes.DirectionStudentPrompt, "how do I start?"),
		trace(2, datatypes.DirectionAIResponse, "what do you know already?"),
		trace(3, datatypes.DirectionIntervention, "please show your work first"),
	}}
	loader := NewLoader(reader, 10)

	mem, err := loader.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, mem.History, 3)
	assert.Equal(t, llm.RoleUser, mem.History[0].Role)
	assert.Equal(t, llm.RoleAssistant, mem.History[1].Role)
	assert.Equal(t, llm.RoleAssistant, mem.History[2].Role)
	assert.Equal(t, "how do I start?", mem.History[0].Content)
}

func TestLoader_TracksLastDeclaredState(t *testing.T) {
	first := trace(1, datatypes.DirectionStudentPrompt, "a")
	first.State = datatypes.StateExploring
	second := trace(2, datatypes.DirectionStudentPrompt, "b")
	second.State = datatypes.StateBlocked
	reader := &stubReader{traces: []*datatypes.InteractionTrace{first, second}}

	mem, err := NewLoader(reader, 10).Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StateBlocked, mem.LastState)
}

func TestLoader_PropagatesStoreError(t *testing.T) {
	loader := NewLoader(&stubReader{err: fmt.Errorf("disk on fire")}, 10)
	_, err := loader.Load(context.Background(), "sess-1")
	assert.Error(t, err)
}
