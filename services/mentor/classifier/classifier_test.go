// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	lib, err := patterns.NewLibrary()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return New(lib)
}

func TestIntentTable(t *testing.T) {
	c := newTestClassifier(t)
	withHistory := Context{PriorAIResponses: 2}

	cases := []struct {
		name    string
		message string
		cctx    Context
		intent  datatypes.Intent
		state   datatypes.CognitiveState
	}{
		{"delegation direct", "give me the complete code for the assignment", withHistory,
			datatypes.IntentDelegation, datatypes.StateDelegating},
		{"delegation write for me", "write it for me, I'm out of time", withHistory,
			datatypes.IntentDelegation, datatypes.StateDelegating},
		{"plagiarism counts as delegation", "I need the full solution ready to submit", withHistory,
			datatypes.IntentDelegation, datatypes.StateDelegating},
		{"debugging error report", "my insert throws an index out of range error", withHistory,
			datatypes.IntentDebugging, datatypes.StateBlocked},
		{"debugging does not work", "the loop doesn't work when the list is empty", withHistory,
			datatypes.IntentDebugging, datatypes.StateBlocked},
		{"clarification", "can you explain what amortized cost means?", withHistory,
			datatypes.IntentClarification, datatypes.StateConsolidate},
		{"validation", "am I on the right track with this approach?", withHistory,
			datatypes.IntentValidation, datatypes.StateValidating},
		{"exploration default", "I want to model the parking lot with two structures and compare them", withHistory,
			datatypes.IntentExploration, datatypes.StateExploring},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.message, tc.cctx)
			assert.Equal(t, tc.intent, got.Intent)
			assert.Equal(t, tc.state, got.State)
		})
	}
}

func TestDelegationOutranksDebugging(t *testing.T) {
	c := newTestClassifier(t)
	got := c.Classify("I get an error, just give me the code that fixes it", Context{})
	assert.Equal(t, datatypes.IntentDelegation, got.Intent)
	assert.True(t, got.Delegation)
}

func TestIntentFollowsCatalogPriority(t *testing.T) {
	// Both catalogs match the message; the higher priority one wins,
	// and flipping the priorities in an override flips the result.
	msg := "am I on the right track? the insert still throws an error"

	c := newTestClassifier(t)
	assert.Equal(t, datatypes.IntentDebugging, c.Classify(msg, Context{}).Intent)

	override := `
version: 2
catalogs:
  - name: debugging
    priority: 40
    patterns:
      - id: ERROR_REPORT
        regex: '(?i)\bthrows?\s+an?\s+error\b'
        confidence: high
  - name: validation
    priority: 90
    patterns:
      - id: ON_TRACK
        regex: '(?i)\bam\s+i\s+on\s+the\s+right\s+track\b'
        confidence: high
`
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))
	lib, err := patterns.NewLibraryFromFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })

	got := New(lib).Classify(msg, Context{})
	assert.Equal(t, datatypes.IntentValidation, got.Intent)
}

func TestClarificationNeedsPriorResponse(t *testing.T) {
	c := newTestClassifier(t)
	msg := "what is an invariant, exactly?"

	first := c.Classify(msg, Context{PriorAIResponses: 0})
	assert.Equal(t, datatypes.IntentExploration, first.Intent)
	// A real signal fell through, so the result is not low confidence.
	assert.False(t, first.LowConfidence)

	later := c.Classify(msg, Context{PriorAIResponses: 1})
	assert.Equal(t, datatypes.IntentClarification, later.Intent)
}

func TestDeterministic(t *testing.T) {
	c := newTestClassifier(t)
	msg := "is this right? I used a map because lookups dominate"
	cctx := Context{PriorAIResponses: 3}
	assert.Equal(t, c.Classify(msg, cctx), c.Classify(msg, cctx))
}

func TestAutonomyScoring(t *testing.T) {
	c := newTestClassifier(t)

	t.Run("baseline", func(t *testing.T) {
		got := c.Classify("I want to compare two designs for the queue storage", Context{})
		assert.InDelta(t, 0.5, got.Autonomy, 0.001)
	})

	t.Run("code and reasoning raise it", func(t *testing.T) {
		msg := "I tried shrinking the window because the tail overruns:\n```go\nfor i := range buf {\n}\n```"
		got := c.Classify(msg, Context{})
		assert.True(t, got.WorkShown)
		assert.InDelta(t, 0.9, got.Autonomy, 0.001)
	})

	t.Run("delegation lowers it", func(t *testing.T) {
		got := c.Classify("please write the parser for me, it needs to handle nested lists", Context{})
		assert.InDelta(t, 0.2, got.Autonomy, 0.001)
	})

	t.Run("short messages lower it", func(t *testing.T) {
		got := c.Classify("help", Context{})
		assert.InDelta(t, 0.3, got.Autonomy, 0.001)
	})

	t.Run("clamped at zero", func(t *testing.T) {
		got := c.Classify("solve it for me", Context{})
		assert.GreaterOrEqual(t, got.Autonomy, 0.0)
	})
}

func TestLowConfidenceUsesDeclaredState(t *testing.T) {
	c := newTestClassifier(t)
	got := c.Classify("I want to keep pushing on the allocator idea from before",
		Context{DeclaredState: datatypes.StateConsolidate})
	require.True(t, got.LowConfidence)
	assert.Equal(t, datatypes.StateConsolidate, got.State)
}

func TestRequestsExplanation(t *testing.T) {
	c := newTestClassifier(t)
	assert.True(t, c.Classify("why does the index wrap to zero here?", Context{}).RequestsExplanation)
	assert.False(t, c.Classify("I finished the insert routine and moved on to delete", Context{}).RequestsExplanation)
}
