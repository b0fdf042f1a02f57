// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	lib, err := patterns.NewLibrary()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return New(lib)
}

func aiTurn(content string) datatypes.InteractionTrace {
	return datatypes.InteractionTrace{Direction: datatypes.DirectionAIResponse, Content: content}
}

func studentTurn(content string) datatypes.InteractionTrace {
	return datatypes.InteractionTrace{Direction: datatypes.DirectionStudentPrompt, Content: content}
}

func TestAntiDirectSolutionVetoes(t *testing.T) {
	e := newTestEngine(t)

	out := e.Apply(Input{
		Message: "give me the complete code for the queue",
		Policy:  datatypes.PolicyConfig{},
	})

	assert.True(t, out.Veto)
	assert.Equal(t, RejectionTemplate, out.Response)
	assert.Contains(t, out.Fired, RuleAntiDirectSolution)
}

func TestAntiDirectSolutionCapstoneDegrades(t *testing.T) {
	e := newTestEngine(t)

	out := e.Apply(Input{
		Message: "give me the complete code for the queue",
		Policy:  datatypes.PolicyConfig{Capstone: true},
	})

	assert.False(t, out.Veto)
	assert.Contains(t, out.Warnings, CapstoneWarning)
	assert.Contains(t, out.Fired, RuleAntiDirectSolution)
	require.NotEmpty(t, out.Mandates)
	assert.Equal(t, RuleAntiDirectSolution, out.Mandates[0].Rule)
}

func TestAntiDirectSolutionPassesNormalQuestions(t *testing.T) {
	e := newTestEngine(t)
	out := e.Apply(Input{Message: "why does my head pointer lag behind the tail?"})
	assert.False(t, out.Veto)
	assert.NotContains(t, out.Fired, RuleAntiDirectSolution)
}

func TestSocraticPriorityAfterTwoQuestionlessResponses(t *testing.T) {
	e := newTestEngine(t)

	history := []datatypes.InteractionTrace{
		studentTurn("how do I size the buffer?"),
		aiTurn("Think about the maximum number of pending items."),
		studentTurn("and the overflow case?"),
		aiTurn("Consider what should happen to the oldest entry."),
	}
	out := e.Apply(Input{Message: "ok what next", History: history})
	assert.Contains(t, out.Fired, RuleSocraticPriority)

	// One of the two most recent responses asked a question: rule passes.
	history[3] = aiTurn("What should happen to the oldest entry?")
	out = e.Apply(Input{Message: "ok what next", History: history})
	assert.NotContains(t, out.Fired, RuleSocraticPriority)
}

func TestSocraticPriorityNeedsTwoResponses(t *testing.T) {
	e := newTestEngine(t)
	history := []datatypes.InteractionTrace{
		studentTurn("how do I size the buffer?"),
		aiTurn("Think about the maximum number of pending items."),
	}
	out := e.Apply(Input{Message: "ok what next", History: history})
	assert.NotContains(t, out.Fired, RuleSocraticPriority)
}

func TestExplicitationRequiresJustification(t *testing.T) {
	e := newTestEngine(t)
	policy := datatypes.PolicyConfig{RequireJustification: true}

	out := e.Apply(Input{
		Message: "I'll use a linked list for the queue storage",
		Policy:  policy,
	})
	assert.Contains(t, out.Fired, RuleExplicitation)

	// An explicit justification satisfies the rule.
	out = e.Apply(Input{
		Message: "I'll use a linked list because insertions at the head dominate",
		Policy:  policy,
	})
	assert.NotContains(t, out.Fired, RuleExplicitation)

	// Effort reports are not justifications.
	out = e.Apply(Input{
		Message: "I'll use a linked list, I tried arrays already",
		Policy:  policy,
	})
	assert.Contains(t, out.Fired, RuleExplicitation)
}

func TestExplicitationOffWhenPolicyDoesNotRequireIt(t *testing.T) {
	e := newTestEngine(t)
	out := e.Apply(Input{Message: "I'll use a linked list for the queue storage"})
	assert.NotContains(t, out.Fired, RuleExplicitation)
}

func TestConceptualReinforcementNamesTheConcept(t *testing.T) {
	e := newTestEngine(t)

	out := e.Apply(Input{
		Message: "it crashes with index out of range when I insert at the end",
	})
	require.Contains(t, out.Fired, RuleConceptualReinforcement)

	var instruction string
	for _, m := range out.Mandates {
		if m.Rule == RuleConceptualReinforcement {
			instruction = m.Instruction
		}
	}
	assert.Contains(t, instruction, "invariants")
}

func TestMandatesCompose(t *testing.T) {
	e := newTestEngine(t)

	history := []datatypes.InteractionTrace{
		aiTurn("Think about the maximum number of pending items."),
		aiTurn("Consider what should happen to the oldest entry."),
	}
	out := e.Apply(Input{
		Message: "I'll use a global list, it fails with index out of range",
		Policy:  datatypes.PolicyConfig{RequireJustification: true},
		History: history,
	})

	assert.False(t, out.Veto)
	// Rules fire in their fixed check order.
	assert.Equal(t, []string{RuleSocraticPriority, RuleExplicitation, RuleConceptualReinforcement}, out.Fired)
	assert.Len(t, out.Mandates, 3)
}
