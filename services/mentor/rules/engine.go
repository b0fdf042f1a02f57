// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules implements the four inviolable pedagogical checks. They
// run in a fixed order on every turn, regardless of semaphore color, and
// each returns either a pass or a mandatory response modification.
// Modifications compose: a later rule can add to, but never remove, an
// earlier rule's mandatory content. A veto by the first rule replaces
// the response outright.
package rules

import (
	"strings"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

// Rule names, recorded on traces for audit.
const (
	RuleAntiDirectSolution      = "anti_direct_solution"
	RuleSocraticPriority        = "socratic_priority"
	RuleExplicitation           = "explicitation_requirement"
	RuleConceptualReinforcement = "conceptual_reinforcement"
)

// Input is everything the rule engine may look at for one turn.
type Input struct {
	Message        string
	Classification datatypes.ClassificationResult
	Assessment     datatypes.GovernanceAssessment
	Policy         datatypes.PolicyConfig

	// History is the ordered trace sequence loaded for the session,
	// used by the socratic-priority check.
	History []datatypes.InteractionTrace
}

// Mandate is one mandatory addition to the generated response.
type Mandate struct {
	Rule        string `json:"rule"`
	Instruction string `json:"instruction"`
}

// Outcome is the composed result of the four checks.
type Outcome struct {
	// Veto is set when rule 1 fires on a non-capstone activity. The
	// Response below then replaces whatever any other stage produced.
	Veto     bool
	Response string

	// Mandates are the composed mandatory modifications, in rule order.
	Mandates []Mandate

	// Warnings are texts surfaced to the student alongside the response.
	Warnings []string

	// Fired lists the rules that did not pass, in check order.
	Fired []string
}

// Engine runs the four checks in their fixed order.
type Engine struct {
	lib *patterns.Library
}

// New returns a rule engine over the given pattern library.
func New(lib *patterns.Library) *Engine {
	return &Engine{lib: lib}
}

// Apply runs all four checks and composes their outcomes. Deterministic:
// the same input always yields the same outcome.
func (e *Engine) Apply(in Input) Outcome {
	var out Outcome
	e.antiDirectSolution(in, &out)
	e.socraticPriority(in, &out)
	e.explicitation(in, &out)
	e.conceptualReinforcement(in, &out)
	return out
}

// antiDirectSolution vetoes solution-request messages and substitutes
// the rejection template. The only configured exception: capstone
// activities degrade the veto to a warning. Policy cannot disable the
// rule any other way.
func (e *Engine) antiDirectSolution(in Input, out *Outcome) {
	if !e.lib.Matches("solution_request", in.Message) {
		return
	}
	out.Fired = append(out.Fired, RuleAntiDirectSolution)
	if in.Policy.Capstone {
		out.Warnings = append(out.Warnings, CapstoneWarning)
		out.Mandates = append(out.Mandates, Mandate{
			Rule: RuleAntiDirectSolution,
			Instruction: "The student asked for a direct solution. Discuss the design at a " +
				"structural level only; do not produce a submittable implementation.",
		})
		return
	}
	out.Veto = true
	out.Response = RejectionTemplate
}

// socraticPriority forces a clarifying question when the last two
// assistant responses both contained none.
func (e *Engine) socraticPriority(in Input, out *Outcome) {
	questionless := 0
	seen := 0
	for i := len(in.History) - 1; i >= 0 && seen < 2; i-- {
		t := in.History[i]
		if t.Direction != datatypes.DirectionAIResponse {
			continue
		}
		seen++
		if !strings.Contains(t.Content, "?") {
			questionless++
		}
	}
	if seen < 2 || questionless < 2 {
		return
	}
	out.Fired = append(out.Fired, RuleSocraticPriority)
	out.Mandates = append(out.Mandates, Mandate{
		Rule: RuleSocraticPriority,
		Instruction: "Open with at least one clarifying question about the student's current " +
			"understanding before giving any explanation.",
	})
}

// explicitation requires a justification request when the policy demands
// justifications and the message proposes a design decision without one.
func (e *Engine) explicitation(in Input, out *Outcome) {
	if !in.Policy.RequireJustification {
		return
	}
	if !e.lib.Matches("decision_markers", in.Message) {
		return
	}
	if e.hasJustification(in.Message) {
		return
	}
	out.Fired = append(out.Fired, RuleExplicitation)
	out.Mandates = append(out.Mandates, Mandate{
		Rule: RuleExplicitation,
		Instruction: "The student proposed a design decision without justifying it. Before " +
			"anything else, ask them to explain why they chose this approach over the " +
			"alternatives.",
	})
}

// hasJustification looks for an explicit justification marker, not just
// any reasoning phrase: "I tried X" reports effort, it does not justify
// a decision.
func (e *Engine) hasJustification(message string) bool {
	for _, m := range e.lib.FindAll("reasoning_markers", message) {
		switch m.PatternId {
		case "BECAUSE", "I_CHOSE":
			return true
		}
	}
	return false
}

// conceptualReinforcement makes the response name the underlying concept
// when a known error pattern appears in submitted content, instead of
// only patching the syntax.
func (e *Engine) conceptualReinforcement(in Input, out *Outcome) {
	matches := e.lib.FindAll("error_patterns", in.Message)
	if len(matches) == 0 {
		return
	}
	out.Fired = append(out.Fired, RuleConceptualReinforcement)
	concepts := make([]string, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		if m.Concept == "" || seen[m.Concept] {
			continue
		}
		seen[m.Concept] = true
		concepts = append(concepts, m.Concept)
	}
	if len(concepts) == 0 {
		concepts = []string{"invariants"}
	}
	out.Mandates = append(out.Mandates, Mandate{
		Rule: RuleConceptualReinforcement,
		Instruction: "The submitted code shows a known error pattern. Connect the fix to the " +
			"underlying concept(s): " + strings.Join(concepts, ", ") + ". Do not stop at the " +
			"syntactic correction.",
	})
}
