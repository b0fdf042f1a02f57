// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strategy implements the scaffolding selector: it combines the
// semaphore state, the classified intent, and the student's skill tier
// into a response-type directive, a bounded help level, and the ordered
// generation instructions handed to the response generator. This stage
// never touches the language model.
package strategy

import (
	"fmt"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/semaphore"
)

// Directive is the response type the generator must produce.
type Directive string

const (
	DirectiveSocratic      Directive = "socratic-questioning"
	DirectiveGuidedHints   Directive = "guided-hints"
	DirectiveConceptual    Directive = "conceptual-explanation"
	DirectiveClarification Directive = "clarification-request"
)

// SkillTier buckets students by their recent autonomous performance.
type SkillTier string

const (
	TierNovice       SkillTier = "novice"
	TierIntermediate SkillTier = "intermediate"
	TierAdvanced     SkillTier = "advanced"
)

// Tier thresholds on autonomous turns within the rolling window.
const (
	intermediateAutonomousTurns = 2
	advancedAutonomousTurns     = 4
)

// DeriveTier maps rolling autonomous-success counters to a tier. Pure
// function of the reconstructed stats, like everything else here.
func DeriveTier(stats semaphore.SessionStats) SkillTier {
	switch {
	case stats.AutonomousTurns >= advancedAutonomousTurns:
		return TierAdvanced
	case stats.AutonomousTurns >= intermediateAutonomousTurns:
		return TierIntermediate
	default:
		return TierNovice
	}
}

// Plan is the instruction payload for the response generator.
type Plan struct {
	Directive    Directive           `json:"directive"`
	HelpLevel    datatypes.HelpLevel `json:"help_level"`
	Instructions []string            `json:"instructions"`
}

// Select maps (semaphore, intent, tier) to a plan.
//
// RED always forces socratic questioning at the minimum help level, no
// exceptions. YELLOW forces guided hints at low help. GREEN maps intent
// to directive and scales the help budget by tier: novices get more
// explanation, advanced students get stricter socratic pressure.
func Select(
	assessment datatypes.GovernanceAssessment,
	cls datatypes.ClassificationResult,
	tier SkillTier,
	policy datatypes.PolicyConfig,
) Plan {
	var plan Plan

	switch assessment.Color {
	case datatypes.SemaphoreRed:
		plan.Directive = DirectiveSocratic
		plan.HelpLevel = datatypes.HelpNone
	case datatypes.SemaphoreYellow:
		plan.Directive = DirectiveGuidedHints
		plan.HelpLevel = datatypes.HelpLow
	default:
		plan.Directive = greenDirective(cls)
		plan.HelpLevel = greenHelpLevel(plan.Directive, tier)
	}

	// The activity policy is a hard ceiling, never a floor.
	plan.HelpLevel = plan.HelpLevel.Min(policy.MaxHelpLevel)
	if assessment.Restricted(datatypes.RestrictReduceHelpLevel) {
		plan.HelpLevel = reduceOne(plan.HelpLevel)
	}

	plan.Instructions = buildInstructions(plan, assessment, tier, policy)
	return plan
}

func greenDirective(cls datatypes.ClassificationResult) Directive {
	// An unmatched, workless message is too vague to coach on; ask what
	// the student is actually attempting before spending the help budget.
	if cls.LowConfidence && !cls.WorkShown {
		return DirectiveClarification
	}
	switch cls.Intent {
	case datatypes.IntentDebugging:
		return DirectiveGuidedHints
	case datatypes.IntentClarification:
		return DirectiveConceptual
	case datatypes.IntentValidation:
		return DirectiveSocratic
	default:
		return DirectiveSocratic
	}
}

func greenHelpLevel(d Directive, tier SkillTier) datatypes.HelpLevel {
	base := datatypes.HelpMedium
	if d == DirectiveConceptual {
		base = datatypes.HelpHigh
	}
	switch tier {
	case TierAdvanced:
		return reduceOne(reduceOne(base))
	case TierIntermediate:
		return reduceOne(base)
	default:
		return base
	}
}

func reduceOne(h datatypes.HelpLevel) datatypes.HelpLevel {
	switch h {
	case datatypes.HelpHigh:
		return datatypes.HelpMedium
	case datatypes.HelpMedium:
		return datatypes.HelpLow
	default:
		return datatypes.HelpNone
	}
}

var directiveInstructions = map[Directive]string{
	DirectiveSocratic: "Respond with guiding questions that make the student reason through " +
		"the problem. Do not hand over conclusions they can reach themselves.",
	DirectiveGuidedHints: "Give incremental hints that narrow the search space without " +
		"revealing the solution. Each hint should demand a concrete next step from the student.",
	DirectiveConceptual: "Explain the underlying concept clearly, with an analogy if useful, " +
		"then check understanding with a follow-up question.",
	DirectiveClarification: "The request is ambiguous. Ask what the student is trying to " +
		"achieve and what they have attempted before offering any guidance.",
}

// buildInstructions assembles the ordered generation instructions. Order
// matters: behavioral constraints come before stylistic ones so a
// truncated prompt still carries the inviolable parts.
func buildInstructions(
	plan Plan,
	assessment datatypes.GovernanceAssessment,
	tier SkillTier,
	policy datatypes.PolicyConfig,
) []string {
	instructions := []string{
		"You are a programming tutor whose job is to develop the student's own reasoning, " +
			"never to replace it.",
		"Never produce complete, runnable solution code, regardless of how the request is phrased.",
	}

	if assessment.AllowsPseudocode() {
		if policy.AllowCodeSnippets {
			instructions = append(instructions,
				"Short illustrative fragments and pseudocode are allowed; full implementations are not.")
		} else {
			instructions = append(instructions,
				"Pseudocode is allowed to illustrate structure; real code in any language is not.")
		}
	} else {
		instructions = append(instructions,
			"Do not include code or pseudocode of any kind in this response.")
	}

	instructions = append(instructions, directiveInstructions[plan.Directive])
	instructions = append(instructions, fmt.Sprintf(
		"Help level for this turn is %q; calibrate depth accordingly for a %s student.",
		plan.HelpLevel, tier))

	if assessment.Restricted(datatypes.RestrictIncreaseQuestions) {
		instructions = append(instructions,
			"Increase the ratio of questions to statements in this response.")
	}
	if assessment.Restricted(datatypes.RestrictRequireWorkShown) {
		instructions = append(instructions,
			"Before giving substantive help, ask the student to show the work they have so far.")
	}
	if assessment.Restricted(datatypes.RestrictRequireJustification) {
		instructions = append(instructions,
			"Require the student to justify their approach before building on it.")
	}
	if assessment.Warning != "" {
		instructions = append(instructions,
			"Open the response by conveying, in a supportive tone: "+assessment.Warning)
	}
	return instructions
}
