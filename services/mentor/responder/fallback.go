// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package responder

import "github.com/AleutianAI/AleutianMentor/services/mentor/strategy"

// Fallback texts sent when the model cannot answer. Deterministic on
// purpose: the turn still gets a pedagogically safe response, and tests
// can assert on it exactly.
var fallbackByDirective = map[strategy.Directive]string{
	strategy.DirectiveSocratic: "I can't generate a full response right now, but let's keep your " +
		"thinking moving:\n\n" +
		"1. What exactly are you trying to achieve in this step, in your own words?\n" +
		"2. What have you tried so far, and what did you observe?\n" +
		"3. What is the smallest experiment that would test your current idea?\n\n" +
		"Work through these and share your answers when you're ready.",
	strategy.DirectiveGuidedHints: "I can't generate a full response right now. While we wait, " +
		"narrow the problem down yourself:\n\n" +
		"1. Which part of your current approach are you least sure about?\n" +
		"2. Can you reproduce the issue with a smaller input?\n" +
		"3. What would you expect to happen at that point, and what happens instead?\n\n" +
		"Write down what you find; it will make the next step much faster.",
	strategy.DirectiveConceptual: "I can't generate a full explanation right now. Try this in the " +
		"meantime:\n\n" +
		"1. Write down, in one sentence, what you think the concept means.\n" +
		"2. Think of one example where it applies and one where it doesn't.\n" +
		"3. Note the part that feels fuzzy; that's the part to ask about next.\n\n" +
		"Bring your notes back and we'll refine them together.",
	strategy.DirectiveClarification: "I can't process your request right now, and it also isn't " +
		"clear to me yet what you're aiming for. Please describe:\n\n" +
		"1. What you are trying to achieve.\n" +
		"2. What you have already attempted.\n" +
		"3. Where exactly you got stuck.\n\n" +
		"With that, we can pick up right where you left off.",
}

// FallbackText returns the deterministic fallback response for a plan.
func FallbackText(plan strategy.Plan) string {
	if text, ok := fallbackByDirective[plan.Directive]; ok {
		return text
	}
	return fallbackByDirective[strategy.DirectiveSocratic]
}
