// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier implements the prompt classifier (IPC): a pure,
// deterministic function from one student message plus optional context
// to an intent, an autonomy estimate, and a suggested cognitive state.
// No model calls, no randomness; the same input always classifies the
// same way.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

// Autonomy scoring constants. The deltas are bounded and the final
// score is clamped to [0,1].
const (
	autonomyBaseline       = 0.5
	autonomyCodeBonus      = 0.2
	autonomyReasoningBonus = 0.2
	autonomyDelegationCost = 0.3
	autonomyShortCost      = 0.2

	// minMessageRunes is the length under which a message is considered
	// too thin to show effort.
	minMessageRunes = 20
)

// codeBlockRe matches fenced blocks and the most common inline code
// shapes. Kept inline rather than in the catalogs: it detects structure,
// not vocabulary, and detectors elsewhere share the catalogs' semantics.
var codeBlockRe = regexp.MustCompile("(?s)```.+?```|(?m)^ {4,}\\S.*$|[{};]\\s*\\n")

// whyRe detects explicit requests for explanation of causes.
var whyRe = regexp.MustCompile(`(?i)\bwhy\b|\bhow\s+(does|do|is|are)\b`)

// Context is the optional structured context accompanying a message.
type Context struct {
	// DeclaredState is the cognitive intent the student declared in the
	// UI, if any. A hint only: it breaks ties, it never overrides a
	// positive pattern signal.
	DeclaredState datatypes.CognitiveState

	// PriorAIResponses is how many assistant turns exist in the session
	// before this message. Clarification intent needs something to
	// clarify; on a first contact those patterns fall through.
	PriorAIResponses int
}

// Classifier scans the intent catalogs in their declared priority
// order, first match wins: plagiarism and delegation outrank debugging,
// then clarification, then validation; exploration is the default. The
// order lives on the catalogs themselves, so an override file can
// re-rank intents without a code change.
type Classifier struct {
	lib *patterns.Library
}

// New returns a classifier over the given pattern library.
func New(lib *patterns.Library) *Classifier {
	return &Classifier{lib: lib}
}

// catalogIntents maps each intent catalog to the intent it signals.
// Marker catalogs such as reasoning_markers are absent: they never
// classify a message on their own.
var catalogIntents = map[string]datatypes.Intent{
	"plagiarism":    datatypes.IntentDelegation,
	"delegation":    datatypes.IntentDelegation,
	"debugging":     datatypes.IntentDebugging,
	"clarification": datatypes.IntentClarification,
	"validation":    datatypes.IntentValidation,
}

func (c *Classifier) classifyIntent(message string, cctx Context) (datatypes.Intent, bool) {
	allowed := map[string]bool{
		"plagiarism": true,
		"delegation": true,
		"debugging":  true,
		"validation": true,
		// Clarification needs something to clarify; on a first contact
		// the catalog sits the scan out.
		"clarification": cctx.PriorAIResponses > 0,
	}
	catalog, _, ok := c.lib.ClassifyIntent(message, allowed)
	if !ok {
		return datatypes.IntentExploration, false
	}
	return catalogIntents[catalog], true
}

// Classify maps a message and its context to a classification result.
func (c *Classifier) Classify(message string, cctx Context) datatypes.ClassificationResult {
	result := datatypes.ClassificationResult{
		Intent:   datatypes.IntentExploration,
		Autonomy: autonomyBaseline,
	}

	intent, matched := c.classifyIntent(message, cctx)
	result.Intent = intent
	result.Delegation = result.Intent == datatypes.IntentDelegation
	// A clarification phrasing on a first contact still falls through to
	// exploration (there is nothing to clarify yet), but it is a real
	// signal, not an ambiguous message.
	result.LowConfidence = !matched && !c.lib.Matches("clarification", message)

	result.RequestsExplanation = c.lib.Matches("clarification", message) || whyRe.MatchString(message)

	hasCode := codeBlockRe.MatchString(message)
	hasReasoning := c.lib.Matches("reasoning_markers", message)
	result.WorkShown = hasCode || hasReasoning

	if hasCode {
		result.Autonomy += autonomyCodeBonus
	}
	if hasReasoning {
		result.Autonomy += autonomyReasoningBonus
	}
	if result.Delegation {
		result.Autonomy -= autonomyDelegationCost
	}
	if utf8.RuneCountInString(strings.TrimSpace(message)) < minMessageRunes {
		result.Autonomy -= autonomyShortCost
	}
	result.Autonomy = clamp01(result.Autonomy)

	result.State = suggestedState(result.Intent)
	if result.LowConfidence && cctx.DeclaredState != "" {
		result.State = cctx.DeclaredState
	}
	return result
}

func suggestedState(intent datatypes.Intent) datatypes.CognitiveState {
	switch intent {
	case datatypes.IntentDelegation:
		return datatypes.StateDelegating
	case datatypes.IntentDebugging:
		return datatypes.StateBlocked
	case datatypes.IntentValidation:
		return datatypes.StateValidating
	case datatypes.IntentClarification:
		return datatypes.StateConsolidate
	default:
		return datatypes.StateExploring
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
