// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package riskanalyst

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

// detectorInput is everything a detector may read. Detectors are pure
// functions of it: same input, same findings.
type detectorInput struct {
	session *datatypes.Session
	traces  []*datatypes.InteractionTrace
	policy  datatypes.PolicyConfig
	lib     *patterns.Library
	nowMs   int64
}

type detectorFunc func(in detectorInput) []*datatypes.Risk

// detectors maps each scoring dimension to its detector. The analyst
// fans out over this map; a missing dimension would silently narrow
// every report, so the set is fixed here and asserted in tests.
var detectors = map[datatypes.RiskDimension]detectorFunc{
	datatypes.DimensionCognitive:  detectCognitive,
	datatypes.DimensionEthical:    detectEthical,
	datatypes.DimensionEpistemic:  detectEpistemic,
	datatypes.DimensionTechnical:  detectTechnical,
	datatypes.DimensionGovernance: detectGovernance,
}

func newRisk(in detectorInput, dim datatypes.RiskDimension, typ datatypes.RiskType, sev datatypes.Severity, desc string) *datatypes.Risk {
	return &datatypes.Risk{
		SessionID:    in.session.SessionID,
		Dimension:    dim,
		Type:         typ,
		Severity:     sev,
		Description:  desc,
		DetectedAtMs: in.nowMs,
	}
}

func studentPrompts(traces []*datatypes.InteractionTrace) []*datatypes.InteractionTrace {
	var out []*datatypes.InteractionTrace
	for _, t := range traces {
		if t.Direction == datatypes.DirectionStudentPrompt {
			out = append(out, t)
		}
	}
	return out
}

func aiResponses(traces []*datatypes.InteractionTrace) []*datatypes.InteractionTrace {
	var out []*datatypes.InteractionTrace
	for _, t := range traces {
		if t.Direction == datatypes.DirectionAIResponse {
			out = append(out, t)
		}
	}
	return out
}

// --- Cognitive -------------------------------------------------------

const (
	delegationMediumCount     = 2
	delegationHighCount       = 4
	lowAutonomyMean           = 0.3
	minTurnsForAutonomy       = 5
	minResponsesForDependency = 5
	minDecisionsForRatio      = 3
	dependencyHighMargin      = 0.15
)

func detectCognitive(in detectorInput) []*datatypes.Risk {
	var risks []*datatypes.Risk
	prompts := studentPrompts(in.traces)

	// Repeated delegation attempts across the session.
	var delegations []*datatypes.InteractionTrace
	for _, p := range prompts {
		if in.lib.Matches("delegation", p.Content) || in.lib.Matches("plagiarism", p.Content) {
			delegations = append(delegations, p)
		}
	}
	if len(delegations) >= delegationMediumCount {
		sev := datatypes.SeverityMedium
		if len(delegations) >= delegationHighCount {
			sev = datatypes.SeverityHigh
		}
		risk := newRisk(in, datatypes.DimensionCognitive, datatypes.RiskDelegationPattern, sev,
			fmt.Sprintf("%d delegation attempts in this session", len(delegations)))
		for _, d := range delegations {
			risk.Evidence = append(risk.Evidence, evidenceFor(d))
		}
		risk.Recommendations = append(risk.Recommendations,
			"Discuss with the student why outsourcing whole solutions stalls their learning.")
		risks = append(risks, risk)
	}

	// Sustained AI involvement above the activity threshold. The pipeline
	// records the involvement estimate on assistant responses, so those
	// are the traces averaged here.
	if replies := aiResponses(in.traces); len(replies) >= minResponsesForDependency {
		var sum float64
		for _, r := range replies {
			sum += r.AIInvolvement
		}
		mean := sum / float64(len(replies))
		if mean > in.policy.AIDependencyThreshold {
			sev := datatypes.SeverityMedium
			if mean > in.policy.AIDependencyThreshold+dependencyHighMargin {
				sev = datatypes.SeverityHigh
			}
			risk := newRisk(in, datatypes.DimensionCognitive, datatypes.RiskAIDependency, sev,
				fmt.Sprintf("mean AI involvement %.2f exceeds the %.2f threshold", mean, in.policy.AIDependencyThreshold))
			risk.Evidence = append(risk.Evidence, evidenceFor(replies[len(replies)-1]))
			risk.Recommendations = append(risk.Recommendations,
				"Schedule an unassisted checkpoint exercise for this student.")
			risks = append(risks, risk)
		}
	}

	if len(prompts) >= minTurnsForAutonomy {
		// Low autonomy estimates across the session.
		var autonomySum float64
		var autonomyN int
		for _, p := range prompts {
			if v, ok := metaFloat(p, datatypes.MetaAutonomy); ok {
				autonomySum += v
				autonomyN++
			}
		}
		if autonomyN >= minTurnsForAutonomy && autonomySum/float64(autonomyN) < lowAutonomyMean {
			risk := newRisk(in, datatypes.DimensionCognitive, datatypes.RiskLowAutonomy, datatypes.SeverityMedium,
				"autonomy estimates stayed low across the session")
			risk.Evidence = append(risk.Evidence, evidenceFor(prompts[len(prompts)-1]))
			risks = append(risks, risk)
		}
	}

	// Decisions announced without justification.
	var decisions, justified int
	var lastUnjustified *datatypes.InteractionTrace
	for _, p := range prompts {
		if !in.lib.Matches("decision_markers", p.Content) {
			continue
		}
		decisions++
		if in.lib.Matches("reasoning_markers", p.Content) {
			justified++
		} else {
			lastUnjustified = p
		}
	}
	if decisions >= minDecisionsForRatio {
		ratio := float64(justified) / float64(decisions)
		if ratio < in.policy.NoJustificationThreshold {
			risk := newRisk(in, datatypes.DimensionCognitive, datatypes.RiskLowJustification, datatypes.SeverityMedium,
				fmt.Sprintf("only %d of %d announced decisions carried a justification", justified, decisions))
			if lastUnjustified != nil {
				risk.Evidence = append(risk.Evidence, evidenceFor(lastUnjustified))
			}
			risk.Recommendations = append(risk.Recommendations,
				"Ask the student to explain the reasoning behind their recent design choices.")
			risks = append(risks, risk)
		}
	}
	return risks
}

// --- Ethical ---------------------------------------------------------

const (
	// A fenced block this large, this soon after the previous turn, was
	// not typed by hand.
	largePasteRunes   = 150
	rapidPasteMs      = 30_000
	reuseProbeRunes   = 80
	reuseMinAIContent = 160
)

var fencedCodeRe = regexp.MustCompile("(?s)```.*?```")

func detectEthical(in detectorInput) []*datatypes.Risk {
	var risks []*datatypes.Risk

	// Code blocks arriving faster than a human could write them. The
	// evidence pairs each paste with the turn it followed, so a reviewer
	// sees both sides of the exchange.
	type rapidPaste struct {
		prev, paste *datatypes.InteractionTrace
	}
	var rapidPastes []rapidPaste
	for i, t := range in.traces {
		if t.Direction != datatypes.DirectionStudentPrompt || i == 0 {
			continue
		}
		block := fencedCodeRe.FindString(t.Content)
		if len([]rune(block)) < largePasteRunes {
			continue
		}
		if t.CreatedAtMs-in.traces[i-1].CreatedAtMs < rapidPasteMs {
			rapidPastes = append(rapidPastes, rapidPaste{prev: in.traces[i-1], paste: t})
		}
	}
	if len(rapidPastes) > 0 {
		risk := newRisk(in, datatypes.DimensionEthical, datatypes.RiskSuspectedExternalCopy, datatypes.SeverityHigh,
			fmt.Sprintf("%d code blocks were submitted seconds after the previous turn", len(rapidPastes)))
		for _, p := range rapidPastes {
			risk.Evidence = append(risk.Evidence, evidenceFor(p.prev), evidenceFor(p.paste))
		}
		risk.Recommendations = append(risk.Recommendations,
			"Ask the student to walk through this code line by line and explain its origin.")
		risks = append(risks, risk)
	}

	// Prompts that echo a prior AI response verbatim with no sign the
	// student engaged with it.
	var reuses []*datatypes.InteractionTrace
	for i := 1; i < len(in.traces); i++ {
		t := in.traces[i]
		prev := in.traces[i-1]
		if t.Direction != datatypes.DirectionStudentPrompt || prev.Direction != datatypes.DirectionAIResponse {
			continue
		}
		if echoesVerbatim(t.Content, prev.Content) && !in.lib.Matches("reasoning_markers", t.Content) {
			reuses = append(reuses, t)
		}
	}
	if len(reuses) > 0 {
		risk := newRisk(in, datatypes.DimensionEthical, datatypes.RiskUnverifiedReuse, datatypes.SeverityMedium,
			"AI output was pasted back without any added reasoning")
		for _, r := range reuses {
			risk.Evidence = append(risk.Evidence, evidenceFor(r))
		}
		risks = append(risks, risk)
	}
	return risks
}

// echoesVerbatim reports whether the student text contains a sizeable
// verbatim slice of the AI text. The probe is taken from the middle of
// the AI response, where boilerplate openings cannot cause false hits.
func echoesVerbatim(student, ai string) bool {
	aiRunes := []rune(strings.TrimSpace(ai))
	if len(aiRunes) < reuseMinAIContent {
		return false
	}
	mid := len(aiRunes) / 2
	probe := string(aiRunes[mid-reuseProbeRunes/2 : mid+reuseProbeRunes/2])
	return strings.Contains(student, probe)
}

// --- Epistemic -------------------------------------------------------

const (
	uncriticalStreak   = 3
	minPairsForNoVerif = 4
	noVerifRatio       = 0.8
	contradictionCount = 2
)

var (
	acceptanceRe    = regexp.MustCompile(`(?i)\b(thanks|thank you|got it|perfect|great|makes sense|ok(ay)?)\b`)
	verificationRe  = regexp.MustCompile(`(?i)\b(test(ed)?|verif|check(ed)?|tried it|ran it|confirm)\b`)
	contradictionRe = regexp.MustCompile(`(?i)(incorrect|not (quite )?right|contradic|doesn't hold|that is wrong)`)
)

func detectEpistemic(in detectorInput) []*datatypes.Risk {
	var risks []*datatypes.Risk

	// Pair every AI response with the student's next prompt.
	type pair struct {
		ai      *datatypes.InteractionTrace
		student *datatypes.InteractionTrace
	}
	var pairs []pair
	for i := 1; i < len(in.traces); i++ {
		if in.traces[i].Direction == datatypes.DirectionStudentPrompt &&
			in.traces[i-1].Direction == datatypes.DirectionAIResponse {
			pairs = append(pairs, pair{ai: in.traces[i-1], student: in.traces[i]})
		}
	}

	// Streak of bare acceptances with no pushback.
	streak := 0
	var streakEnd *datatypes.InteractionTrace
	maxStreak := 0
	for _, p := range pairs {
		if acceptanceRe.MatchString(p.student.Content) &&
			!strings.Contains(p.student.Content, "?") &&
			!in.lib.Matches("reasoning_markers", p.student.Content) {
			streak++
			if streak > maxStreak {
				maxStreak = streak
				streakEnd = p.student
			}
		} else {
			streak = 0
		}
	}
	if maxStreak >= uncriticalStreak {
		risk := newRisk(in, datatypes.DimensionEpistemic, datatypes.RiskUncriticalAcceptance, datatypes.SeverityMedium,
			fmt.Sprintf("%d consecutive AI answers were accepted without question", maxStreak))
		if streakEnd != nil {
			risk.Evidence = append(risk.Evidence, evidenceFor(streakEnd))
		}
		risk.Recommendations = append(risk.Recommendations,
			"Prompt the student to predict the answer before asking, then compare.")
		risks = append(risks, risk)
	}

	// Answers taken on faith: nothing in the follow-ups mentions
	// testing or checking.
	if len(pairs) >= minPairsForNoVerif {
		unverified := 0
		for _, p := range pairs {
			if !verificationRe.MatchString(p.student.Content) {
				unverified++
			}
		}
		if float64(unverified)/float64(len(pairs)) > noVerifRatio {
			risk := newRisk(in, datatypes.DimensionEpistemic, datatypes.RiskNoVerification, datatypes.SeverityLow,
				"follow-up prompts never mention testing or verifying the advice received")
			risk.Evidence = append(risk.Evidence, evidenceFor(pairs[len(pairs)-1].student))
			risks = append(risks, risk)
		}
	}

	// Corrections the student sailed past.
	ignored := 0
	var lastIgnored *datatypes.InteractionTrace
	for _, p := range pairs {
		if contradictionRe.MatchString(p.ai.Content) &&
			!strings.Contains(p.student.Content, "?") &&
			!in.lib.Matches("reasoning_markers", p.student.Content) {
			ignored++
			lastIgnored = p.student
		}
	}
	if ignored >= contradictionCount {
		risk := newRisk(in, datatypes.DimensionEpistemic, datatypes.RiskContradictionIgnored, datatypes.SeverityMedium,
			fmt.Sprintf("%d explicit corrections drew no reaction from the student", ignored))
		if lastIgnored != nil {
			risk.Evidence = append(risk.Evidence, evidenceFor(lastIgnored))
		}
		risks = append(risks, risk)
	}
	return risks
}

// --- Technical -------------------------------------------------------

// securityRiskTypes maps security catalog pattern IDs to risk types.
var securityRiskTypes = map[string]datatypes.RiskType{
	"STRING_BUILT_QUERY":     datatypes.RiskStringBuiltQuery,
	"HARDCODED_SECRET":       datatypes.RiskHardcodedSecret,
	"EVAL_EXEC":              datatypes.RiskEvalUsage,
	"UNSAFE_DESERIALIZATION": datatypes.RiskUnsafeDeserialization,
	"SWALLOWED_ERROR":        datatypes.RiskWeakErrorHandling,
}

var uncheckedAccessRe = regexp.MustCompile(`\.unwrap\(\)|\.get\(\)\s*\.`)

func detectTechnical(in detectorInput) []*datatypes.Risk {
	type finding struct {
		severity datatypes.Severity
		traces   []*datatypes.InteractionTrace
	}
	found := map[datatypes.RiskType]*finding{}

	for _, p := range studentPrompts(in.traces) {
		for _, m := range in.lib.FindAll("security_smells", p.Content) {
			typ, ok := securityRiskTypes[m.PatternId]
			if !ok {
				continue
			}
			f := found[typ]
			if f == nil {
				f = &finding{severity: catalogSeverity(m.Severity)}
				found[typ] = f
			}
			f.traces = append(f.traces, p)
		}
		if uncheckedAccessRe.MatchString(p.Content) {
			f := found[datatypes.RiskNullDereference]
			if f == nil {
				f = &finding{severity: datatypes.SeverityLow}
				found[datatypes.RiskNullDereference] = f
			}
			f.traces = append(f.traces, p)
		}
	}

	var risks []*datatypes.Risk
	for typ, f := range found {
		risk := newRisk(in, datatypes.DimensionTechnical, typ, f.severity,
			fmt.Sprintf("student code shows %s in %d prompt(s)", typ, len(f.traces)))
		seen := map[string]bool{}
		for _, t := range f.traces {
			if seen[t.TraceID] {
				continue
			}
			seen[t.TraceID] = true
			risk.Evidence = append(risk.Evidence, evidenceFor(t))
		}
		risk.Recommendations = append(risk.Recommendations,
			"Review this construct with the student and have them explain a safer alternative.")
		risks = append(risks, risk)
	}
	return risks
}

func catalogSeverity(s string) datatypes.Severity {
	switch strings.ToLower(s) {
	case "critical":
		return datatypes.SeverityCritical
	case "high":
		return datatypes.SeverityHigh
	case "medium":
		return datatypes.SeverityMedium
	case "low":
		return datatypes.SeverityLow
	default:
		return datatypes.SeverityInfo
	}
}

// --- Governance ------------------------------------------------------

const (
	violationMediumCount = 3
	violationHighCount   = 5
)

func detectGovernance(in detectorInput) []*datatypes.Risk {
	var risks []*datatypes.Risk

	if in.policy.MaxSessionDuration > 0 && len(in.traces) > 0 {
		elapsed := in.nowMs - in.session.CreatedAtMs
		if elapsed > in.policy.MaxSessionDuration.Std().Milliseconds() {
			risk := newRisk(in, datatypes.DimensionGovernance, datatypes.RiskSessionOverrun, datatypes.SeverityMedium,
				fmt.Sprintf("session has run past the %s activity limit", in.policy.MaxSessionDuration))
			risk.Evidence = append(risk.Evidence, evidenceFor(in.traces[len(in.traces)-1]))
			risks = append(risks, risk)
		}
	}

	// Rephrased delegation right after a red block.
	var bypasses []*datatypes.InteractionTrace
	for i := 1; i < len(in.traces); i++ {
		t := in.traces[i]
		prev := in.traces[i-1]
		if t.Direction != datatypes.DirectionStudentPrompt {
			continue
		}
		if prev.MetaString(datatypes.MetaSemaphoreColor) != string(datatypes.SemaphoreRed) {
			continue
		}
		if in.lib.Matches("delegation", t.Content) || in.lib.Matches("plagiarism", t.Content) {
			bypasses = append(bypasses, t)
		}
	}
	if len(bypasses) > 0 {
		risk := newRisk(in, datatypes.DimensionGovernance, datatypes.RiskRestrictionBypass, datatypes.SeverityHigh,
			fmt.Sprintf("%d delegation attempts were rephrased immediately after a block", len(bypasses)))
		for _, b := range bypasses {
			risk.Evidence = append(risk.Evidence, evidenceFor(b))
		}
		risk.Recommendations = append(risk.Recommendations,
			"Flag this session for instructor review; the student is probing the guardrails.")
		risks = append(risks, risk)
	}

	// Repeat rule violations across the session.
	var violations []*datatypes.InteractionTrace
	for _, t := range in.traces {
		if t.MetaString(datatypes.MetaRuleTriggered) != "" {
			violations = append(violations, t)
		}
	}
	if len(violations) >= violationMediumCount {
		sev := datatypes.SeverityMedium
		if len(violations) >= violationHighCount {
			sev = datatypes.SeverityHigh
		}
		risk := newRisk(in, datatypes.DimensionGovernance, datatypes.RiskPolicyViolationRepeat, sev,
			fmt.Sprintf("governance rules fired on %d turns in this session", len(violations)))
		risk.Evidence = append(risk.Evidence, evidenceFor(violations[len(violations)-1]))
		risks = append(risks, risk)
	}

	// Student traffic in a mode that should not carry any.
	switch in.session.Mode {
	case datatypes.ModeEvaluator, datatypes.ModeRiskAnalyst, datatypes.ModeGovernance:
		if prompts := studentPrompts(in.traces); len(prompts) > 0 {
			risk := newRisk(in, datatypes.DimensionGovernance, datatypes.RiskModeMisuse, datatypes.SeverityMedium,
				fmt.Sprintf("student prompts recorded while the session is in %s mode", in.session.Mode))
			risk.Evidence = append(risk.Evidence, evidenceFor(prompts[0]))
			risks = append(risks, risk)
		}
	}
	return risks
}

// metaFloat reads a numeric metadata value. JSON decoding produces
// float64 for all numbers.
func metaFloat(t *datatypes.InteractionTrace, key string) (float64, bool) {
	if t.Metadata == nil {
		return 0, false
	}
	v, ok := t.Metadata[key].(float64)
	return v, ok
}
