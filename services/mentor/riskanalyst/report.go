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
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

// aggregateSeverity folds individual findings into one overall level.
//
// The matrix errs toward escalation at the top and toward calm at the
// bottom: a single critical finding dominates everything, while a lone
// low-severity finding stays informational.
func aggregateSeverity(risks []*datatypes.Risk) datatypes.Severity {
	counts := map[datatypes.Severity]int{}
	for _, r := range risks {
		counts[r.Severity]++
	}
	switch {
	case counts[datatypes.SeverityCritical] > 0:
		return datatypes.SeverityCritical
	case counts[datatypes.SeverityHigh] >= 2:
		return datatypes.SeverityHigh
	case counts[datatypes.SeverityHigh] == 1, counts[datatypes.SeverityMedium] >= 3:
		return datatypes.SeverityMedium
	case counts[datatypes.SeverityMedium] >= 1, counts[datatypes.SeverityLow] >= 3:
		return datatypes.SeverityLow
	default:
		return datatypes.SeverityInfo
	}
}

// minTracesForTrend is the floor below which halves are too small to
// compare honestly.
const minTracesForTrend = 10

// computeTrend splits the trace sequence at its midpoint and compares
// delegation attempts between the halves. Fewer attempts late in the
// session means the student is reclaiming the work.
func computeTrend(traces []*datatypes.InteractionTrace) datatypes.Trend {
	if len(traces) < minTracesForTrend {
		return datatypes.TrendInsufficientData
	}
	mid := len(traces) / 2
	count := func(half []*datatypes.InteractionTrace) int {
		n := 0
		for _, t := range half {
			if t.Direction == datatypes.DirectionStudentPrompt &&
				t.MetaString(datatypes.MetaIntent) == string(datatypes.IntentDelegation) {
				n++
			}
		}
		return n
	}
	first, second := count(traces[:mid]), count(traces[mid:])
	switch {
	case second < first:
		return datatypes.TrendImproving
	case second > first:
		return datatypes.TrendWorsening
	default:
		return datatypes.TrendStable
	}
}

// interventionActions are the per-dimension recommendations surfaced to
// instructors when that dimension carries findings.
var interventionActions = map[datatypes.RiskDimension]string{
	datatypes.DimensionCognitive:  "Schedule an unassisted exercise and review the student's recent reasoning with them.",
	datatypes.DimensionEthical:    "Have the student explain the provenance of recently submitted code, line by line.",
	datatypes.DimensionEpistemic:  "Require a written prediction-and-check for the next AI answer the student receives.",
	datatypes.DimensionTechnical:  "Walk through the flagged constructs and have the student propose safer alternatives.",
	datatypes.DimensionGovernance: "Review this session's governance log with the student and restate the activity rules.",
}

// buildInterventions produces one ranked intervention per dimension
// that has findings, most severe dimension first. Ordering is total:
// ties on severity break on dimension name so re-runs emit identical
// reports.
func buildInterventions(risks []*datatypes.Risk) []datatypes.Intervention {
	maxSev := map[datatypes.RiskDimension]datatypes.Severity{}
	for _, r := range risks {
		if cur, ok := maxSev[r.Dimension]; !ok || r.Severity.Rank() > cur.Rank() {
			maxSev[r.Dimension] = r.Severity
		}
	}
	dims := make([]datatypes.RiskDimension, 0, len(maxSev))
	for d := range maxSev {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool {
		ri, rj := maxSev[dims[i]].Rank(), maxSev[dims[j]].Rank()
		if ri != rj {
			return ri > rj
		}
		return dims[i] < dims[j]
	})

	interventions := make([]datatypes.Intervention, 0, len(dims))
	for i, d := range dims {
		interventions = append(interventions, datatypes.Intervention{
			Priority:  i + 1,
			Dimension: d,
			Action:    interventionActions[d],
		})
	}
	return interventions
}

// buildAssessment writes the one-paragraph narrative for a report.
func buildAssessment(overall datatypes.Severity, risks []*datatypes.Risk, trend datatypes.Trend) string {
	if len(risks) == 0 {
		return "No risks detected in this window. The student is working within the activity's guardrails."
	}
	byDim := map[datatypes.RiskDimension]int{}
	for _, r := range risks {
		byDim[r.Dimension]++
	}
	parts := make([]string, 0, len(byDim))
	for _, d := range []datatypes.RiskDimension{
		datatypes.DimensionCognitive,
		datatypes.DimensionEthical,
		datatypes.DimensionEpistemic,
		datatypes.DimensionTechnical,
		datatypes.DimensionGovernance,
	} {
		if n := byDim[d]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, d))
		}
	}
	return fmt.Sprintf("Overall severity %s across %d finding(s) (%s); trend is %s.",
		overall, len(risks), strings.Join(parts, ", "), trend)
}
