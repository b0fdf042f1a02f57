// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semaphore implements the governance/risk traffic light (GSR).
// Given one classified message, the rolling session statistics, and the
// activity policy, it yields a color plus the restriction set for the
// turn. The decision table is ordered and first-match-wins; more severe
// rows sit above less severe ones, so the worst applicable state always
// wins. Code generation is not in the table at all: no color ever
// permits raw solution code.
package semaphore

import (
	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

// Rule ids recorded on assessments for audit.
const (
	RulePlagiarism     = "plagiarism_keyword"
	RuleDelegation     = "delegation_blocked"
	RuleHighDependency = "high_ai_dependency"
	RuleNoWorkShown    = "no_work_shown"
	RuleDefault        = "default_green"
)

// Semaphore evaluates the governance decision table.
type Semaphore struct {
	lib *patterns.Library
}

// New returns a semaphore over the given pattern library.
func New(lib *patterns.Library) *Semaphore {
	return &Semaphore{lib: lib}
}

// Evaluate runs the decision table. Rows, in order:
//
//  1. plagiarism keyword match                        -> RED
//  2. delegation + blocked solutions                  -> RED
//  3. full window of dependency above threshold       -> YELLOW
//  4. consecutive no-work at the maximum              -> YELLOW
//  5. default                                         -> GREEN
//
// When rows 1 and 2 both match, row 1 supplies the rule id and the
// restriction sets merge, so the stricter obligations of both apply.
func (s *Semaphore) Evaluate(
	message string,
	cls datatypes.ClassificationResult,
	stats SessionStats,
	policy datatypes.PolicyConfig,
) datatypes.GovernanceAssessment {

	plagiarized := s.lib.Matches("plagiarism", message)
	delegationBlocked := cls.Delegation && policy.BlockCompleteSolutions

	if plagiarized {
		restrictions := []datatypes.Restriction{
			datatypes.RestrictBlockCodeGeneration,
			datatypes.RestrictEducativeWarning,
		}
		if delegationBlocked {
			restrictions = append(restrictions, datatypes.RestrictRequireJustification)
		}
		return datatypes.GovernanceAssessment{
			Color:        datatypes.SemaphoreRed,
			Restrictions: restrictions,
			Warning: "This request asks for finished work to hand in. Producing it would " +
				"undermine the learning goal of the activity, so the assistant will guide " +
				"you through the reasoning instead.",
			RuleID: RulePlagiarism,
		}
	}

	if delegationBlocked {
		return datatypes.GovernanceAssessment{
			Color: datatypes.SemaphoreRed,
			Restrictions: []datatypes.Restriction{
				datatypes.RestrictBlockCodeGeneration,
				datatypes.RestrictRequireJustification,
			},
			Warning: "Complete solutions are blocked for this activity. Expect guiding " +
				"questions rather than finished code.",
			RuleID: RuleDelegation,
		}
	}

	if stats.InvolvementWindowFull && stats.MeanAIInvolvement > policy.AIDependencyThreshold {
		return datatypes.GovernanceAssessment{
			Color: datatypes.SemaphoreYellow,
			Restrictions: []datatypes.Restriction{
				datatypes.RestrictReduceHelpLevel,
				datatypes.RestrictIncreaseQuestions,
			},
			Warning: "Recent turns have leaned heavily on the assistant. Help is reduced " +
				"for a while so you can consolidate the work yourself.",
			RuleID: RuleHighDependency,
		}
	}

	if policy.MaxConsecutiveNoWork > 0 && stats.ConsecutiveNoWork >= policy.MaxConsecutiveNoWork {
		return datatypes.GovernanceAssessment{
			Color: datatypes.SemaphoreYellow,
			Restrictions: []datatypes.Restriction{
				datatypes.RestrictRequireWorkShown,
			},
			Warning: "Several questions have arrived without any of your own work attached. " +
				"Share what you have tried so far to unlock more help.",
			RuleID: RuleNoWorkShown,
		}
	}

	return datatypes.GovernanceAssessment{
		Color:  datatypes.SemaphoreGreen,
		RuleID: RuleDefault,
	}
}
