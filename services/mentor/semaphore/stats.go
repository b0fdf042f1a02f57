// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semaphore

import (
	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

// DefaultWindow is how many recent assistant turns feed the rolling
// AI-involvement average.
const DefaultWindow = 5

// SessionStats is the rolling view of a session the semaphore decides
// on. It is a pure function of the persisted trace sequence: the
// original design kept these as in-process counters, which breaks the
// moment a second stateless instance serves the same session, so they
// are reconstructed on every call instead.
type SessionStats struct {
	// Turns is the total number of traces considered.
	Turns int

	// MeanAIInvolvement is the average AI-involvement ratio over the
	// most recent window of assistant responses.
	MeanAIInvolvement float64

	// InvolvementWindowFull reports whether a full window of assistant
	// responses fed MeanAIInvolvement. The dependency row of the
	// decision table only fires on a full window, so a single assisted
	// turn early in a session cannot trip it.
	InvolvementWindowFull bool

	// ConsecutiveNoWork counts how many student prompts in a row, up to
	// and including the latest, arrived without visible work.
	ConsecutiveNoWork int

	// DelegationAttempts counts student prompts classified as
	// delegation across the whole sequence.
	DelegationAttempts int

	// RedBlocks counts assistant turns that were produced under a red
	// semaphore.
	RedBlocks int

	// AutonomousTurns counts student prompts whose recorded autonomy
	// reached the skill threshold, over the recent window. Skill tier
	// derivation reads this.
	AutonomousTurns int
}

// autonomySkillThreshold is the recorded autonomy at or above which a
// student prompt counts as an autonomous success.
const autonomySkillThreshold = 0.7

// ComputeStats folds an ordered trace sequence into SessionStats.
// window bounds the rolling average; pass <= 0 for DefaultWindow.
func ComputeStats(traces []datatypes.InteractionTrace, window int) SessionStats {
	if window <= 0 {
		window = DefaultWindow
	}
	stats := SessionStats{Turns: len(traces)}

	// Rolling AI-involvement over the last `window` assistant turns.
	seen := 0
	sum := 0.0
	for i := len(traces) - 1; i >= 0 && seen < window; i-- {
		if traces[i].Direction != datatypes.DirectionAIResponse {
			continue
		}
		sum += traces[i].AIInvolvement
		seen++
	}
	if seen > 0 {
		stats.MeanAIInvolvement = sum / float64(seen)
	}
	stats.InvolvementWindowFull = seen >= window

	// Consecutive prompts without visible work, newest first.
	for i := len(traces) - 1; i >= 0; i-- {
		t := traces[i]
		if t.Direction != datatypes.DirectionStudentPrompt {
			continue
		}
		if t.MetaBool(datatypes.MetaWorkShown) {
			break
		}
		stats.ConsecutiveNoWork++
	}

	// Whole-sequence counters.
	promptsSeen := 0
	for i := len(traces) - 1; i >= 0; i-- {
		t := traces[i]
		switch t.Direction {
		case datatypes.DirectionStudentPrompt:
			if t.MetaString(datatypes.MetaIntent) == string(datatypes.IntentDelegation) {
				stats.DelegationAttempts++
			}
			if promptsSeen < window {
				if autonomy, ok := t.Metadata[datatypes.MetaAutonomy].(float64); ok &&
					autonomy >= autonomySkillThreshold {
					stats.AutonomousTurns++
				}
			}
			promptsSeen++
		case datatypes.DirectionAIResponse:
			if t.MetaString(datatypes.MetaSemaphoreColor) == string(datatypes.SemaphoreRed) {
				stats.RedBlocks++
			}
		}
	}
	return stats
}
