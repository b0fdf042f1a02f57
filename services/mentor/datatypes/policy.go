// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings such as
// "90m" or "2h", and also accepts raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string like \"2h\" or an integer")
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats the duration in standard Go notation.
func (d Duration) String() string { return time.Duration(d).String() }

// HelpLevel bounds how much structural support a response may contain.
type HelpLevel string

const (
	HelpNone   HelpLevel = "none"
	HelpLow    HelpLevel = "low"
	HelpMedium HelpLevel = "medium"
	HelpHigh   HelpLevel = "high"
)

var helpRank = map[HelpLevel]int{
	HelpNone:   0,
	HelpLow:    1,
	HelpMedium: 2,
	HelpHigh:   3,
}

// Rank returns the numeric rank of a help level for comparisons.
func (h HelpLevel) Rank() int { return helpRank[h] }

// Min returns the lower of two help levels.
func (h HelpLevel) Min(other HelpLevel) HelpLevel {
	if other.Rank() < h.Rank() {
		return other
	}
	return h
}

// PolicyConfig is the per-activity governance configuration. Loaded once
// per activity, immutable for the duration of a session, and treated as
// pure input by the semaphore and rule engine. The pipeline refuses to
// run a turn without one: the rule engine has no safe permissive default.
type PolicyConfig struct {
	ActivityID string `yaml:"activity_id" json:"activity_id" validate:"required"`

	MaxHelpLevel           HelpLevel `yaml:"max_help_level" json:"max_help_level" validate:"required,oneof=none low medium high"`
	BlockCompleteSolutions bool      `yaml:"block_complete_solutions" json:"block_complete_solutions"`
	RequireJustification   bool      `yaml:"require_justification" json:"require_justification"`
	AllowCodeSnippets      bool      `yaml:"allow_code_snippets" json:"allow_code_snippets"`

	// Capstone marks advanced integrative activities. It is the only
	// configuration that softens the anti-direct-solution rule, and it
	// degrades the rule to a warning rather than disabling it.
	Capstone bool `yaml:"capstone" json:"capstone"`

	// AIDependencyThreshold is the rolling mean AI-involvement above
	// which the semaphore degrades to yellow.
	AIDependencyThreshold float64 `yaml:"ai_dependency_threshold" json:"ai_dependency_threshold" validate:"gte=0,lte=1"`

	// NoJustificationThreshold is the minimum acceptable ratio of
	// justified design decisions, used by the cognitive risk detector.
	NoJustificationThreshold float64 `yaml:"no_justification_threshold" json:"no_justification_threshold" validate:"gte=0,lte=1"`

	// MaxConsecutiveNoWork is how many consecutive prompts without
	// visible student work the semaphore tolerates before yellow.
	MaxConsecutiveNoWork int `yaml:"max_consecutive_no_work" json:"max_consecutive_no_work" validate:"gte=1"`

	// MaxSessionDuration caps a session before the governance detector
	// flags an overrun.
	MaxSessionDuration Duration `yaml:"max_session_duration" json:"max_session_duration"`
}

var policyValidate = validator.New()

// Validate checks structural and range constraints on the policy.
func (p *PolicyConfig) Validate() error {
	if err := policyValidate.Struct(p); err != nil {
		return fmt.Errorf("policy %q failed validation: %w", p.ActivityID, err)
	}
	if p.MaxSessionDuration < 0 {
		return fmt.Errorf("policy %q has a negative max_session_duration", p.ActivityID)
	}
	return nil
}

// DefaultPolicy returns the conservative policy applied when an activity
// has no explicit configuration file.
func DefaultPolicy(activityID string) PolicyConfig {
	return PolicyConfig{
		ActivityID:               activityID,
		MaxHelpLevel:             HelpMedium,
		BlockCompleteSolutions:   true,
		RequireJustification:     true,
		AllowCodeSnippets:        false,
		AIDependencyThreshold:    0.7,
		NoJustificationThreshold: 0.5,
		MaxConsecutiveNoWork:     3,
		MaxSessionDuration:       Duration(2 * time.Hour),
	}
}
