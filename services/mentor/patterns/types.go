// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// CatalogFile is the on-disk shape of a pattern catalog bundle. The
// version travels with the file so detectors can report which pattern
// vintage produced a finding.
type CatalogFile struct {
	Version  int       `yaml:"version"`
	Catalogs []Catalog `yaml:"catalogs"`
}

// Catalog is a named group of patterns sharing one detection concern
// (delegation phrases, plagiarism phrases, security smells, ...).
type Catalog struct {
	Name             string           `yaml:"name"`
	Description      string           `yaml:"description"`
	Priority         int              `yaml:"priority"`
	Patterns         []Pattern        `yaml:"patterns"`
	CompiledPatterns []*regexp.Regexp `yaml:"-"`
}

type Pattern struct {
	Id          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Regex       string          `yaml:"regex"`
	Confidence  ConfidenceLevel `yaml:"confidence"`

	// Concept names the underlying idea an error pattern points at
	// (invariants, coupling, complexity). Only set in error catalogs.
	Concept string `yaml:"concept,omitempty"`

	// Severity is set on security-smell patterns and copied onto the
	// risks they produce.
	Severity string `yaml:"severity,omitempty"`

	compiledPattern *regexp.Regexp `yaml:"-"`
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

// CompileRegexes compiles every pattern in every catalog. Called once at
// load; a single bad regex fails the whole file so a half-loaded catalog
// can never silently weaken detection.
func (f *CatalogFile) CompileRegexes() error {
	for i := range f.Catalogs {
		for j := range f.Catalogs[i].Patterns {
			pattern := &f.Catalogs[i].Patterns[j]
			re, err := regexp.Compile(pattern.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", pattern.Regex, err)
			}
			f.Catalogs[i].CompiledPatterns = append(f.Catalogs[i].CompiledPatterns, re)
			pattern.compiledPattern = re
		}
	}
	return nil
}

// SortByPriority orders catalogs from highest to lowest priority so
// first-match-wins scans respect the declared order.
func (f *CatalogFile) SortByPriority() {
	sort.Slice(f.Catalogs, func(i, j int) bool {
		return f.Catalogs[i].Priority > f.Catalogs[j].Priority
	})
}

// Match is one pattern hit inside a scanned text.
type Match struct {
	CatalogName string          `json:"catalog_name"`
	PatternId   string          `json:"pattern_id"`
	Matched     string          `json:"matched"`
	Confidence  ConfidenceLevel `json:"confidence"`
	Concept     string          `json:"concept,omitempty"`
	Severity    string          `json:"severity,omitempty"`
}
