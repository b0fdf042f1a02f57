// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicyFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPolicyCheckValidFile(t *testing.T) {
	path := writePolicyFile(t, "lab-3.yaml", `activity_id: lab-3
max_help_level: low
block_complete_solutions: true
require_justification: true
allow_code_snippets: false
capstone: false
ai_dependency_threshold: 0.6
no_justification_threshold: 0.5
max_consecutive_no_work: 2
max_session_duration: 1h
`)
	assert.NoError(t, runPolicyCheck(policyCheckCmd, []string{path}))
}

func TestPolicyCheckMalformedFile(t *testing.T) {
	path := writePolicyFile(t, "bad.yaml", "activity_id: [unclosed\n")
	assert.Error(t, runPolicyCheck(policyCheckCmd, []string{path}))
}

func TestPolicyCheckActivityMismatch(t *testing.T) {
	// File is named other.yaml but declares lab-3; the check must refuse it.
	path := writePolicyFile(t, "other.yaml", `activity_id: lab-3
max_help_level: low
`)
	assert.Error(t, runPolicyCheck(policyCheckCmd, []string{path}))
}

func TestPolicyCheckMissingFile(t *testing.T) {
	assert.Error(t, runPolicyCheck(policyCheckCmd, []string{"/no/such/file.yaml"}))
}
