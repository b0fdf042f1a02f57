// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

const validPolicyYAML = `activity_id: lab-3
max_help_level: low
block_complete_solutions: true
require_justification: true
allow_code_snippets: false
capstone: false
ai_dependency_threshold: 0.6
no_justification_threshold: 0.5
max_consecutive_no_work: 2
max_session_duration: 1h
`

func TestProvider_DefaultWhenNoDirectory(t *testing.T) {
	provider, err := NewProvider("", testLogger())
	require.NoError(t, err)

	policy, err := provider.PolicyFor("anything")
	require.NoError(t, err)
	assert.Equal(t, datatypes.DefaultPolicy("anything"), policy)
}

func TestProvider_DefaultWhenFileMissing(t *testing.T) {
	provider, err := NewProvider(t.TempDir(), testLogger())
	require.NoError(t, err)

	policy, err := provider.PolicyFor("no-file-here")
	require.NoError(t, err)
	assert.True(t, policy.BlockCompleteSolutions, "default policy must stay conservative")
}

func TestProvider_LoadsAndCachesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lab-3.yaml"), []byte(validPolicyYAML), 0644))
	provider, err := NewProvider(dir, testLogger())
	require.NoError(t, err)

	policy, err := provider.PolicyFor("lab-3")
	require.NoError(t, err)
	assert.Equal(t, datatypes.HelpLow, policy.MaxHelpLevel)
	assert.Equal(t, 0.6, policy.AIDependencyThreshold)

	// Cached: a deleted file must not affect subsequent reads.
	require.NoError(t, os.Remove(filepath.Join(dir, "lab-3.yaml")))
	cached, err := provider.PolicyFor("lab-3")
	require.NoError(t, err)
	assert.Equal(t, policy, cached)
}

func TestProvider_MalformedFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lab-3.yaml"), []byte("{not yaml"), 0644))
	provider, err := NewProvider(dir, testLogger())
	require.NoError(t, err)

	_, err = provider.PolicyFor("lab-3")
	assert.Error(t, err, "a broken policy must never fall back to a permissive default")
}

func TestProvider_MissingDirectoryIsAnError(t *testing.T) {
	_, err := NewProvider("/does/not/exist", testLogger())
	assert.Error(t, err)
}

func TestParsePolicy_ActivityIDMismatch(t *testing.T) {
	_, err := ParsePolicy([]byte(validPolicyYAML), "different-activity")
	assert.Error(t, err)
}

func TestParsePolicy_ValidationFailure(t *testing.T) {
	bad := `activity_id: lab-3
max_help_level: unlimited
max_consecutive_no_work: 2
`
	_, err := ParsePolicy([]byte(bad), "lab-3")
	assert.Error(t, err)
}
