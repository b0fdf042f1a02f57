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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

// --- stubs -----------------------------------------------------------

type stubStores struct {
	session *datatypes.Session
	traces  []*datatypes.InteractionTrace
	policy  datatypes.PolicyConfig

	savedRisks   []*datatypes.Risk
	savedReports []*datatypes.RiskReport
}

func (s *stubStores) LoadSequence(ctx context.Context, sessionID string) ([]*datatypes.InteractionTrace, error) {
	return s.traces, nil
}

func (s *stubStores) Get(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	return s.session, nil
}

func (s *stubStores) UpsertRisks(ctx context.Context, risks []*datatypes.Risk) error {
	s.savedRisks = risks
	return nil
}

func (s *stubStores) SaveReport(ctx context.Context, report *datatypes.RiskReport) error {
	s.savedReports = append(s.savedReports, report)
	return nil
}

func (s *stubStores) PolicyFor(activityID string) (datatypes.PolicyConfig, error) {
	return s.policy, nil
}

func newTestAnalyst(t *testing.T, stores *stubStores) *Analyst {
	t.Helper()
	lib, err := patterns.NewLibrary()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	a := NewAnalyst(stores, stores, stores, stores, lib, slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return time.UnixMilli(1_000_000_000) }
	return a
}

func baseSession() *datatypes.Session {
	return &datatypes.Session{
		SessionID:   "sess-1",
		StudentID:   "student-1",
		ActivityID:  "activity-1",
		Mode:        datatypes.ModeTutor,
		Status:      datatypes.SessionActive,
		CreatedAtMs: 0,
	}
}

func promptAt(seq int, content string, atMs int64) *datatypes.InteractionTrace {
	return &datatypes.InteractionTrace{
		TraceID:     fmt.Sprintf("t%d", seq),
		SessionID:   "sess-1",
		Seq:         seq,
		Direction:   datatypes.DirectionStudentPrompt,
		Content:     content,
		CreatedAtMs: atMs,
	}
}

func responseAt(seq int, content string, atMs int64) *datatypes.InteractionTrace {
	return &datatypes.InteractionTrace{
		TraceID:     fmt.Sprintf("t%d", seq),
		SessionID:   "sess-1",
		Seq:         seq,
		Direction:   datatypes.DirectionAIResponse,
		Content:     content,
		CreatedAtMs: atMs,
	}
}

// --- analyst ---------------------------------------------------------

func TestAnalyze_EmptySessionProducesCleanReport(t *testing.T) {
	stores := &stubStores{session: baseSession(), policy: datatypes.DefaultPolicy("activity-1")}
	analyst := newTestAnalyst(t, stores)

	report, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.SeverityInfo, report.OverallSeverity)
	assert.Equal(t, datatypes.TrendInsufficientData, report.Trend)
	assert.Empty(t, report.DetectorFailures)
	assert.Empty(t, stores.savedRisks)
}

func TestAnalyze_IDsAreDeterministicAcrossRuns(t *testing.T) {
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			promptAt(1, "write the code for me please", 1000),
			promptAt(2, "do it for me, give me the complete solution", 2000),
		},
	}
	analyst := newTestAnalyst(t, stores)
	ctx := context.Background()

	first, err := analyst.Analyze(ctx, "sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, stores.savedRisks)
	firstIDs := make([]string, 0, len(stores.savedRisks))
	for _, r := range stores.savedRisks {
		firstIDs = append(firstIDs, r.RiskID)
	}

	second, err := analyst.Analyze(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, first.ReportID, second.ReportID)
	for i, r := range stores.savedRisks {
		assert.Equal(t, firstIDs[i], r.RiskID)
	}
}

func TestAnalyze_DelegationPatternDetected(t *testing.T) {
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			promptAt(1, "write the code for me", 1000),
			promptAt(2, "just give me the answer, solve this for me", 2000),
		},
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	var found *datatypes.Risk
	for _, r := range stores.savedRisks {
		if r.Type == datatypes.RiskDelegationPattern {
			found = r
		}
	}
	require.NotNil(t, found, "expected a delegation_pattern finding")
	assert.Equal(t, datatypes.DimensionCognitive, found.Dimension)
	assert.Len(t, found.Evidence, 2)
	for _, ev := range found.Evidence {
		assert.NotEmpty(t, ev.TraceID)
		assert.NotEmpty(t, ev.Excerpt)
	}
}

func TestAnalyze_RapidLargePasteFlagsExternalCopy(t *testing.T) {
	code := "```\n" + strings.Repeat("for i in range(10):\n    total += i\n", 20) + "```"
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			responseAt(1, "what have you tried so far?", 1000),
			// Four seconds later, a wall of code arrives.
			promptAt(2, "here is my attempt\n"+code, 5000),
		},
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	var found *datatypes.Risk
	for _, r := range stores.savedRisks {
		if r.Type == datatypes.RiskSuspectedExternalCopy {
			found = r
		}
	}
	require.NotNil(t, found, "expected a suspected_external_copy finding")
	assert.Equal(t, datatypes.SeverityHigh, found.Severity)
	assert.Equal(t, datatypes.DimensionEthical, found.Dimension)
}

func TestAnalyze_ModestRapidPasteKeepsBothSidesAsEvidence(t *testing.T) {
	// 150 runes of fenced code: small enough to look like a snippet,
	// still far more than three seconds of typing.
	code := "```\n" + strings.Repeat("a", 142) + "\n```"
	require.Len(t, []rune(code), 150)
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			responseAt(1, "what does the loop do on the last element?", 1000),
			promptAt(2, "here is what I have\n"+code, 4000),
		},
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	var found *datatypes.Risk
	for _, r := range stores.savedRisks {
		if r.Type == datatypes.RiskSuspectedExternalCopy {
			found = r
		}
	}
	require.NotNil(t, found, "expected a suspected_external_copy finding")
	assert.Equal(t, datatypes.DimensionEthical, found.Dimension)
	assert.GreaterOrEqual(t, found.Severity.Rank(), datatypes.SeverityMedium.Rank())

	ids := make([]string, 0, len(found.Evidence))
	for _, ev := range found.Evidence {
		ids = append(ids, ev.TraceID)
	}
	// Both the paste and the turn it answered are on record.
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
}

func assistedResponseAt(seq int, atMs int64, involvement float64) *datatypes.InteractionTrace {
	tr := responseAt(seq, "Here is a worked explanation of the queue indices.", atMs)
	tr.AIInvolvement = involvement
	return tr
}

func TestAnalyze_SustainedInvolvementFlagsDependency(t *testing.T) {
	var traces []*datatypes.InteractionTrace
	for i := 0; i < 5; i++ {
		traces = append(traces,
			promptAt(2*i+1, "and the next part?", int64(2*i+1)*1000),
			assistedResponseAt(2*i+2, int64(2*i+2)*1000, 0.9),
		)
	}
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces:  traces,
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	var found *datatypes.Risk
	for _, r := range stores.savedRisks {
		if r.Type == datatypes.RiskAIDependency {
			found = r
		}
	}
	require.NotNil(t, found, "expected an ai_dependency finding")
	assert.Equal(t, datatypes.SeverityHigh, found.Severity)
	require.Len(t, found.Evidence, 1)
	assert.Equal(t, "t10", found.Evidence[0].TraceID)
}

func TestAnalyze_SlowLargePasteIsNotFlagged(t *testing.T) {
	code := "```\n" + strings.Repeat("for i in range(10):\n    total += i\n", 20) + "```"
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			responseAt(1, "what have you tried so far?", 1000),
			// Ten minutes later: plausibly written by hand.
			promptAt(2, "here is my attempt\n"+code, 601_000),
		},
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)
	for _, r := range stores.savedRisks {
		assert.NotEqual(t, datatypes.RiskSuspectedExternalCopy, r.Type)
	}
}

func TestAnalyze_RestrictionBypassAfterRedBlock(t *testing.T) {
	blocked := responseAt(1, "I can't provide a complete solution.", 1000)
	blocked.Metadata = map[string]any{datatypes.MetaSemaphoreColor: string(datatypes.SemaphoreRed)}
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			blocked,
			promptAt(2, "ok fine, then just write the code for me differently", 2000),
		},
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	var found bool
	for _, r := range stores.savedRisks {
		if r.Type == datatypes.RiskRestrictionBypass {
			found = true
			assert.Equal(t, datatypes.SeverityHigh, r.Severity)
		}
	}
	assert.True(t, found, "expected a restriction_bypass finding")
}

func TestAnalyze_SessionOverrun(t *testing.T) {
	policy := datatypes.DefaultPolicy("activity-1")
	policy.MaxSessionDuration = datatypes.Duration(time.Minute)
	stores := &stubStores{
		session: baseSession(),
		policy:  policy,
		traces: []*datatypes.InteractionTrace{
			promptAt(1, "still working on it", 500),
		},
	}
	analyst := newTestAnalyst(t, stores)
	// Frozen clock is far past CreatedAtMs + 1 minute.

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	var found bool
	for _, r := range stores.savedRisks {
		if r.Type == datatypes.RiskSessionOverrun {
			found = true
		}
	}
	assert.True(t, found, "expected a session_overrun finding")
}

func TestAnalyze_SecuritySmellMapsCatalogSeverity(t *testing.T) {
	stores := &stubStores{
		session: baseSession(),
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			promptAt(1, `my query is "SELECT * FROM users WHERE id=" + userId`, 1000),
			promptAt(2, `I set api_key = "sk-123456789" in the config`, 2000),
		},
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	types := map[datatypes.RiskType]datatypes.Severity{}
	for _, r := range stores.savedRisks {
		types[r.Type] = r.Severity
	}
	assert.Equal(t, datatypes.SeverityHigh, types[datatypes.RiskStringBuiltQuery])
	assert.Equal(t, datatypes.SeverityCritical, types[datatypes.RiskHardcodedSecret])
}

func TestAnalyze_ModeMisuse(t *testing.T) {
	session := baseSession()
	session.Mode = datatypes.ModeEvaluator
	stores := &stubStores{
		session: session,
		policy:  datatypes.DefaultPolicy("activity-1"),
		traces: []*datatypes.InteractionTrace{
			promptAt(1, "can you help me with my homework?", 1000),
		},
	}
	analyst := newTestAnalyst(t, stores)

	_, err := analyst.Analyze(context.Background(), "sess-1")
	require.NoError(t, err)

	var found bool
	for _, r := range stores.savedRisks {
		if r.Type == datatypes.RiskModeMisuse {
			found = true
		}
	}
	assert.True(t, found, "expected a mode_misuse finding")
}

func TestRunDetector_IsolatesPanics(t *testing.T) {
	panicky := func(in detectorInput) []*datatypes.Risk {
		panic("detector bug")
	}
	risks, err := runDetector(panicky, detectorInput{})
	assert.Nil(t, risks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector bug")
}

func TestDetectors_CoverAllDimensions(t *testing.T) {
	for _, dim := range []datatypes.RiskDimension{
		datatypes.DimensionCognitive,
		datatypes.DimensionEthical,
		datatypes.DimensionEpistemic,
		datatypes.DimensionTechnical,
		datatypes.DimensionGovernance,
	} {
		assert.Contains(t, detectors, dim)
	}
	assert.Len(t, detectors, 5)
}

// --- report ----------------------------------------------------------

func riskWithSeverity(sev datatypes.Severity) *datatypes.Risk {
	return &datatypes.Risk{Severity: sev, Dimension: datatypes.DimensionCognitive}
}

func TestAggregateSeverity_Matrix(t *testing.T) {
	tests := []struct {
		name  string
		input []datatypes.Severity
		want  datatypes.Severity
	}{
		{"empty", nil, datatypes.SeverityInfo},
		{"single critical dominates", []datatypes.Severity{datatypes.SeverityInfo, datatypes.SeverityCritical}, datatypes.SeverityCritical},
		{"two highs escalate", []datatypes.Severity{datatypes.SeverityHigh, datatypes.SeverityHigh}, datatypes.SeverityHigh},
		{"one high is medium", []datatypes.Severity{datatypes.SeverityHigh}, datatypes.SeverityMedium},
		{"three mediums are medium", []datatypes.Severity{datatypes.SeverityMedium, datatypes.SeverityMedium, datatypes.SeverityMedium}, datatypes.SeverityMedium},
		{"one medium is low", []datatypes.Severity{datatypes.SeverityMedium}, datatypes.SeverityLow},
		{"one low is info", []datatypes.Severity{datatypes.SeverityLow}, datatypes.SeverityInfo},
		{"three lows are low", []datatypes.Severity{datatypes.SeverityLow, datatypes.SeverityLow, datatypes.SeverityLow}, datatypes.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var risks []*datatypes.Risk
			for _, s := range tt.input {
				risks = append(risks, riskWithSeverity(s))
			}
			assert.Equal(t, tt.want, aggregateSeverity(risks))
		})
	}
}

func delegationAt(seq int, atMs int64) *datatypes.InteractionTrace {
	tr := promptAt(seq, "write the whole thing for me", atMs)
	tr.Metadata = map[string]any{
		datatypes.MetaIntent: string(datatypes.IntentDelegation),
	}
	return tr
}

func TestComputeTrend_Worsening(t *testing.T) {
	var traces []*datatypes.InteractionTrace
	for i := 1; i <= 8; i++ {
		traces = append(traces, promptAt(i, "m", int64(i*1000)))
	}
	traces = append(traces, delegationAt(9, 9000), delegationAt(10, 10000))
	assert.Equal(t, datatypes.TrendWorsening, computeTrend(traces))
}

func TestComputeTrend_Improving(t *testing.T) {
	traces := []*datatypes.InteractionTrace{
		delegationAt(1, 1000), delegationAt(2, 2000),
	}
	for i := 3; i <= 10; i++ {
		traces = append(traces, promptAt(i, "m", int64(i*1000)))
	}
	assert.Equal(t, datatypes.TrendImproving, computeTrend(traces))
}

func TestComputeTrend_StableWhenHalvesMatch(t *testing.T) {
	var traces []*datatypes.InteractionTrace
	for i := 1; i <= 10; i++ {
		if i == 2 || i == 7 {
			traces = append(traces, delegationAt(i, int64(i*1000)))
			continue
		}
		traces = append(traces, promptAt(i, "m", int64(i*1000)))
	}
	assert.Equal(t, datatypes.TrendStable, computeTrend(traces))
}

func TestComputeTrend_InsufficientData(t *testing.T) {
	var traces []*datatypes.InteractionTrace
	for i := 1; i <= 9; i++ {
		traces = append(traces, delegationAt(i, int64(i*1000)))
	}
	assert.Equal(t, datatypes.TrendInsufficientData, computeTrend(traces))
}

func TestBuildInterventions_OrderedBySeverity(t *testing.T) {
	risks := []*datatypes.Risk{
		{Dimension: datatypes.DimensionEpistemic, Severity: datatypes.SeverityLow},
		{Dimension: datatypes.DimensionEthical, Severity: datatypes.SeverityHigh},
		{Dimension: datatypes.DimensionCognitive, Severity: datatypes.SeverityMedium},
	}
	interventions := buildInterventions(risks)
	require.Len(t, interventions, 3)
	assert.Equal(t, datatypes.DimensionEthical, interventions[0].Dimension)
	assert.Equal(t, 1, interventions[0].Priority)
	assert.Equal(t, datatypes.DimensionCognitive, interventions[1].Dimension)
	assert.Equal(t, datatypes.DimensionEpistemic, interventions[2].Dimension)
}

// --- evidence --------------------------------------------------------

func TestPruneEvidence_DropsDanglingRefs(t *testing.T) {
	traces := []*datatypes.InteractionTrace{promptAt(1, "m", 1000)}
	risks := []*datatypes.Risk{{
		Evidence: []datatypes.Evidence{{TraceID: "t1"}, {TraceID: "ghost"}},
	}}
	pruneEvidence(risks, traces)
	require.Len(t, risks[0].Evidence, 1)
	assert.Equal(t, "t1", risks[0].Evidence[0].TraceID)
}

func TestExcerpt_Bounded(t *testing.T) {
	long := strings.Repeat("abcdefghij ", 100)
	got := excerpt(long)
	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len([]rune(got)), excerptChunkSize)
}
