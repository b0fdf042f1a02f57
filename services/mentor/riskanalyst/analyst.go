// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package riskanalyst scores sessions along five independent risk
// dimensions. Analysis runs asynchronously after turns and never sits
// on the request path; it reads the persisted trace sequence, writes
// risk findings and a report, and touches nothing else.
package riskanalyst

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/observability"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
)

// riskNamespace is the UUIDv5 namespace for risk and report IDs.
// Fixed forever: determinism of IDs across runs depends on it.
var riskNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// TraceSource is the slice of the trace store the analyst reads.
type TraceSource interface {
	LoadSequence(ctx context.Context, sessionID string) ([]*datatypes.InteractionTrace, error)
}

// SessionSource resolves session records.
type SessionSource interface {
	Get(ctx context.Context, sessionID string) (*datatypes.Session, error)
}

// RiskSink persists findings and reports.
type RiskSink interface {
	UpsertRisks(ctx context.Context, risks []*datatypes.Risk) error
	SaveReport(ctx context.Context, report *datatypes.RiskReport) error
}

// PolicySource resolves the governance policy for an activity.
type PolicySource interface {
	PolicyFor(activityID string) (datatypes.PolicyConfig, error)
}

// Analyst runs the detector fan-out over sessions.
//
// Concurrency: analyses of different sessions run in parallel;
// analyses of the same session are serialized, so two triggers for one
// session cannot interleave their writes.
type Analyst struct {
	traces   TraceSource
	sessions SessionSource
	sink     RiskSink
	policies PolicySource
	lib      *patterns.Library
	logger   *slog.Logger

	// Metrics is optional; when set, persisted findings are counted.
	Metrics *observability.PipelineMetrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewAnalyst creates an Analyst.
func NewAnalyst(traces TraceSource, sessions SessionSource, sink RiskSink, policies PolicySource, lib *patterns.Library, logger *slog.Logger) *Analyst {
	return &Analyst{
		traces:   traces,
		sessions: sessions,
		sink:     sink,
		policies: policies,
		lib:      lib,
		logger:   logger,
		locks:    map[string]*sync.Mutex{},
		now:      time.Now,
	}
}

func (a *Analyst) sessionLock(sessionID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[sessionID] = lock
	}
	return lock
}

// Analyze scores one session over its full trace sequence and persists
// the findings and a report.
//
// Detectors run concurrently and are isolated from each other: one
// failing or panicking detector is recorded in the report's
// DetectorFailures; the other dimensions still report. Risk and report
// IDs are deterministic over (session, finding type, window), so
// re-running the same window upserts rather than duplicates.
func (a *Analyst) Analyze(ctx context.Context, sessionID string) (*datatypes.RiskReport, error) {
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	traces, err := a.traces.LoadSequence(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load traces for %s: %w", sessionID, err)
	}
	policy, err := a.policies.PolicyFor(session.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("load policy for activity %s: %w", session.ActivityID, err)
	}

	nowMs := a.now().UnixMilli()
	in := detectorInput{
		session: session,
		traces:  traces,
		policy:  policy,
		lib:     a.lib,
		nowMs:   nowMs,
	}

	var resultMu sync.Mutex
	var risks []*datatypes.Risk
	failures := map[datatypes.RiskDimension]string{}

	g, _ := errgroup.WithContext(ctx)
	for dim, detect := range detectors {
		g.Go(func() error {
			found, detErr := runDetector(detect, in)
			resultMu.Lock()
			defer resultMu.Unlock()
			if detErr != nil {
				failures[dim] = detErr.Error()
				a.logger.Error("risk detector failed",
					slog.String("session_id", sessionID),
					slog.String("dimension", string(dim)),
					slog.String("error", detErr.Error()))
				return nil
			}
			risks = append(risks, found...)
			return nil
		})
	}
	// Detector errors are captured per-dimension, never propagated.
	_ = g.Wait()

	windowStart, windowEnd := 0, 0
	if len(traces) > 0 {
		windowStart = traces[0].Seq
		windowEnd = traces[len(traces)-1].Seq
	}
	windowKey := fmt.Sprintf("%d-%d", windowStart, windowEnd)
	for _, r := range risks {
		r.RiskID = riskID(sessionID, r.Type, windowKey)
	}
	pruneEvidence(risks, traces)

	overall := aggregateSeverity(risks)
	trend := computeTrend(traces)
	report := &datatypes.RiskReport{
		ReportID:         reportID(sessionID, windowKey),
		SessionID:        sessionID,
		WindowStartSeq:   windowStart,
		WindowEndSeq:     windowEnd,
		SeverityTotals:   severityTotals(risks),
		TypeDistribution: typeDistribution(risks),
		OverallSeverity:  overall,
		Assessment:       buildAssessment(overall, risks, trend),
		Interventions:    buildInterventions(risks),
		Trend:            trend,
		GeneratedAtMs:    nowMs,
	}
	if len(failures) > 0 {
		report.DetectorFailures = failures
	}

	if err := a.sink.UpsertRisks(ctx, risks); err != nil {
		return nil, fmt.Errorf("persist risks for %s: %w", sessionID, err)
	}
	if a.Metrics != nil {
		for _, r := range risks {
			a.Metrics.RecordRisk(string(r.Dimension), string(r.Severity))
		}
	}
	if err := a.sink.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persist report for %s: %w", sessionID, err)
	}
	return report, nil
}

// runDetector invokes one detector with panic isolation.
func runDetector(detect detectorFunc, in detectorInput) (risks []*datatypes.Risk, err error) {
	defer func() {
		if r := recover(); r != nil {
			risks = nil
			err = fmt.Errorf("detector panicked: %v", r)
		}
	}()
	return detect(in), nil
}

func riskID(sessionID string, typ datatypes.RiskType, windowKey string) string {
	return uuid.NewSHA1(riskNamespace, []byte(sessionID+"|"+string(typ)+"|"+windowKey)).String()
}

func reportID(sessionID, windowKey string) string {
	return uuid.NewSHA1(riskNamespace, []byte(sessionID+"|report|"+windowKey)).String()
}

func severityTotals(risks []*datatypes.Risk) map[datatypes.Severity]int {
	totals := map[datatypes.Severity]int{}
	for _, r := range risks {
		totals[r.Severity]++
	}
	return totals
}

func typeDistribution(risks []*datatypes.Risk) map[datatypes.RiskType]int {
	dist := map[datatypes.RiskType]int{}
	for _, r := range risks {
		dist[r.Type]++
	}
	return dist
}
