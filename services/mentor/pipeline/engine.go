// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates one tutoring turn end to end: memory
// reconstruction, classification, governance, pedagogical rules,
// strategy selection, response generation, and trace recording, with
// asynchronous risk analysis triggered after the turn completes.
//
// The pipeline is stateless between requests. Everything it knows
// about a session comes from the trace store at the start of the turn
// and goes back into the trace store before the turn returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianMentor/services/mentor/classifier"
	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/memory"
	"github.com/AleutianAI/AleutianMentor/services/mentor/observability"
	"github.com/AleutianAI/AleutianMentor/services/mentor/responder"
	"github.com/AleutianAI/AleutianMentor/services/mentor/rules"
	"github.com/AleutianAI/AleutianMentor/services/mentor/semaphore"
	"github.com/AleutianAI/AleutianMentor/services/mentor/strategy"
)

// Pipeline error kinds the transport layer maps to status codes.
var (
	// ErrSessionClosed means the turn targeted a completed or aborted
	// session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrPolicyUnavailable means the activity's policy could not be
	// loaded. The pipeline refuses to run without one.
	ErrPolicyUnavailable = errors.New("policy unavailable")
)

// TraceStore is the persistence surface the pipeline writes turns to.
type TraceStore interface {
	Append(ctx context.Context, trace *datatypes.InteractionTrace) (int, error)
	LoadSequence(ctx context.Context, sessionID string) ([]*datatypes.InteractionTrace, error)
}

// SessionStore resolves and creates sessions.
type SessionStore interface {
	Ensure(ctx context.Context, sessionID, studentID, activityID string, mode datatypes.SessionMode) (*datatypes.Session, error)
}

// PolicySource resolves activity policies.
type PolicySource interface {
	PolicyFor(activityID string) (datatypes.PolicyConfig, error)
}

// AnalysisTrigger starts a risk analysis for a session. Implementations
// run detectors; the pipeline only fires and forgets.
type AnalysisTrigger interface {
	Analyze(ctx context.Context, sessionID string) (*datatypes.RiskReport, error)
}

// analysisTimeout bounds the detached analysis run after a turn.
const analysisTimeout = 30 * time.Second

// Engine wires the pipeline stages together.
type Engine struct {
	sessions   SessionStore
	traces     TraceStore
	loader     *memory.Loader
	classifier *classifier.Classifier
	semaphore  *semaphore.Semaphore
	rules      *rules.Engine
	strategy   func(datatypes.GovernanceAssessment, datatypes.ClassificationResult, strategy.SkillTier, datatypes.PolicyConfig) strategy.Plan
	generator  *responder.Generator
	policies   PolicySource
	analyst    AnalysisTrigger
	metrics    *observability.PipelineMetrics
	logger     *slog.Logger

	now func() time.Time
}

// Config collects the collaborators for NewEngine.
type Config struct {
	Sessions   SessionStore
	Traces     TraceStore
	Loader     *memory.Loader
	Classifier *classifier.Classifier
	Semaphore  *semaphore.Semaphore
	Rules      *rules.Engine
	Generator  *responder.Generator
	Policies   PolicySource
	Analyst    AnalysisTrigger
	Metrics    *observability.PipelineMetrics
	Logger     *slog.Logger
}

// NewEngine creates the pipeline engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		sessions:   cfg.Sessions,
		traces:     cfg.Traces,
		loader:     cfg.Loader,
		classifier: cfg.Classifier,
		semaphore:  cfg.Semaphore,
		rules:      cfg.Rules,
		strategy:   strategy.Select,
		generator:  cfg.Generator,
		policies:   cfg.Policies,
		analyst:    cfg.Analyst,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// ProcessTurn runs one student message through the full pipeline.
//
// Ordering guarantees:
//   - The input trace is persisted before any model call, so a crash
//     mid-generation never loses the student's message.
//   - The output trace is persisted before the result returns.
//   - Risk analysis runs detached after both traces are durable.
//
// The turn never fails because the model failed; it fails only on
// invalid input, a closed session, a missing policy, or storage errors.
func (e *Engine) ProcessTurn(ctx context.Context, req *datatypes.TurnRequest) (*datatypes.TurnResult, error) {
	started := e.now()
	tracer := otel.Tracer("mentor.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.process_turn")
	defer span.End()

	result, err := e.processTurn(ctx, span.SetAttributes, req)
	status := observability.TurnOK
	switch {
	case err != nil:
		status = observability.TurnError
		if errors.Is(err, ErrSessionClosed) || isValidation(err) {
			status = observability.TurnRejected
		}
	case len(result.Assessment.Restrictions) > 0 && result.Assessment.Color == datatypes.SemaphoreRed:
		status = observability.TurnVetoed
	}
	if e.metrics != nil {
		e.metrics.RecordTurn(status, e.now().Sub(started).Seconds())
	}
	return result, err
}

func isValidation(err error) bool {
	return errors.Is(err, datatypes.ErrInvalidRequest)
}

func (e *Engine) processTurn(ctx context.Context, setAttr func(...attribute.KeyValue), req *datatypes.TurnRequest) (*datatypes.TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	setAttr(attribute.String("mentor.session_id", req.SessionID))

	policy, err := e.policies.PolicyFor(req.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyUnavailable, err)
	}

	session, err := e.sessions.Ensure(ctx, req.SessionID, req.StudentID, req.ActivityID, datatypes.ModeTutor)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if session.Status != datatypes.SessionActive {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, session.SessionID, session.Status)
	}

	mem, err := e.loader.Load(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session memory: %w", err)
	}

	cls := e.classifier.Classify(req.Message, classifier.Context{
		DeclaredState:    req.DeclaredState,
		PriorAIResponses: mem.PriorAIResponses,
	})
	setAttr(attribute.String("mentor.intent", string(cls.Intent)))

	// The student's message becomes durable before anything can fail
	// downstream.
	inputTrace := e.buildInputTrace(req, cls)
	seq, err := e.traces.Append(ctx, inputTrace)
	if err != nil {
		return nil, fmt.Errorf("persist input trace: %w", err)
	}
	if seq < mem.NextSeq() {
		// Client retry: the input trace already existed. Serve the
		// stored response instead of generating a second one.
		if replayed := e.replayResult(req.SessionID, mem, seq); replayed != nil {
			return replayed, nil
		}
	}

	history := append(derefTraces(mem.Traces), *inputTrace)
	stats := semaphore.ComputeStats(history, semaphore.DefaultWindow)
	assessment := e.semaphore.Evaluate(req.Message, cls, stats, policy)
	setAttr(attribute.String("mentor.semaphore", string(assessment.Color)))
	if e.metrics != nil {
		e.metrics.RecordSemaphore(string(assessment.Color))
	}

	outcome := e.rules.Apply(rules.Input{
		Message:        req.Message,
		Classification: cls,
		Assessment:     assessment,
		Policy:         policy,
		History:        history,
	})
	if e.metrics != nil {
		for _, rule := range outcome.Fired {
			e.metrics.RecordRuleFiring(rule)
		}
	}

	tier := strategy.DeriveTier(stats)
	plan := e.strategy(assessment, cls, tier, policy)
	for _, mandate := range outcome.Mandates {
		plan.Instructions = append(plan.Instructions, mandate.Instruction)
	}

	var (
		response    string
		direction   = datatypes.DirectionAIResponse
		gen         responder.Result
		involvement float64
	)
	if outcome.Veto {
		// A vetoed turn never reaches the model; the rejection
		// template is the whole response.
		response = outcome.Response
		direction = datatypes.DirectionIntervention
	} else {
		gen = e.generator.Generate(ctx, plan, req.Message, mem.History)
		involvement = estimateInvolvement(req.Message, cls.Autonomy, gen.Text, gen)
		response = gen.Text
		for _, warning := range outcome.Warnings {
			response = warning + "\n\n" + response
		}
		if e.metrics != nil {
			e.metrics.RecordCacheLookup(gen.CacheHit)
			if gen.ModelFailed {
				e.metrics.RecordModelFailure()
			}
		}
	}

	outputTrace := e.buildOutputTrace(req.SessionID, response, direction, assessment, plan, outcome, gen, involvement)
	if _, err := e.traces.Append(ctx, outputTrace); err != nil {
		return nil, fmt.Errorf("persist output trace: %w", err)
	}

	e.triggerAnalysis(req.SessionID)

	return &datatypes.TurnResult{
		SessionID:    req.SessionID,
		InputTrace:   inputTrace.TraceID,
		OutputTrace:  outputTrace.TraceID,
		Response:     response,
		Assessment:   assessment,
		Intent:       cls.Intent,
		Directive:    string(plan.Directive),
		HelpLevel:    plan.HelpLevel,
		CacheHit:     gen.CacheHit,
		ModelFailed:  gen.ModelFailed,
		FallbackUsed: gen.FallbackUsed,
	}, nil
}

// replayResult rebuilds the original TurnResult from the stored input
// and output traces of a previous run. Returns nil when the output
// trace is missing, in which case the turn runs normally and produces
// one.
func (e *Engine) replayResult(sessionID string, mem *memory.SessionMemory, inputSeq int) *datatypes.TurnResult {
	var input, output *datatypes.InteractionTrace
	for _, t := range mem.Traces {
		switch t.Seq {
		case inputSeq:
			input = t
		case inputSeq + 1:
			output = t
		}
	}
	if input == nil || output == nil {
		return nil
	}

	assessment := datatypes.GovernanceAssessment{
		Color: datatypes.SemaphoreColor(output.MetaString(datatypes.MetaSemaphoreColor)),
	}
	for _, r := range output.MetaStrings(datatypes.MetaRestrictions) {
		assessment.Restrictions = append(assessment.Restrictions, datatypes.Restriction(r))
	}
	return &datatypes.TurnResult{
		SessionID:   sessionID,
		InputTrace:  input.TraceID,
		OutputTrace: output.TraceID,
		Response:    output.Content,
		Assessment:  assessment,
		Intent:      datatypes.Intent(input.MetaString(datatypes.MetaIntent)),
		Directive:   output.MetaString(datatypes.MetaDirective),
		CacheHit:    true,
		ModelFailed: output.MetaBool(datatypes.MetaModelCallFailed),
	}
}

func (e *Engine) buildInputTrace(req *datatypes.TurnRequest, cls datatypes.ClassificationResult) *datatypes.InteractionTrace {
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return &datatypes.InteractionTrace{
		TraceID:   traceID,
		SessionID: req.SessionID,
		Direction: datatypes.DirectionStudentPrompt,
		Content:   req.Message,
		State:     cls.State,
		Metadata: map[string]any{
			datatypes.MetaIntent:    string(cls.Intent),
			datatypes.MetaAutonomy:  cls.Autonomy,
			datatypes.MetaWorkShown: cls.WorkShown,
		},
		CreatedAtMs: e.now().UnixMilli(),
	}
}

// estimateInvolvement scores how much of a finished turn came from the
// model rather than the student: the response's share of the turn's
// content, discounted by the autonomy the student's message showed. A
// turn that showed work and reasoning scores low even when the answer
// is long; a bare delegation answered at length scores near 1.
// Fallback text carries no model work and scores zero.
func estimateInvolvement(message string, autonomy float64, response string, gen responder.Result) float64 {
	if gen.FallbackUsed || response == "" {
		return 0
	}
	respRunes := float64(utf8.RuneCountInString(response))
	msgRunes := float64(utf8.RuneCountInString(message))
	share := respRunes / (respRunes + msgRunes)
	return share * (1 - autonomy)
}

func (e *Engine) buildOutputTrace(
	sessionID, response string,
	direction datatypes.TraceDirection,
	assessment datatypes.GovernanceAssessment,
	plan strategy.Plan,
	outcome rules.Outcome,
	gen responder.Result,
	involvement float64,
) *datatypes.InteractionTrace {
	restrictions := make([]string, 0, len(assessment.Restrictions))
	for _, r := range assessment.Restrictions {
		restrictions = append(restrictions, string(r))
	}
	metadata := map[string]any{
		datatypes.MetaSemaphoreColor:  string(assessment.Color),
		datatypes.MetaRestrictions:    restrictions,
		datatypes.MetaDirective:       string(plan.Directive),
		datatypes.MetaModelCallFailed: gen.ModelFailed,
		datatypes.MetaCacheHit:        gen.CacheHit,
	}
	if len(outcome.Fired) > 0 {
		metadata[datatypes.MetaRuleTriggered] = outcome.Fired[0]
	}
	return &datatypes.InteractionTrace{
		TraceID:       uuid.NewString(),
		SessionID:     sessionID,
		Direction:     direction,
		Content:       response,
		AIInvolvement: involvement,
		Metadata:      metadata,
		CreatedAtMs:   e.now().UnixMilli(),
	}
}

// triggerAnalysis starts a detached risk analysis. The turn's context
// is already on its way back to the client, so the analysis gets its
// own deadline.
func (e *Engine) triggerAnalysis(sessionID string) {
	if e.analyst == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
		defer cancel()
		started := e.now()
		report, err := e.analyst.Analyze(ctx, sessionID)
		if err != nil {
			e.logger.Error("risk analysis failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			return
		}
		if e.metrics != nil {
			e.metrics.RecordAnalysis(e.now().Sub(started).Seconds())
		}
		e.logger.Info("risk analysis completed",
			slog.String("session_id", sessionID),
			slog.String("overall_severity", string(report.OverallSeverity)),
			slog.String("trend", string(report.Trend)))
	}()
}

func derefTraces(traces []*datatypes.InteractionTrace) []datatypes.InteractionTrace {
	out := make([]datatypes.InteractionTrace, 0, len(traces)+1)
	for _, t := range traces {
		out = append(out, *t)
	}
	return out
}
