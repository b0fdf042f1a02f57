// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package responder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/strategy"
)

const (
	// DefaultModelTimeout caps one generation attempt. The student is
	// waiting; a turn that exceeds this gets the fallback instead.
	DefaultModelTimeout = 20 * time.Second

	// defaultModelRPS limits outbound model calls per second.
	defaultModelRPS = 5

	generationMaxTokens = 1024
)

// generationTemperature is low on purpose: tutoring responses should be
// stable for identical inputs, which also keeps the cache honest.
var generationTemperature = float32(0.4)

// Result is the outcome of generating one response.
type Result struct {
	Text         string
	CacheHit     bool
	ModelFailed  bool
	FallbackUsed bool
}

// Generator produces tutoring responses from strategy plans. It never
// returns an error for a turn: model failures degrade to the fallback
// text and are reported through the Result flags.
type Generator struct {
	client  llm.LLMClient
	cache   *Cache
	flight  singleflight.Group
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout overrides the per-call model timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit overrides the outbound calls-per-second limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Generator) {
		if rps > 0 && burst > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithCache installs a shared cache instead of the default one.
func WithCache(cache *Cache) Option {
	return func(g *Generator) {
		if cache != nil {
			g.cache = cache
		}
	}
}

// NewGenerator creates a Generator over the given model client.
func NewGenerator(client llm.LLMClient, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		client:  client,
		cache:   NewCache(DefaultMaxEntries, DefaultTTL),
		limiter: rate.NewLimiter(rate.Limit(defaultModelRPS), defaultModelRPS*2),
		timeout: DefaultModelTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the response for one turn.
//
// Identical (plan, message, history) triples hit the cache; concurrent
// identical misses collapse into a single model call. Failures of any
// kind, including timeout and rate-limiter cancellation, yield the
// deterministic fallback for the plan's directive. Fallback text is
// never cached, so a healthy model serves the next identical request.
func (g *Generator) Generate(ctx context.Context, plan strategy.Plan, message string, history []llm.Message) Result {
	tracer := otel.Tracer("mentor.responder")
	ctx, span := tracer.Start(ctx, "responder.generate")
	defer span.End()

	key := CacheKey(plan, message, history)
	span.SetAttributes(attribute.String("mentor.cache_key", key[:12]))

	if text, ok := g.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("mentor.cache_hit", true))
		return Result{Text: text, CacheHit: true}
	}

	text, err, _ := g.flight.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have
		// populated the cache while this one waited.
		if cached, ok := g.cache.Get(key); ok {
			return cached, nil
		}
		return g.callModel(ctx, plan, message, history, key)
	})
	if err != nil {
		g.logger.Warn("model call failed, serving fallback",
			slog.String("directive", string(plan.Directive)),
			slog.String("error", err.Error()))
		span.SetAttributes(attribute.Bool("mentor.model_failed", true))
		return Result{
			Text:         FallbackText(plan),
			ModelFailed:  true,
			FallbackUsed: true,
		}
	}
	return Result{Text: text.(string)}
}

func (g *Generator) callModel(ctx context.Context, plan strategy.Plan, message string, history []llm.Message, key string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: strings.Join(plan.Instructions, "\n"),
	})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	maxTokens := generationMaxTokens
	text, err := g.client.Chat(callCtx, messages, llm.GenerationParams{
		Temperature: &generationTemperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	g.cache.Set(key, text)
	return text, nil
}

// CacheStats exposes the underlying cache counters for metrics.
func (g *Generator) CacheStats() (hits, misses, evictions int64) {
	return g.cache.Stats()
}
