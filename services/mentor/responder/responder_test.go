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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/strategy"
)

// stubClient counts calls and can be told to fail or hang.
type stubClient struct {
	calls    int64
	response string
	err      error
	delay    time.Duration
}

func (s *stubClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testPlan() strategy.Plan {
	return strategy.Plan{
		Directive:    strategy.DirectiveSocratic,
		HelpLevel:    datatypes.HelpLow,
		Instructions: []string{"ask, do not tell"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCacheKey_Deterministic(t *testing.T) {
	plan := testPlan()
	history := []llm.Message{{Role: llm.RoleAssistant, Content: "what did you try?"}}

	k1 := CacheKey(plan, "how do queues work", history)
	k2 := CacheKey(plan, "how do queues work", history)
	assert.Equal(t, k1, k2)

	k3 := CacheKey(plan, "how do stacks work", history)
	assert.NotEqual(t, k1, k3)

	other := plan
	other.Instructions = []string{"different payload"}
	assert.NotEqual(t, k1, CacheKey(other, "how do queues work", history))
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := NewCache(10, 20*time.Millisecond)
	cache.Set("k", "v")

	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_EvictsOldestFirst(t *testing.T) {
	cache := NewCache(2, time.Minute)
	cache.Set("a", "1")
	cache.Set("b", "2")
	cache.Set("c", "3")

	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = cache.Get("b")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)

	_, _, evictions := cache.Stats()
	assert.Equal(t, int64(1), evictions)
}

func TestCache_ConcurrentReadersAndWriters(t *testing.T) {
	cache := NewCache(64, 10*time.Millisecond)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%100)
				if g%2 == 0 {
					cache.Set(key, "v")
				} else if got, ok := cache.Get(key); ok {
					assert.Equal(t, "v", got)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, cache.Len(), 64)
}

func TestGenerator_CachesIdenticalRequests(t *testing.T) {
	client := &stubClient{response: "what makes you think it's the loop?"}
	gen := NewGenerator(client, testLogger())
	ctx := context.Background()

	first := gen.Generate(ctx, testPlan(), "my loop is broken", nil)
	require.False(t, first.ModelFailed)
	assert.False(t, first.CacheHit)

	second := gen.Generate(ctx, testPlan(), "my loop is broken", nil)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, int64(1), atomic.LoadInt64(&client.calls))
}

func TestGenerator_FallbackOnModelError(t *testing.T) {
	client := &stubClient{err: errors.New("connection refused")}
	gen := NewGenerator(client, testLogger())

	result := gen.Generate(context.Background(), testPlan(), "help", nil)
	assert.True(t, result.ModelFailed)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, FallbackText(testPlan()), result.Text)
}

func TestGenerator_FallbackOnTimeout(t *testing.T) {
	client := &stubClient{response: "too late", delay: 200 * time.Millisecond}
	gen := NewGenerator(client, testLogger(), WithTimeout(20*time.Millisecond))

	result := gen.Generate(context.Background(), testPlan(), "help", nil)
	assert.True(t, result.ModelFailed)
	assert.Equal(t, FallbackText(testPlan()), result.Text)
}

func TestGenerator_FallbackIsNeverCached(t *testing.T) {
	client := &stubClient{err: errors.New("down")}
	gen := NewGenerator(client, testLogger())
	ctx := context.Background()

	failed := gen.Generate(ctx, testPlan(), "help", nil)
	require.True(t, failed.FallbackUsed)

	// Model recovers; the same request must reach it, not the cache.
	client.err = nil
	client.response = "which input breaks it?"
	recovered := gen.Generate(ctx, testPlan(), "help", nil)
	assert.False(t, recovered.FallbackUsed)
	assert.False(t, recovered.CacheHit)
	assert.Equal(t, "which input breaks it?", recovered.Text)
}

func TestFallbackText_CoversEveryDirective(t *testing.T) {
	for _, d := range []strategy.Directive{
		strategy.DirectiveSocratic,
		strategy.DirectiveGuidedHints,
		strategy.DirectiveConceptual,
		strategy.DirectiveClarification,
	} {
		plan := strategy.Plan{Directive: d}
		assert.NotEmpty(t, FallbackText(plan), "directive %s", d)
	}
	assert.NotEmpty(t, FallbackText(strategy.Plan{Directive: "unknown"}))
}
