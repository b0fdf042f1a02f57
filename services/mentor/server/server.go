// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server wires the mentor pipeline, stores, and HTTP routes
// into a runnable service. Both the container entry point and the
// `mentor serve` CLI command build their server through Run.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/AleutianMentor/pkg/logging"
	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/classifier"
	"github.com/AleutianAI/AleutianMentor/services/mentor/memory"
	"github.com/AleutianAI/AleutianMentor/services/mentor/observability"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
	"github.com/AleutianAI/AleutianMentor/services/mentor/pipeline"
	"github.com/AleutianAI/AleutianMentor/services/mentor/policy"
	"github.com/AleutianAI/AleutianMentor/services/mentor/responder"
	"github.com/AleutianAI/AleutianMentor/services/mentor/riskanalyst"
	"github.com/AleutianAI/AleutianMentor/services/mentor/routes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/rules"
	"github.com/AleutianAI/AleutianMentor/services/mentor/semaphore"
	storage "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

// Config holds the runtime settings for the mentor service.
type Config struct {
	Port         string
	DBPath       string
	PatternsFile string
	PolicyDir    string
	LogDir       string
	LLMBackend   string
}

// ConfigFromEnv builds a Config from environment variables, applying
// the container defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		Port:         os.Getenv("MENTOR_PORT"),
		DBPath:       os.Getenv("MENTOR_DB_PATH"),
		PatternsFile: os.Getenv("MENTOR_PATTERNS_FILE"),
		PolicyDir:    os.Getenv("MENTOR_POLICY_DIR"),
		LogDir:       os.Getenv("MENTOR_LOG_DIR"),
		LLMBackend:   os.Getenv("LLM_BACKEND_TYPE"),
	}
	if cfg.Port == "" {
		cfg.Port = "12230"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "/data/mentor"
	}
	return cfg
}

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("mentor-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func newLLMClient(backend string) (llm.LLMClient, error) {
	switch backend {
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama")
		return llm.NewOllamaClient()
	}
}

// Run wires the full service and blocks serving HTTP until the server
// exits. It owns the lifecycle of the store, the policy watcher, and
// the OTLP exporter.
func Run(cfg Config) error {
	logWrapper := logging.New(logging.Config{
		Service: "mentor",
		JSON:    true,
		LogDir:  cfg.LogDir,
	})
	defer logWrapper.Close()
	logger := logWrapper.Logger
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	db, err := storage.Open(storage.DefaultConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("could not open the trace store at %s: %w", cfg.DBPath, err)
	}
	defer db.Close()

	traceStore := storage.NewTraceStore(db)
	sessionStore := storage.NewSessionStore(db)
	riskStore := storage.NewRiskStore(db)

	lib, err := patterns.NewLibrary()
	if err != nil {
		return fmt.Errorf("could not load the pattern library: %w", err)
	}
	if cfg.PatternsFile != "" {
		// Load the override and hot-reload it on change, like the
		// policy watcher below.
		if err := lib.WatchOverride(cfg.PatternsFile); err != nil {
			return fmt.Errorf("could not load the pattern override: %w", err)
		}
	}
	defer lib.Close()

	policies, err := policy.NewProvider(cfg.PolicyDir, logger)
	if err != nil {
		return fmt.Errorf("could not initialize the policy provider: %w", err)
	}
	if err := policies.Watch(); err != nil {
		slog.Warn("policy hot-reload disabled", "error", err)
	}
	defer policies.Close()

	llmClient, err := newLLMClient(cfg.LLMBackend)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	generator := responder.NewGenerator(llmClient, logger,
		responder.WithCache(responder.NewCache(responder.DefaultMaxEntries, responder.DefaultTTL)))

	analyst := riskanalyst.NewAnalyst(traceStore, sessionStore, riskStore, policies, lib, logger)
	analyst.Metrics = metrics

	engine := pipeline.NewEngine(pipeline.Config{
		Sessions:   sessionStore,
		Traces:     traceStore,
		Loader:     memory.NewLoader(traceStore, memory.DefaultHistoryTurns),
		Classifier: classifier.New(lib),
		Semaphore:  semaphore.New(lib),
		Rules:      rules.New(lib),
		Generator:  generator,
		Policies:   policies,
		Analyst:    analyst,
		Metrics:    metrics,
		Logger:     logger,
	})

	router := gin.Default()
	router.Use(otelgin.Middleware("mentor-service"))

	routes.SetupRoutes(router, engine, analyst, traceStore, sessionStore, riskStore)

	slog.Info("Starting the mentor server", "port", cfg.Port)
	return router.Run(":" + cfg.Port)
}
