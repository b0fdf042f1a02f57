// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/riskanalyst"
	storage "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "mentor"})
}

// GetSessionHistory returns every trace for a session in sequence order.
func GetSessionHistory(traces *storage.TraceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tutorTracer.Start(c.Request.Context(), "GetSessionHistory")
		defer span.End()

		sessionID := c.Param("sessionId")
		seq, err := traces.LoadSequence(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to load session history", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "traces": seq, "count": len(seq)})
	}
}

// GetSessionRisks returns the persisted risk findings for a session.
func GetSessionRisks(risks *storage.RiskStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tutorTracer.Start(c.Request.Context(), "GetSessionRisks")
		defer span.End()

		sessionID := c.Param("sessionId")
		found, err := risks.LoadRisks(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to load risks", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "risks": found, "count": len(found)})
	}
}

// GetSessionReports returns the risk reports generated for a session.
func GetSessionReports(risks *storage.RiskStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tutorTracer.Start(c.Request.Context(), "GetSessionReports")
		defer span.End()

		sessionID := c.Param("sessionId")
		reports, err := risks.LoadReports(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to load reports", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "reports": reports, "count": len(reports)})
	}
}

type closeSessionRequest struct {
	Status string `json:"status"`
}

// CloseSession soft-closes a session. The record stays readable; only
// the status flips, so history and risk queries keep working.
func CloseSession(sessions *storage.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tutorTracer.Start(c.Request.Context(), "CloseSession")
		defer span.End()

		sessionID := c.Param("sessionId")

		req := closeSessionRequest{Status: string(datatypes.SessionCompleted)}
		if c.Request.ContentLength > 0 {
			if err := c.BindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}

		session, err := sessions.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if err := session.Close(datatypes.SessionStatus(req.Status), time.Now().UnixMilli()); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err := sessions.Put(ctx, session); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to persist closed session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// TriggerAnalysis runs a risk analysis pass synchronously and returns
// the resulting report. The pipeline already schedules analysis after
// each turn; this endpoint exists for operators and batch tooling.
func TriggerAnalysis(analyst *riskanalyst.Analyst) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tutorTracer.Start(c.Request.Context(), "TriggerAnalysis")
		defer span.End()

		sessionID := c.Param("sessionId")
		report, err := analyst.Analyze(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("risk analysis failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
