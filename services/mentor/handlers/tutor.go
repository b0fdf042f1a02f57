// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the mentor service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
	"github.com/AleutianAI/AleutianMentor/services/mentor/pipeline"
	storage "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
)

var tutorTracer = otel.Tracer("aleutian.mentor.handlers")

// HandleTurn processes one student message through the tutoring
// pipeline.
//
// Status mapping: validation failures are 400, closed sessions 409,
// trace conflicts 409, missing policy 503, everything else 500. Model
// failures are NOT errors; they return 200 with fallback flags set.
func HandleTurn(engine *pipeline.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tutorTracer.Start(c.Request.Context(), "HandleTurn")
		defer span.End()

		var req datatypes.TurnRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := engine.ProcessTurn(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, datatypes.ErrInvalidRequest):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, pipeline.ErrSessionClosed), errors.Is(err, storage.ErrTraceConflict):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, pipeline.ErrPolicyUnavailable):
				slog.Error("turn refused: policy unavailable", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			default:
				slog.Error("turn processing failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
