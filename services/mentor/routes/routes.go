// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianMentor/services/mentor/handlers"
	"github.com/AleutianAI/AleutianMentor/services/mentor/pipeline"
	"github.com/AleutianAI/AleutianMentor/services/mentor/riskanalyst"
	storage "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
)

func SetupRoutes(router *gin.Engine, engine *pipeline.Engine, analyst *riskanalyst.Analyst,
	traces *storage.TraceStore, sessions *storage.SessionStore, risks *storage.RiskStore) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/tutor/turn", handlers.HandleTurn(engine))
		// Session administration routes
		sessionGroup := v1.Group("/sessions")
		{
			sessionGroup.GET("/:sessionId/history", handlers.GetSessionHistory(traces))
			sessionGroup.GET("/:sessionId/risks", handlers.GetSessionRisks(risks))
			sessionGroup.GET("/:sessionId/reports", handlers.GetSessionReports(risks))
			sessionGroup.POST("/:sessionId/close", handlers.CloseSession(sessions))
			sessionGroup.POST("/:sessionId/analyze", handlers.TriggerAnalysis(analyst))
		}
	}
}
