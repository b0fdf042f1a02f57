// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mentor starts the AleutianMentor HTTP service.
//
// This is the entry point for the containerized mentor service. It
// reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - MENTOR_PORT: HTTP server port (default: 12230)
//   - MENTOR_DB_PATH: Badger store directory (default: /data/mentor)
//   - MENTOR_PATTERNS_FILE: pattern catalog override file (optional)
//   - MENTOR_POLICY_DIR: activity policy directory (optional)
//   - MENTOR_LOG_DIR: structured log file directory (optional)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama (default: ollama)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
package main

import (
	"log"

	"github.com/AleutianAI/AleutianMentor/services/mentor/server"
)

func main() {
	if err := server.Run(server.ConfigFromEnv()); err != nil {
		log.Fatalf("Mentor service error: %v", err)
	}
}
