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
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

// excerptChunkSize bounds evidence excerpts. The trace ID is the
// authoritative pointer; the excerpt only has to orient a reviewer.
const excerptChunkSize = 160

var excerptSplitter = textsplitter.NewRecursiveCharacter(
	textsplitter.WithChunkSize(excerptChunkSize),
	textsplitter.WithChunkOverlap(0),
)

// evidenceFor builds an evidence record pointing at a trace, with a
// bounded excerpt of its content.
func evidenceFor(trace *datatypes.InteractionTrace) datatypes.Evidence {
	return datatypes.Evidence{
		TraceID: trace.TraceID,
		Excerpt: excerpt(trace.Content),
	}
}

// excerpt returns the first bounded chunk of content. Splitting failures
// degrade to a rune-safe hard cut rather than dropping the evidence.
func excerpt(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	chunks, err := excerptSplitter.SplitText(content)
	if err == nil && len(chunks) > 0 {
		return strings.TrimSpace(chunks[0])
	}
	runes := []rune(content)
	if len(runes) > excerptChunkSize {
		runes = runes[:excerptChunkSize]
	}
	return strings.TrimSpace(string(runes))
}

// pruneEvidence drops evidence entries whose trace ID does not exist in
// the analyzed sequence. A risk record must never point at a trace the
// store cannot produce.
func pruneEvidence(risks []*datatypes.Risk, traces []*datatypes.InteractionTrace) {
	known := make(map[string]bool, len(traces))
	for _, trace := range traces {
		known[trace.TraceID] = true
	}
	for _, risk := range risks {
		kept := risk.Evidence[:0]
		for _, ev := range risk.Evidence {
			if known[ev.TraceID] {
				kept = append(kept, ev)
			}
		}
		risk.Evidence = kept
	}
}
