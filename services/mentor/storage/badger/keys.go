// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import "fmt"

// Key layout. Traces are keyed by session and zero-padded sequence
// number so that a prefix scan yields them in insertion order. A
// secondary index maps trace IDs back to sequence keys for idempotent
// appends.
//
//	session/<session_id>                     -> Session JSON
//	trace/<session_id>/<seq %08d>            -> InteractionTrace JSON
//	traceidx/<trace_id>                      -> trace key bytes
//	risk/<session_id>/<risk_id>              -> Risk JSON
//	report/<session_id>/<report_id>          -> RiskReport JSON

func sessionKey(sessionID string) []byte {
	return []byte("session/" + sessionID)
}

func traceKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("trace/%s/%08d", sessionID, seq))
}

func tracePrefix(sessionID string) []byte {
	return []byte("trace/" + sessionID + "/")
}

func traceIndexKey(traceID string) []byte {
	return []byte("traceidx/" + traceID)
}

func riskKey(sessionID, riskID string) []byte {
	return []byte("risk/" + sessionID + "/" + riskID)
}

func riskPrefix(sessionID string) []byte {
	return []byte("risk/" + sessionID + "/")
}

func reportKey(sessionID, reportID string) []byte {
	return []byte("report/" + sessionID + "/" + reportID)
}

func reportPrefix(sessionID string) []byte {
	return []byte("report/" + sessionID + "/")
}
