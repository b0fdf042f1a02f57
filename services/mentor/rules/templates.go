// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

// RejectionTemplate is the fixed response substituted when the
// anti-direct-solution rule vetoes a turn. It redirects toward
// decomposition and always carries at least three guiding questions
// and no code.
const RejectionTemplate = `I can't hand you the finished solution for this one - working through it is the point of the exercise. Let's break it down together instead:

1. What is the smallest piece of this problem you could solve on its own?
2. What inputs and outputs does that piece need, and what must stay true about them?
3. What have you already tried, and where exactly did it stop behaving the way you expected?

Answer any one of these and we can dig into that part properly.`

// CapstoneWarning is appended instead of a veto when the activity policy
// marks the work as capstone. The rule degrades, it never disappears.
const CapstoneWarning = "Reminder: this is capstone work. The assistant can discuss full designs here, " +
	"but the submitted solution still has to be your own - be ready to justify every part of it."
