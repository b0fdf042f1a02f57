// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file serves as the bridge between the build system and the runtime logic. It utilizes the Go
embed package to bake the tutoring_patterns.yaml file directly into the compiled binary. This
ensures that the default detection rules are immutable at runtime and travel with the executable.
Deployments that need different phrase lists ship an override file instead of patching the binary.
*/

package enforcement

import (
	_ "embed"
)

// TutoringPatterns holds the raw byte content of the 'tutoring_patterns.yaml' file.
//
// This variable is populated at compile-time using the Go 'embed' directive. The
// pattern catalogs defined here drive intent classification, the plagiarism and
// solution-request gates, and the technical risk detectors.
//
// Usage:
//
//	// Pass these bytes directly to yaml.Unmarshal
//	err := yaml.Unmarshal(enforcement.TutoringPatterns, &targetStruct)
//
//go:embed tutoring_patterns.yaml
var TutoringPatterns []byte
