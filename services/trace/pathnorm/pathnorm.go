// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathnorm reduces recorded paths to a release-independent form.
//
// Shared libraries are opened under versioned names (libfoo.so.6.2 in one
// release, libfoo.so.6.3 in the next). Collapsing the version suffix lets
// traces from different releases be compared path for path.
package pathnorm

import "strings"

// sharedObjectMarker is the substring that starts a versioned shared-library suffix.
const sharedObjectMarker = ".so."

// Normalizer maps a raw recorded path to the token used by the models.
type Normalizer func(path string) string

// Normalize collapses a versioned shared-library suffix.
//
// Description:
//
//	If the path contains ".so.", everything from the first occurrence on is
//	replaced with ".so". Other paths are returned unchanged.
//
// Inputs:
//
//	path - Raw path as recorded.
//
// Outputs:
//
//	string - Canonical path. Normalize(Normalize(p)) == Normalize(p).
//
// Example:
//
//	Normalize("/usr/lib/libfoo.so.6.2") // "/usr/lib/libfoo.so"
func Normalize(path string) string {
	if idx := strings.Index(path, sharedObjectMarker); idx >= 0 {
		return path[:idx] + ".so"
	}
	return path
}

// Identity returns the path unchanged. Used when raw paths are analyzed.
func Identity(path string) string {
	return path
}

// For returns Normalize when enabled is true and Identity otherwise.
func For(enabled bool) Normalizer {
	if enabled {
		return Normalize
	}
	return Identity
}
