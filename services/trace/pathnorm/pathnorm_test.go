// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"versioned library", "/usr/lib/libfoo.so.6.2", "/usr/lib/libfoo.so"},
		{"single version", "/lib/x86_64-linux-gnu/libc.so.6", "/lib/x86_64-linux-gnu/libc.so"},
		{"unversioned library", "/usr/lib/libfoo.so", "/usr/lib/libfoo.so"},
		{"plain file", "/opt/lammps/examples/reaxff/HNS/ffield.reax.hns", "/opt/lammps/examples/reaxff/HNS/ffield.reax.hns"},
		{"first marker wins", "/a/libx.so.1/liby.so.2", "/a/libx.so"},
		// Any ".so." substring counts, so the loader cache collapses too.
		{"loader cache", "/etc/ld.so.cache", "/etc/ld.so"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	paths := []string{
		"/usr/lib/libfoo.so.6.2",
		"/usr/lib/libmpi.so.40.30.5",
		"/etc/passwd",
		"/a/b.so.c.so.d",
		"",
	}
	for _, p := range paths {
		once := Normalize(p)
		assert.Equal(t, once, Normalize(once), "path %q", p)
	}
}

func TestFor(t *testing.T) {
	assert.Equal(t, "/l/x.so", For(true)("/l/x.so.1"))
	assert.Equal(t, "/l/x.so.1", For(false)("/l/x.so.1"))
	assert.Equal(t, "/l/x.so.1", Identity("/l/x.so.1"))
}
