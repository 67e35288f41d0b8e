// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSemverCompatible(t *testing.T) {
	tests := []struct {
		name     string
		required semver
		actual   semver
		want     bool
	}{
		{
			name:     "exact match",
			required: semver{major: 70002, minor: 0, patch: 0},
			actual:   semver{major: 70002, minor: 0, patch: 0},
			want:     true,
		},
		{
			name:     "higher minor is compatible",
			required: semver{major: 70002, minor: 0, patch: 0},
			actual:   semver{major: 70002, minor: 1, patch: 0},
			want:     true,
		},
		{
			name:     "lower minor is incompatible",
			required: semver{major: 70002, minor: 1, patch: 0},
			actual:   semver{major: 70002, minor: 0, patch: 0},
			want:     false,
		},
		{
			name:     "same minor, lower patch is incompatible",
			required: semver{major: 70002, minor: 0, patch: 5},
			actual:   semver{major: 70002, minor: 0, patch: 1},
			want:     false,
		},
		{
			name:     "different major is incompatible",
			required: semver{major: 70002, minor: 0, patch: 0},
			actual:   semver{major: 60002, minor: 9, patch: 9},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, semverCompatible(tt.required, tt.actual))
		})
	}
}
