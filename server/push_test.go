// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package server

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushURLForProjectSwapsSchemeAndAppendsPush(t *testing.T) {
	u, err := url.Parse("https://example.com/pledge/lighthouse-project")
	require.NoError(t, err)

	require.Equal(t, "wss://example.com/pledge/lighthouse-project/push",
		PushURLForProject(u))
}

func TestPushURLForProjectPlainHTTPUsesPlainWS(t *testing.T) {
	u, err := url.Parse("http://example.com/status")
	require.NoError(t, err)

	require.Equal(t, "ws://example.com/status/push", PushURLForProject(u))
}
