// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

// appBuild is set via -ldflags "-X main.appBuild=..." at release build time.
var appBuild string

// version returns the current version of lighthoused.
func version() string {
	if appBuild != "" {
		return appBuild
	}
	return "dev"
}
