// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scheduler

import "github.com/btcsuite/btclog"

var log btclog.Logger

func init() {
	DisableLog()
}

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
