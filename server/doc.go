// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package server implements ServerClient: the HTTPS status fetch a project
// with a payment URL uses instead of (or alongside) P2P verification, plus
// the optional websocket push subscription that lets a server tell a
// client about a status change without waiting for the next jittered poll.
package server
