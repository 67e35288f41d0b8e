// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pledgewallet defines the backend's view of a pledging wallet: the
// narrow contract needed to create pledges, watch them for revocation, and
// recognize the wallet's own transaction history. Key management, coin
// selection, and chain synchronization belong to the wallet implementation
// itself and are out of scope.
package pledgewallet
