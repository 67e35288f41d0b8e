// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

import "testing"

func TestCheckStatusVariants(t *testing.T) {
	inProgress := InProgressStatus()
	if !inProgress.InProgress || inProgress.Err != nil {
		t.Fatalf("unexpected in-progress status: %+v", inProgress)
	}

	errored := ErrorStatus(errTest)
	if errored.InProgress || errored.Err == nil {
		t.Fatalf("unexpected error status: %+v", errored)
	}

	var zero CheckStatus
	if zero.InProgress || zero.Err != nil {
		t.Fatalf("zero value should describe no outstanding check: %+v", zero)
	}
}

var errTest = &VerifyError{Kind: BadFormat}
