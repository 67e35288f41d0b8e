// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

import (
	"errors"
	"fmt"
	"testing"
)

func TestVerifyErrorIsMatchesKind(t *testing.T) {
	err := &VerifyError{Kind: ScriptMismatch, Err: errors.New("value mismatch")}

	if !errors.Is(err, KindError(ScriptMismatch)) {
		t.Fatal("expected errors.Is to match on Kind")
	}
	if errors.Is(err, KindError(BadFormat)) {
		t.Fatal("did not expect errors.Is to match a different Kind")
	}
}

func TestVerifyErrorWrappedByContext(t *testing.T) {
	inner := &VerifyError{Kind: UnknownUTXO, Err: errors.New("not found")}
	wrapped := fmt.Errorf("checking pledge: %w", inner)

	if !errors.Is(wrapped, KindError(UnknownUTXO)) {
		t.Fatal("expected errors.Is to see through fmt.Errorf wrapping")
	}
	var verr *VerifyError
	if !errors.As(wrapped, &verr) {
		t.Fatal("expected errors.As to unwrap to *VerifyError")
	}
}

func TestRootCauseUnwrapsToDeepestError(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	mid := fmt.Errorf("querying peer: %w", root)
	top := fmt.Errorf("checking pledges: %w", mid)

	if got := RootCause(top); got != root {
		t.Fatalf("expected root cause %v, got %v", root, got)
	}
}

func TestRootCauseOfUnwrappedError(t *testing.T) {
	err := errors.New("plain")
	if got := RootCause(err); got != err {
		t.Fatalf("expected RootCause of an unwrapped error to return itself, got %v", got)
	}
}

func TestErrorStatusRecordsRootCause(t *testing.T) {
	root := errors.New("peer disconnected")
	wrapped := fmt.Errorf("query failed: %w", root)

	status := ErrorStatus(wrapped)
	if status.InProgress {
		t.Fatal("ErrorStatus must not be in progress")
	}
	if status.Err != root {
		t.Fatalf("expected root cause recorded, got %v", status.Err)
	}
}
