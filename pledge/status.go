// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

// CheckStatus describes the state of an outstanding or just-finished
// verification round for a project. It is present for a project exactly
// while a check is running, or while its last check failed; a project with
// no outstanding or failed check simply has no CheckStatus at all (callers
// represent that with a missing map entry, not a zero value).
type CheckStatus struct {
	InProgress bool
	Err        error // non-nil iff the last check failed
}

// InProgressStatus returns a CheckStatus describing a running check.
func InProgressStatus() CheckStatus {
	return CheckStatus{InProgress: true}
}

// ErrorStatus returns a CheckStatus describing a failed check. The root
// cause is recorded, not err itself, so that a chain of context wrapping
// doesn't obscure what actually went wrong.
func ErrorStatus(err error) CheckStatus {
	return CheckStatus{Err: RootCause(err)}
}

func (s CheckStatus) String() string {
	switch {
	case s.InProgress:
		return "CheckStatus{in_progress}"
	case s.Err != nil:
		return "CheckStatus{error: " + s.Err.Error() + "}"
	default:
		return "CheckStatus{}"
	}
}
