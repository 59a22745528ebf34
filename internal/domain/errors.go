package domain

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// ErrStaleResponse marks a response that arrived for a scope (identity,
// subscription) that is no longer current. It is absorbed internally and never
// surfaced to consumers.
var ErrStaleResponse = errors.New("stale response for inactive scope")

// ErrNotJoined is returned when a send is attempted before the channel has an
// active subscription for the current identity.
var ErrNotJoined = errors.New("channel not joined")

// SnapshotError represents a failed snapshot fetch. The owning stream stays in
// Loading with this error exposed; consumers may retry.
type SnapshotError struct {
	Stream string
	Err    error
}

func (e SnapshotError) Error() string {
	return fmt.Sprintf("%s snapshot fetch failed: %v", e.Stream, e.Err)
}

func (e SnapshotError) Unwrap() error { return e.Err }

// Is enables errors.Is matching on SnapshotError regardless of stream.
func (e SnapshotError) Is(target error) bool {
	_, ok := target.(SnapshotError)
	if ok {
		return true
	}
	_, ok = target.(*SnapshotError)
	return ok
}

// ErrSnapshot is the sentinel for matching any snapshot fetch failure.
var ErrSnapshot = SnapshotError{}
