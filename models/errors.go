// ABOUTME: Error types shared by remote backends and the sync orchestrator
// ABOUTME: Sentinels for auth and policy failures plus a classified RemoteError
package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when a remote call has no valid session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPolicyViolation is returned when remote access control rejects a write.
	ErrPolicyViolation = errors.New("row-level policy violation")
	// ErrNotFound is returned when a remote row does not exist.
	ErrNotFound = errors.New("not found")
)

// RemoteErrorKind classifies a remote failure for retry decisions.
type RemoteErrorKind string

const (
	RemoteConnectivity   RemoteErrorKind = "connectivity"
	RemoteUnauthorized   RemoteErrorKind = "unauthorized"
	RemotePolicy         RemoteErrorKind = "policy"
	RemoteNotFound       RemoteErrorKind = "not_found"
	RemoteInvalidRequest RemoteErrorKind = "invalid_request"
	RemoteServer         RemoteErrorKind = "server"
)

// RemoteError is a classified failure from a remote backend.
type RemoteError struct {
	Op     string
	Status int
	Kind   RemoteErrorKind
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinels by kind.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotAuthenticated:
		return e.Kind == RemoteUnauthorized
	case ErrPolicyViolation:
		return e.Kind == RemotePolicy
	case ErrNotFound:
		return e.Kind == RemoteNotFound
	}
	return false
}

// Temporary reports whether retrying later could succeed.
func (e *RemoteError) Temporary() bool {
	return e.Kind == RemoteConnectivity
}
