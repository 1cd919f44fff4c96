// ABOUTME: Sync result envelope and error classification
// ABOUTME: Maps remote failures onto skip, queue and error outcomes
package sync

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/harperreed/studysync/models"
)

// Status is the coarse outcome of a sync operation.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusQueued  Status = "queued"
	StatusError   Status = "error"
)

// Reason and error codes.
const (
	CodeNotConfigured        = "not_configured"
	CodeClientUnavailable    = "client_unavailable"
	CodeNotLoggedIn          = "not_logged_in"
	CodeOffline              = "offline"
	CodeInFlight             = "sync_in_flight"
	CodeQueueEmpty           = "queue_empty"
	CodePolicyViolation      = "policy_violation"
	CodeProfileUpsertFailed  = "profile_upsert_failed"
	CodeProgressUpsertFailed = "progress_upsert_failed"
	CodeFetchFailed          = "fetch_failed"
	CodeNetwork              = "network_error"
	CodeUnauthorized         = "unauthorized"
	CodeSessionCheckFailed   = "session_check_failed"
	CodePullFailed           = "pull_failed"
)

// Operations.
const (
	OpPush  = "push"
	OpPull  = "pull"
	OpFlush = "flush"
)

// Triggers.
const (
	TriggerManual       = "manual"
	TriggerPeriodic     = "periodic"
	TriggerAuth         = "auth"
	TriggerRetry        = "retry"
	TriggerConnectivity = "connectivity"
)

// SyncError is the error envelope carried in a SyncResult.
type SyncError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SyncError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// SyncResult reports the outcome of one push, pull or flush.
type SyncResult struct {
	OK       bool       `json:"ok"`
	Op       string     `json:"op"`
	Status   Status     `json:"status"`
	Reason   string     `json:"reason,omitempty"`
	Error    *SyncError `json:"error,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
	SyncedAt string     `json:"syncedAt,omitempty"`
	Trigger  string     `json:"trigger,omitempty"`
}

func skipped(op, trigger, reason string) SyncResult {
	return SyncResult{Op: op, Status: StatusSkipped, Reason: reason, Trigger: trigger}
}

func queued(op, trigger, reason string, err error) SyncResult {
	r := SyncResult{Op: op, Status: StatusQueued, Reason: reason, Trigger: trigger}
	if err != nil {
		r.Error = &SyncError{Code: CodeNetwork, Message: err.Error()}
	}
	return r
}

func failed(op, trigger, code string, err error) SyncResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return SyncResult{
		Op:      op,
		Status:  StatusError,
		Reason:  code,
		Error:   &SyncError{Code: code, Message: msg},
		Trigger: trigger,
	}
}

var connectivityMarkers = []string{
	"network",
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"timed out",
	"offline",
	"failed to fetch",
	"unreachable",
	"broken pipe",
	"eof",
}

// IsConnectivityError reports whether err looks like a network or transient
// server failure that a later retry could resolve.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re *models.RemoteError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectivityMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsPolicyViolation reports whether remote access control rejected the call.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, models.ErrPolicyViolation)
}

// IsUnauthorized reports whether the remote session is missing or expired.
func IsUnauthorized(err error) bool {
	return errors.Is(err, models.ErrNotAuthenticated)
}
