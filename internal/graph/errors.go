package graph

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth"
	KindPermission  ErrorKind = "permission"
	KindValidation  ErrorKind = "validation"
	KindUnknown     ErrorKind = "unknown"
)

// Sentinels matched by errors.Is against an *APIError. ErrAuth covers both
// rejected and under-privileged credentials: either way the user must
// reconnect before retrying.
var (
	ErrRateLimited = errors.New("meta api rate limited")
	ErrAuth        = errors.New("meta api credentials rejected")
	ErrValidation  = errors.New("meta api rejected request parameters")
)

type APIError struct {
	Kind         ErrorKind `json:"kind"`
	Type         string    `json:"type"`
	Code         int       `json:"code"`
	ErrorSubcode int       `json:"error_subcode"`
	Message      string    `json:"message"`
	FBTraceID    string    `json:"fbtrace_id"`
	StatusCode   int       `json:"-"`
	// Transient marks server-side failures the client retries on reads.
	Transient bool `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf(
		"meta api error kind=%s type=%s code=%d subcode=%d fbtrace_id=%s: %s",
		e.Kind,
		e.Type,
		e.Code,
		e.ErrorSubcode,
		e.FBTraceID,
		e.Message,
	)
}

func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrAuth:
		return e.Kind == KindAuth || e.Kind == KindPermission
	case ErrValidation:
		return e.Kind == KindValidation
	default:
		return false
	}
}

// Temporary reports whether the caller may retry the same request later
// without changing credentials or parameters.
func (e *APIError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.Kind == KindRateLimited || e.Transient
}

type TransientError struct {
	Message    string
	StatusCode int
}

func (e *TransientError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Classify maps a Graph error payload to a kind. Rate-limit codes are checked
// first because Meta reports several of them with type OAuthException.
func Classify(statusCode int, code int, subcode int) ErrorKind {
	if isRateLimitCode(statusCode, code) {
		return KindRateLimited
	}
	switch code {
	case 102, 190:
		return KindAuth
	case 10:
		return KindPermission
	case 100:
		return KindValidation
	}
	switch subcode {
	case 458, 459, 460, 463, 464, 467:
		return KindAuth
	}
	if code >= 200 && code <= 299 {
		return KindPermission
	}
	if statusCode == http.StatusUnauthorized {
		return KindAuth
	}
	if statusCode == http.StatusForbidden {
		return KindPermission
	}
	if statusCode >= 400 && statusCode < 500 {
		return KindValidation
	}
	return KindUnknown
}

func isRateLimitCode(statusCode int, code int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	switch code {
	case 4, 17, 32, 613:
		return true
	}
	// Ads Management / Ads Insights business use case throttling.
	return code >= 80000 && code <= 80014
}

func isTransient(statusCode int, code int, kind ErrorKind) bool {
	if kind != KindUnknown {
		return false
	}
	if statusCode >= 500 {
		return true
	}
	// 1: unknown error, 2: service temporarily unavailable.
	return code == 1 || code == 2
}
