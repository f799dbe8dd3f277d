// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics, domain codes name the failing step.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "sweep_running",
//	  "message": "sweep already in progress"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUpstream      = "upstream_error"
	ErrCodeNotConfigured = "not_configured"
	ErrCodeSweepRunning  = "sweep_running"
	ErrCodeListFailed    = "list_failed"
	ErrCodeCreateFailed  = "create_failed"
)
