// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Every error response carries an HTTP status and one of these codes, so
// clients can branch on the code without parsing messages:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "index_not_found",
//	  "message": "persona 3 has no published index"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeIndexNotFound   = "index_not_found"
	ErrCodeIngestionFailed = "ingestion_failed"
	ErrCodeModelFailed     = "model_failed"
)
