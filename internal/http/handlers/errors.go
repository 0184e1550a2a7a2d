package handlers

// Stable error codes carried in ErrorResponse.Code. Clients branch on these;
// messages are for display only.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Metering refusals.
	ErrCodeQuotaExceeded       = "quota_exceeded"
	ErrCodeInsufficientCredits = "insufficient_credits"

	// Fallbacks for unexpected failures, per operation.
	ErrCodeCreateFailed = "create_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeSendFailed   = "send_failed"
	ErrCodeUploadFailed = "upload_failed"
)
