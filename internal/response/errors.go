package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authorization ─────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam creation ─────────────────────────────────────────────────
	ErrFileRequired     ErrCode = "FILE_REQUIRED"
	ErrFileTooLarge     ErrCode = "FILE_TOO_LARGE"
	ErrExtractionFailed ErrCode = "EXTRACTION_FAILED"
	ErrStoreUnavailable ErrCode = "STORE_UNAVAILABLE"

	// ─── Session ───────────────────────────────────────────────────────
	ErrInvalidEntryCode       ErrCode = "INVALID_ENTRY_CODE"
	ErrIncompleteRegistration ErrCode = "INCOMPLETE_REGISTRATION"
	ErrInvalidTransition      ErrCode = "INVALID_TRANSITION"
	ErrSessionClosed          ErrCode = "SESSION_CLOSED"
	ErrUnknownQuestion        ErrCode = "UNKNOWN_QUESTION"
	ErrOptionOutOfRange       ErrCode = "OPTION_OUT_OF_RANGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "A management token is required."
	case ErrTokenInvalid:
		return "The management token is invalid or expired."
	case ErrForbidden:
		return "You do not have access to this resource."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."

	case ErrNotFound:
		return "Resource not found."

	case ErrFileRequired:
		return "A question paper document is required."
	case ErrFileTooLarge:
		return "The uploaded document exceeds the size limit."
	case ErrExtractionFailed:
		return "The question paper could not be extracted. No exam was created; please retry."
	case ErrStoreUnavailable:
		return "The exam store is unavailable. Nothing was saved; please retry."

	case ErrInvalidEntryCode:
		return "The exam entry code is invalid."
	case ErrIncompleteRegistration:
		return "Student name and class are required."
	case ErrInvalidTransition:
		return "This action is not allowed in the current session state."
	case ErrSessionClosed:
		return "This exam session has already ended."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."
	case ErrOptionOutOfRange:
		return "The selected option index is out of range."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
