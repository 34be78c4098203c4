package errors

import (
	goerrors "errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// AccessDeniedError indicates the caller's credentials were rejected or lack permission.
type AccessDeniedError struct{ Cause error }

func (e *AccessDeniedError) Error() string { return fmt.Sprintf("access denied: %v", e.Cause) }
func (e *AccessDeniedError) Unwrap() error { return e.Cause }

// RetryableError indicates the request may succeed on retry with backoff.
type RetryableError struct{ Cause error }

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Cause) }
func (e *RetryableError) Unwrap() error { return e.Cause }

// NotFoundError indicates a referenced resource (policy store, thing, topic) does not exist.
type NotFoundError struct{ Cause error }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %v", e.Cause) }
func (e *NotFoundError) Unwrap() error { return e.Cause }

// ValidationError indicates the service rejected the request shape.
type ValidationError struct{ Cause error }

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %v", e.Cause) }
func (e *ValidationError) Unwrap() error { return e.Cause }

// OpError is a generic wrapper for unexpected failures.
type OpError struct{ Cause error }

func (e *OpError) Error() string { return fmt.Sprintf("op error: %v", e.Cause) }
func (e *OpError) Unwrap() error { return e.Cause }

// Classify maps smithy errors to the categories above. Non-API errors
// (network, context cancellation, local failures) become OpError.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var api smithy.APIError
	if goerrors.As(err, &api) {
		switch api.ErrorCode() {
		case "AccessDeniedException", "UnauthorizedException", "ExpiredTokenException", "UnrecognizedClientException", "ForbiddenException":
			return &AccessDeniedError{Cause: err}
		case "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded", "ServiceQuotaExceededException", "InternalServerException", "ServiceUnavailableException", "LimitExceededException":
			return &RetryableError{Cause: err}
		case "ResourceNotFoundException":
			return &NotFoundError{Cause: err}
		case "ValidationException", "InvalidRequestException", "ConflictException":
			return &ValidationError{Cause: err}
		}
	}
	return &OpError{Cause: err}
}

// Category returns a short, log-friendly name for the class of err.
func Category(err error) string {
	if err == nil {
		return ""
	}
	var (
		ad *AccessDeniedError
		re *RetryableError
		nf *NotFoundError
		ve *ValidationError
	)
	switch c := Classify(err); {
	case goerrors.As(c, &ad):
		return "access_denied"
	case goerrors.As(c, &re):
		return "retryable"
	case goerrors.As(c, &nf):
		return "not_found"
	case goerrors.As(c, &ve):
		return "validation"
	default:
		return "op_error"
	}
}
