package oauthx

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorCode represents authorization error categories.
type ErrorCode string

const (
	ErrCodeMissingToken  ErrorCode = "missing_token"
	ErrCodeInvalidToken  ErrorCode = "invalid_token"
	ErrCodeClaimsFailure ErrorCode = "claims_failure"
	ErrCodeMetadataLoad  ErrorCode = "metadata_load_failure"
	ErrCodeServerError   ErrorCode = "server_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeMissingToken:  "No access token was received in the bearer header",
	ErrCodeInvalidToken:  "Missing, invalid or expired access token",
	ErrCodeClaimsFailure: "Authorization data not found",
	ErrCodeMetadataLoad:  "Issuer metadata download failed",
	ErrCodeServerError:   "An unexpected error occurred in the API",
}

// clientCodes is the closed set of caller-caused categories. Everything
// outside this set is treated as a technical failure and assigned a
// correlation id during classification.
var clientCodes = map[ErrorCode]struct{}{
	ErrCodeMissingToken:  {},
	ErrCodeInvalidToken:  {},
	ErrCodeClaimsFailure: {},
}

// Error wraps authorization errors with a stable code and a public message.
// Message is safe to return to the caller; Err holds the internal detail and
// is only ever written to logs. CorrelationID is set for technical failures
// so a support request can be matched to the logged detail.
type Error struct {
	Code          ErrorCode
	Message       string
	Err           error
	CorrelationID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsClient reports whether the error is caller-caused.
func (e *Error) IsClient() bool {
	_, ok := clientCodes[e.Code]
	return ok
}

func newError(code ErrorCode, err error) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// ErrMissingClaim reports that a structurally valid OAuth response did not
// contain an expected claim. The claim name only appears in the internal
// detail, never in the public message.
func ErrMissingClaim(claimName string) error {
	return &Error{
		Code:    ErrCodeClaimsFailure,
		Message: errorMessages[ErrCodeClaimsFailure],
		Err:     fmt.Errorf("an empty value was found for the expected claim %q", claimName),
	}
}

// Classify maps any failure arising during authorization onto the closed
// error-code set, logging as a side effect. Caller-caused errors pass
// through unchanged and are logged without a correlation id. Anything else
// is logged in full, with its underlying cause, under a fresh correlation
// id, and only the generic message plus that id is returned.
func Classify(err error, logger *zap.Logger) *Error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var typed *Error
	if errors.As(err, &typed) && typed.IsClient() {
		logger.Info("authorization denied",
			zap.String("code", string(typed.Code)),
			zap.String("detail", typed.Error()),
		)
		return typed
	}

	// Coalesced callers can all hold the same underlying error value, so
	// the classified result is always a fresh copy, never a write into the
	// error that was handed in.
	apiErr := newError(ErrCodeServerError, err)
	if typed != nil {
		apiErr = &Error{
			Code:          typed.Code,
			Message:       typed.Message,
			Err:           typed.Err,
			CorrelationID: typed.CorrelationID,
		}
	}
	if apiErr.CorrelationID == "" {
		apiErr.CorrelationID = uuid.NewString()
	}

	logger.Error("authorization failure",
		zap.String("code", string(apiErr.Code)),
		zap.String("correlation_id", apiErr.CorrelationID),
		zap.String("detail", err.Error()),
		zap.NamedError("cause", rootCause(err)),
	)
	return apiErr
}

// rootCause follows the unwrap chain to the innermost error so that a
// wrapped failure is logged with its original cause rather than only the
// outermost annotation.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
