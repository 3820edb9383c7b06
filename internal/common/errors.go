package common

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's taxonomy. Fatal kinds
// (ErrUnsupportedFormat, ErrCorruptDocument, ErrExtractionExhausted)
// propagate to the caller; the AI kinds are recoverable and trigger
// fallback wherever one is configured.
var (
	ErrUnsupportedFormat   = errors.New("unsupported document format")
	ErrCorruptDocument     = errors.New("corrupt document")
	ErrAIUnavailable       = errors.New("ai extractor unavailable")
	ErrAIResponseMalformed = errors.New("ai response malformed")
	ErrExtractionExhausted = errors.New("all extraction methods exhausted")
)

// WarnOCRPageFailed prefixes per-page OCR failure warnings
// ("OCR_PAGE_FAILED:3").
const WarnOCRPageFailed = "OCR_PAGE_FAILED"

// AppError carries a stable machine-readable code alongside the message,
// so HTTP handlers and the history store can classify failures.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode extracts the AppError code from anywhere in the chain,
// or "INTERNAL" when no AppError is present.
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "INTERNAL"
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
