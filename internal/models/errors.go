package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer. Callers match them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream failure")
)

// Validation codes surfaced to the caller verbatim.
const (
	CodeNoMessageType       = "NoMessageType"
	CodeMissingThemeContext = "MissingThemeContext"
	CodeInvalidLevel        = "InvalidLevel"
	CodeEmptyMessageText    = "EmptyMessageText"
	CodeEmptyDiaryURL       = "EmptyDiaryUrl"
	CodeCascadeNotConfirmed = "CascadeNotConfirmed"
	CodeNoApprovedContent   = "NoApprovedContent"
	CodePastInstant         = "PastInstant"
	CodeInvalidTimezone     = "InvalidTimezone"
	CodeInvalidTime         = "InvalidTime"
	CodeInvalidTarget       = "InvalidTarget"
	CodeIncludeGroupType    = "IncludeGroupType"
	CodeExcludeGroupType    = "ExcludeGroupType"
	CodeEmptyTitle          = "EmptyTitle"
	CodeInvalidProduct      = "InvalidProduct"
	CodeInvalidAudioRole    = "InvalidAudioRole"
)

// Upstream codes.
const (
	CodeGenerationFailed = "GenerationFailed"
	CodeAudioFailed      = "AudioFailed"
)

// ValidationError is returned when input or current state does not allow the
// requested operation. It is never worth retrying unchanged.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "validation: " + e.Code
	}
	return fmt.Sprintf("validation: %s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError with the given code.
func NewValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a failure of the generation or speech collaborators.
type UpstreamError struct {
	Code string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: %s: %v", e.Code, e.Err)
}

// Is lets errors.Is match both ErrUpstream and the wrapped cause.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationCode returns the code of a ValidationError in err's chain, or "".
func ValidationCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
