package errors

import (
	stderrors "errors"
	"fmt"
)

// IndexBotError is the structured error type for indexbot.
// It provides rich context for error handling, logging, and user presentation.
type IndexBotError struct {
	// Code is the unique error code (e.g., "ERR_207_INDEX_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is. Matching is by code, so any IndexBotError carrying
// the same code matches regardless of message or cause.
var (
	ErrExtractionFailed    = New(ErrCodeExtractionFailed, "document extraction failed", nil)
	ErrEmptyCorpus         = New(ErrCodeEmptyCorpus, "no documents found in input/", nil)
	ErrEmbeddingFailed     = New(ErrCodeEmbeddingFailed, "embedding model failure", nil)
	ErrPersistFailed       = New(ErrCodePersistFailed, "failed to persist index", nil)
	ErrIndexUnavailable    = New(ErrCodeIndexUnavailable, "no index has been built", nil)
	ErrIndexIncompatible   = New(ErrCodeIndexIncompatible, "index incompatible with embedder", nil)
	ErrUpstreamUnavailable = New(ErrCodeUpstreamUnavailable, "language model unavailable", nil)
	ErrBuildInProgress     = New(ErrCodeBuildInProgress, "build already in progress", nil)
	ErrCorruptIndex        = New(ErrCodeCorruptIndex, "index is corrupt", nil)
	ErrUnsupportedFormat   = New(ErrCodeUnsupportedFormat, "unsupported index format", nil)
	ErrQueryEmpty          = New(ErrCodeQueryEmpty, "question is empty", nil)
)

// Error implements the error interface.
func (e *IndexBotError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexBotError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *IndexBotError) Is(target error) bool {
	if t, ok := target.(*IndexBotError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexBotError) WithDetail(key, value string) *IndexBotError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *IndexBotError) WithSuggestion(suggestion string) *IndexBotError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexBotError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexBotError {
	return &IndexBotError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexBotError from an existing error.
// The error's message becomes the IndexBotError message.
func Wrap(code string, err error) *IndexBotError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Wrapf creates an IndexBotError with a formatted message and a cause.
func Wrapf(code string, err error, format string, args ...any) *IndexBotError {
	return New(code, fmt.Sprintf(format, args...), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexBotError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *IndexBotError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexBotError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first IndexBotError in err's chain.
func As(err error) (*IndexBotError, bool) {
	var ie *IndexBotError
	if stderrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first IndexBotError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if ie, ok := As(err); ok {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category from the first IndexBotError in the chain.
func GetCategory(err error) Category {
	if ie, ok := As(err); ok {
		return ie.Category
	}
	return ""
}
