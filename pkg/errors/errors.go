// Package errors provides the typed error taxonomy used across the
// audit engine. Errors carry a category, a machine-readable code, an
// optional suggestion and context map, and a stack trace, so batch
// success/failure counts are computable without parsing log output.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryAnalysis      ErrorCategory = "analysis"
	CategoryTraining      ErrorCategory = "training"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeDirectoryError ErrorCode = "directory_error"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Validation errors (single-record data quality)
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Analysis errors
	CodeProcessingError ErrorCode = "processing_error"
	CodeEmptyBatch      ErrorCode = "empty_batch"

	// Training errors
	CodeInsufficientData ErrorCode = "insufficient_data"
	CodeModelNotTrained  ErrorCode = "model_not_trained"
	CodeTrainingFailed   ErrorCode = "training_failed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// AuditError is the base error type for all application errors
type AuditError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *AuditError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *AuditError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *AuditError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryAnalysis, CategoryTraining, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *AuditError) WithContext(key string, value interface{}) *AuditError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *AuditError) WithSuggestion(suggestion string) *AuditError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AuditError
func New(category ErrorCategory, code ErrorCode, message string) *AuditError {
	return &AuditError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with AuditError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *AuditError {
	if err == nil {
		return nil
	}

	return &AuditError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// DataQualityError creates an error for a malformed field on a single
// record. These are recovered locally: the record is excluded from the
// detector that needs the field, never aborting the whole batch.
func DataQualityError(code ErrorCode, recordID, field string, value interface{}) *AuditError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount on record %s in field '%s': %v", recordID, field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date on record %s in field '%s': %v", recordID, field, value)
		suggestion = "use date format YYYY-MM-DD"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing on record %s", field, recordID)
		suggestion = "provide a value for this required field"
	default:
		message = fmt.Sprintf("data quality issue on record %s in field '%s': %v", recordID, field, value)
		suggestion = "check the field value and format"
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("record_id", recordID).
		WithContext("field", field).
		WithContext("value", value)
}

// ParseError creates a parsing-related error for a file location
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *AuditError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "check the data format and ensure it matches the expected structure"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "verify the file has all required columns with correct headers"
	case CodeInvalidData:
		message = fmt.Sprintf("invalid data in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "correct the data format or remove the invalid entry"
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
		suggestion = "check the file format and data integrity"
	}

	var result *AuditError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *AuditError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *AuditError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *AuditError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *AuditError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// AnalysisError creates an analysis-related error
func AnalysisError(code ErrorCode, operation string, err error) *AuditError {
	var message string
	var suggestion string

	switch code {
	case CodeProcessingError:
		message = fmt.Sprintf("processing error during %s", operation)
		suggestion = "check the batch contents and configuration"
	case CodeEmptyBatch:
		message = fmt.Sprintf("empty batch supplied to %s", operation)
		suggestion = "load postings before running the analysis"
	default:
		message = fmt.Sprintf("analysis error during %s", operation)
		suggestion = "review the data and configuration"
	}

	var result *AuditError
	if err != nil {
		result = Wrap(err, CategoryAnalysis, code, message)
	} else {
		result = New(CategoryAnalysis, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InsufficientDataError creates the error describing a training request
// with too few usable records. Callers surface it as a SKIPPED status,
// not a failure.
func InsufficientDataError(got, minimum int) *AuditError {
	return New(CategoryTraining, CodeInsufficientData,
		fmt.Sprintf("insufficient data for training: need at least %d transactions, got %d", minimum, got)).
		WithSuggestion("load a larger batch before requesting model training").
		WithContext("transactions", got).
		WithContext("minimum", minimum)
}

// ModelNotTrainedError creates the error returned when prediction is
// requested before a successful training run
func ModelNotTrainedError(operation string) *AuditError {
	return New(CategoryTraining, CodeModelNotTrained,
		fmt.Sprintf("model is not trained: cannot perform %s", operation)).
		WithSuggestion("call Train before requesting predictions, or fall back to rule-only results").
		WithContext("operation", operation)
}

// TrainingError wraps a failure inside a training session. The previous
// trained model, if any, is left untouched by the caller.
func TrainingError(operation string, err error) *AuditError {
	return Wrap(err, CategoryTraining, CodeTrainingFailed,
		fmt.Sprintf("training failed during %s", operation)).
		WithSuggestion("inspect the training data and retry with the force-retrain flag").
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *AuditError {
	var result *AuditError
	message := fmt.Sprintf("unexpected error during %s", operation)
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	} else {
		result = New(CategoryInternal, CodeUnexpectedError, message)
	}

	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*AuditError         `json:"errors"`
	SampleErrors []*AuditError         `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*AuditError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*AuditError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	// Include sample errors (max 5)
	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	count, exists := es.ByCategory[category]
	return exists && count > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	count, exists := es.ByCode[code]
	return exists && count > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// IsAuditError checks if an error is an AuditError
func IsAuditError(err error) bool {
	_, ok := err.(*AuditError)
	return ok
}

// AsAuditError extracts an AuditError from an error chain
func AsAuditError(err error) (*AuditError, bool) {
	var auditErr *AuditError
	if errors.As(err, &auditErr) {
		return auditErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code ErrorCode) bool {
	if auditErr, ok := AsAuditError(err); ok {
		return auditErr.Code == code
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already an AuditError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *AuditError {
	if err == nil {
		return nil
	}

	if auditErr, ok := AsAuditError(err); ok {
		return auditErr
	}

	return Wrap(err, category, code, message)
}
