package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuditError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeInvalidAmount,
			message:    "bad amount",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "analysis error",
			category:   CategoryAnalysis,
			code:       CodeEmptyBatch,
			message:    "empty batch",
			cause:      nil,
			expectCode: 5,
		},
		{
			name:       "training error",
			category:   CategoryTraining,
			code:       CodeTrainingFailed,
			message:    "training failed",
			cause:      errors.New("degenerate fit"),
			expectCode: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *AuditError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}

			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}

			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}

			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestAuditErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	if err.Suggestion != "check file path" {
		t.Errorf("expected suggestion 'check file path', got %s", err.Suggestion)
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/postings.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Code != CodeFilePermission {
			t.Errorf("expected permission code, got %s", err.Code)
		}
		if err.Context["file_path"] != "/test/postings.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
	})

	t.Run("DataQualityError", func(t *testing.T) {
		err := DataQualityError(CodeMissingField, "DOC-1:4", "Document_Number", "")

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Context["record_id"] != "DOC-1:4" {
			t.Errorf("expected record_id context, got %v", err.Context["record_id"])
		}
		if err.Suggestion == "" {
			t.Error("expected a suggestion for the missing field")
		}
	})

	t.Run("InsufficientDataError", func(t *testing.T) {
		err := InsufficientDataError(4, 10)

		if err.Code != CodeInsufficientData {
			t.Errorf("expected insufficient_data code, got %s", err.Code)
		}
		if err.Context["transactions"] != 4 || err.Context["minimum"] != 10 {
			t.Errorf("expected counts in context, got %v", err.Context)
		}
	})

	t.Run("ModelNotTrainedError", func(t *testing.T) {
		err := ModelNotTrainedError("prediction")

		if err.Category != CategoryTraining {
			t.Errorf("expected training category, got %s", err.Category)
		}
		if err.Code != CodeModelNotTrained {
			t.Errorf("expected model_not_trained code, got %s", err.Code)
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*AuditError{
		New(CategoryParse, CodeInvalidData, "bad row 1"),
		New(CategoryParse, CodeInvalidData, "bad row 2"),
		New(CategoryValidation, CodeMissingField, "missing document number"),
		FileError(CodeFileNotFound, "/missing.csv", nil),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 4 {
		t.Errorf("expected 4 errors, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if !summary.HasCode(CodeMissingField) {
		t.Error("expected missing_field in the summary")
	}
	if summary.HasCode(CodeModelNotTrained) {
		t.Error("unexpected model_not_trained in the summary")
	}

	// File category carries exit code 2, but parse (3) outranks it
	if summary.GetExitCode() != 3 {
		t.Errorf("expected exit code 3, got %d", summary.GetExitCode())
	}
}

func TestErrorSummaryEmpty(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected 0 errors, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("unexpected summary string: %s", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestHasCode(t *testing.T) {
	base := New(CategoryTraining, CodeModelNotTrained, "not trained")

	if !HasCode(base, CodeModelNotTrained) {
		t.Error("expected HasCode to match on the error itself")
	}
	if HasCode(base, CodeTrainingFailed) {
		t.Error("expected HasCode to reject a different code")
	}

	wrapped := fmt.Errorf("analysis: %w", base)
	if !HasCode(wrapped, CodeModelNotTrained) {
		t.Error("expected HasCode to match through a wrapping chain")
	}

	if HasCode(errors.New("plain"), CodeModelNotTrained) {
		t.Error("expected HasCode to reject non-audit errors")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	original := New(CategoryParse, CodeInvalidFormat, "bad format")

	rewrapped := WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "outer")
	if rewrapped != original {
		t.Error("an existing audit error must pass through unchanged")
	}

	plain := errors.New("boom")
	wrapped := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "outer")
	if wrapped.Category != CategoryInternal || wrapped.Cause != plain {
		t.Errorf("expected an internal wrapper around the cause, got %+v", wrapped)
	}

	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "outer") != nil {
		t.Error("nil must stay nil")
	}
}
