package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"store unavailable", ErrStoreUnavailable, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid key", ErrInvalidKey, false},
		{"definition error", ErrDefinition, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"missing migration", ErrMissingMigration, true},
		{"data corrupted", ErrDataCorrupted, true},
		{"quota exceeded", ErrQuotaExceeded, true},
		{"store closed", ErrStoreClosed, true},
		{"invalid key", ErrInvalidKey, false},
		{"store unavailable", ErrStoreUnavailable, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid key", ErrInvalidKey, true},
		{"unknown area", ErrUnknownArea, true},
		{"definition error", ErrDefinition, true},
		{"invalid data", ErrInvalidData, true},
		{"permission denied", ErrPermissionDenied, true},
		{"store unavailable", ErrStoreUnavailable, false},
		{"missing migration", ErrMissingMigration, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"store unavailable", ErrStoreUnavailable, ErrorTransient},
		{"missing migration", ErrMissingMigration, ErrorFatal},
		{"invalid key", ErrInvalidKey, ErrorInvalid},
		{"unknown error", fmt.Errorf("unknown error"), ErrorTransient},
		{"classified error", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassifiedError(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorTransient, baseErr, "testComponent", "testOperation", "custom message")

	if ce.Class != ErrorTransient {
		t.Errorf("expected ErrorTransient, got %v", ce.Class)
	}

	if ce.Component != "testComponent" {
		t.Errorf("expected testComponent, got %s", ce.Component)
	}

	if ce.Operation != "testOperation" {
		t.Errorf("expected testOperation, got %s", ce.Operation)
	}

	if ce.Error() != "custom message" {
		t.Errorf("expected 'custom message', got %s", ce.Error())
	}

	if !errors.Is(ce, baseErr) {
		t.Error("classified error should unwrap to base error")
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorTransient, baseErr, "testComponent", "testOperation", "")

	if ce.Error() != "base error" {
		t.Errorf("expected 'base error', got %s", ce.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "Storage", "Get", "read") != nil {
		t.Error("wrapping nil should return nil")
	}

	err := Wrap(fmt.Errorf("boom"), "Storage", "Get", "read from driver")
	want := "Storage.Get: read from driver failed: boom"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestWrapPreservesSentinel(t *testing.T) {
	wrapped := WrapInvalid(ErrInvalidKey, "Storage", "ResolveKey", "parse key")

	if !errors.Is(wrapped, ErrInvalidKey) {
		t.Error("wrapped error should match ErrInvalidKey")
	}
	if !IsInvalid(wrapped) {
		t.Error("wrapped error should classify as invalid")
	}
	if !strings.Contains(wrapped.Error(), "Storage.ResolveKey") {
		t.Errorf("wrapped error should carry context, got %q", wrapped.Error())
	}
}

func TestWrapClassification(t *testing.T) {
	base := fmt.Errorf("underlying")

	if !IsTransient(WrapTransient(base, "C", "M", "a")) {
		t.Error("WrapTransient should classify as transient")
	}
	if !IsFatal(WrapFatal(base, "C", "M", "a")) {
		t.Error("WrapFatal should classify as fatal")
	}
	if !IsInvalid(WrapInvalid(base, "C", "M", "a")) {
		t.Error("WrapInvalid should classify as invalid")
	}

	if WrapTransient(nil, "C", "M", "a") != nil ||
		WrapFatal(nil, "C", "M", "a") != nil ||
		WrapInvalid(nil, "C", "M", "a") != nil {
		t.Error("wrapping nil should return nil")
	}
}
