//go:build unit

package driver

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

var allStatuses = []Status{
	StatusSuccess,
	StatusNotImplemented,
	StatusInvalidArgument,
	StatusInvalidImageFormat,
	StatusInvalidOperation,
	StatusNotReady,
	StatusOutOfMemory,
	StatusInternalError,
	StatusTimeout,
	StatusStreamAborted,
	StatusDeviceClosed,
}

func TestAllStatusCodesHaveMessages(t *testing.T) {
	for _, status := range allStatuses {
		msg := status.String()
		if msg == "" {
			t.Errorf("status %d has empty message", status)
		}
		if strings.HasPrefix(msg, "unknown ") {
			t.Errorf("status %d has no defined message: %s", status, msg)
		}
		if strings.HasPrefix(status.Name(), "ERROR_UNKNOWN") {
			t.Errorf("status %d has no defined name", status)
		}
	}
}

func TestStatusStringReturnsUnknownForUndefinedStatus(t *testing.T) {
	unknownStatus := Status(9999)
	if msg := unknownStatus.String(); msg != "unknown status (9999)" {
		t.Errorf("expected 'unknown status (9999)', got '%s'", msg)
	}
	if name := unknownStatus.Name(); name != "ERROR_UNKNOWN_9999" {
		t.Errorf("expected 'ERROR_UNKNOWN_9999', got '%s'", name)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "status only",
			err:      &Error{Status: StatusInvalidArgument},
			expected: "invalid argument",
		},
		{
			name:     "with context",
			err:      &Error{Status: StatusInvalidArgument, Context: "image create"},
			expected: "image create: invalid argument",
		},
		{
			name:     "with cause",
			err:      &Error{Status: StatusOutOfMemory, Cause: unix.ENOMEM},
			expected: "out of memory: cannot allocate memory",
		},
		{
			name: "with context and cause",
			err: &Error{
				Status:  StatusOutOfMemory,
				Context: "mmap image storage",
				Cause:   unix.ENOMEM,
			},
			expected: "mmap image storage: out of memory: cannot allocate memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := unix.ENOMEM
	err := &Error{Status: StatusOutOfMemory, Cause: cause}

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() returned %v, expected %v", unwrapped, cause)
	}

	if (&Error{Status: StatusTimeout}).Unwrap() != nil {
		t.Error("Unwrap() should return nil without a cause")
	}
}

func TestErrorIs(t *testing.T) {
	err1 := &Error{Status: StatusInvalidArgument, Context: "a"}
	err2 := &Error{Status: StatusInvalidArgument, Context: "b"}
	err3 := &Error{Status: StatusTimeout}

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same status")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different status")
	}

	wrapped := fmt.Errorf("submit: %w", err1)
	if !errors.Is(wrapped, err2) {
		t.Error("errors.Is should see through wrapping")
	}
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf(StatusInvalidImageFormat, "rescale does not accept %s", "BGR8")

	if err.Status != StatusInvalidImageFormat {
		t.Errorf("expected status %d, got %d", StatusInvalidImageFormat, err.Status)
	}
	if err.Context != "rescale does not accept BGR8" {
		t.Errorf("unexpected context '%s'", err.Context)
	}
	if err.Cause != nil {
		t.Error("expected nil cause")
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != StatusSuccess {
		t.Error("StatusOf(nil) should be StatusSuccess")
	}
	if got := StatusOf(fmt.Errorf("wrap: %w", NewError(StatusNotReady, "lock"))); got != StatusNotReady {
		t.Errorf("StatusOf = %v, expected StatusNotReady", got)
	}
	if got := StatusOf(errors.New("plain")); got != StatusInternalError {
		t.Errorf("StatusOf(plain) = %v, expected StatusInternalError", got)
	}
}

func TestErrnoToStatus(t *testing.T) {
	tests := []struct {
		errno    unix.Errno
		expected Status
	}{
		{unix.ENOBUFS, StatusOutOfMemory},
		{unix.ENOMEM, StatusOutOfMemory},
		{unix.EINVAL, StatusInvalidArgument},
		{unix.ETIMEDOUT, StatusTimeout},
		{unix.ECANCELED, StatusStreamAborted},
		{unix.EBUSY, StatusNotReady},
		{unix.ENOSYS, StatusNotImplemented},
		{unix.EPERM, StatusInternalError}, // unmapped errno
	}

	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			got := ErrnoToStatus(tt.errno)
			if got != tt.expected {
				t.Errorf("ErrnoToStatus(%v) = %d, expected %d", tt.errno, got, tt.expected)
			}
		})
	}
}

func TestStatusFromErrno(t *testing.T) {
	err := StatusFromErrno(unix.ENOMEM, "mmap image storage")

	if err.Status != StatusOutOfMemory {
		t.Errorf("expected StatusOutOfMemory, got %d", err.Status)
	}
	if err.Cause != unix.ENOMEM {
		t.Errorf("expected cause ENOMEM, got %v", err.Cause)
	}
}

func TestStatusSuccessIsZero(t *testing.T) {
	if StatusSuccess != 0 {
		t.Errorf("StatusSuccess should be 0, got %d", StatusSuccess)
	}
}
