//go:build unit

package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := NewError(KindInvalidBuffer, "wrap", "stride %d", 0)

	if !errors.Is(err, ErrInvalidBuffer) {
		t.Error("expected match on ErrInvalidBuffer")
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		t.Error("unexpected match on ErrUnsupportedFormat")
	}
	if got := err.Error(); got != "wrap: invalid buffer: stride 0" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFromDevice(t *testing.T) {
	if FromDevice("sync", nil) != nil {
		t.Error("FromDevice(nil) should be nil")
	}

	devErr := driver.NewErrorWithCause(driver.StatusTimeout, "sync deadline", context.DeadlineExceeded)
	err := FromDevice("sync", devErr)

	var bErr *Error
	if !errors.As(err, &bErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if bErr.Kind != KindDeviceOperationFailed {
		t.Errorf("Kind = %v", bErr.Kind)
	}
	if bErr.Status != "ERROR_TIMEOUT" || bErr.Message != "sync deadline" {
		t.Errorf("Status = %q, Message = %q", bErr.Status, bErr.Message)
	}
	if !strings.Contains(err.Error(), "ERROR_TIMEOUT: sync deadline") {
		t.Errorf("Error() = %q, expected status name and message", err.Error())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause chain lost")
	}

	again := FromDevice("pipeline", err)
	if again != err {
		t.Error("kind-tagged errors should pass through unchanged")
	}

	plain := FromDevice("submit", errors.New("bus error"))
	if KindOf(plain) != KindDeviceOperationFailed {
		t.Errorf("plain error kind = %v", KindOf(plain))
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindInvalidBuffer, "invalid buffer"},
		{KindUnsupportedFormat, "unsupported format"},
		{KindDeviceOperationFailed, "device operation failed"},
		{KindLockFailed, "lock failed"},
		{Kind(99), "Kind(99)"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("Kind(%d).String() = %q, expected %q", tt.kind, got, tt.expected)
		}
	}
}
