package bridge

import (
	"errors"
	"fmt"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
)

// Kind classifies bridge and pipeline failures
type Kind int

const (
	// KindInvalidBuffer is a malformed host buffer or target geometry
	KindInvalidBuffer Kind = iota + 1
	// KindUnsupportedFormat is a pixel format the operation does not accept
	KindUnsupportedFormat
	// KindDeviceOperationFailed is a non-success status from the device
	KindDeviceOperationFailed
	// KindLockFailed means the handle could not be mapped for host access
	KindLockFailed
)

var kindNames = map[Kind]string{
	KindInvalidBuffer:         "invalid buffer",
	KindUnsupportedFormat:     "unsupported format",
	KindDeviceOperationFailed: "device operation failed",
	KindLockFailed:            "lock failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a kind-tagged failure. For device failures Status holds the
// device status name and Message the device's diagnostic.
type Error struct {
	Kind    Kind
	Op      string
	Status  string
	Message string
	Cause   error
}

// Sentinels for errors.Is; they match any *Error of the same kind
var (
	ErrInvalidBuffer         = &Error{Kind: KindInvalidBuffer}
	ErrUnsupportedFormat     = &Error{Kind: KindUnsupportedFormat}
	ErrDeviceOperationFailed = &Error{Kind: KindDeviceOperationFailed}
	ErrLockFailed            = &Error{Kind: KindLockFailed}
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	switch {
	case e.Status != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", msg, e.Status, e.Message)
	case e.Status != "":
		return fmt.Sprintf("%s: %s", msg, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", msg, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of err, or 0 if err is not a bridge error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// NewError creates an Error with a formatted message
func NewError(kind Kind, op string, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// FromDevice translates a device error into a DeviceOperationFailed
// error carrying the device status name and message. Errors that are
// already kind-tagged pass through unchanged.
func FromDevice(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return deviceError(KindDeviceOperationFailed, op, err)
}

func deviceError(kind Kind, op string, err error) *Error {
	var devErr *driver.Error
	if errors.As(err, &devErr) {
		return &Error{
			Kind:    kind,
			Op:      op,
			Status:  devErr.Status.Name(),
			Message: devErr.Context,
			Cause:   err,
		}
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Status:  driver.StatusInternalError.Name(),
		Message: err.Error(),
		Cause:   err,
	}
}
