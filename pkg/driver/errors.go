package driver

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status represents an accelerator operation status code
type Status int

// Accelerator status codes
const (
	StatusSuccess            Status = 0
	StatusNotImplemented     Status = 1
	StatusInvalidArgument    Status = 2
	StatusInvalidImageFormat Status = 3
	StatusInvalidOperation   Status = 4
	StatusNotReady           Status = 5
	StatusOutOfMemory        Status = 6
	StatusInternalError      Status = 7
	StatusTimeout            Status = 8
	StatusStreamAborted      Status = 9
	StatusDeviceClosed       Status = 10
)

var statusMessages = map[Status]string{
	StatusSuccess:            "success",
	StatusNotImplemented:     "operation not implemented by backend",
	StatusInvalidArgument:    "invalid argument",
	StatusInvalidImageFormat: "invalid image format",
	StatusInvalidOperation:   "invalid operation",
	StatusNotReady:           "resource not ready",
	StatusOutOfMemory:        "out of memory",
	StatusInternalError:      "internal error",
	StatusTimeout:            "timeout",
	StatusStreamAborted:      "stream aborted",
	StatusDeviceClosed:       "device closed",
}

var statusNames = map[Status]string{
	StatusSuccess:            "SUCCESS",
	StatusNotImplemented:     "ERROR_NOT_IMPLEMENTED",
	StatusInvalidArgument:    "ERROR_INVALID_ARGUMENT",
	StatusInvalidImageFormat: "ERROR_INVALID_IMAGE_FORMAT",
	StatusInvalidOperation:   "ERROR_INVALID_OPERATION",
	StatusNotReady:           "ERROR_NOT_READY",
	StatusOutOfMemory:        "ERROR_OUT_OF_MEMORY",
	StatusInternalError:      "ERROR_INTERNAL",
	StatusTimeout:            "ERROR_TIMEOUT",
	StatusStreamAborted:      "ERROR_STREAM_ABORTED",
	StatusDeviceClosed:       "ERROR_DEVICE_CLOSED",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// Name returns the status identifier, e.g. ERROR_INVALID_ARGUMENT
func (s Status) Name() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_UNKNOWN_%d", int(s))
}

// Error represents a failed call into the accelerator API.
// Context holds the backend's diagnostic message for the failing call.
type Error struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target status
func (e *Error) Is(target error) bool {
	var devErr *Error
	if errors.As(target, &devErr) {
		return e.Status == devErr.Status
	}
	return false
}

// NewError creates a new Error with the given status
func NewError(status Status, context string) *Error {
	return &Error{
		Status:  status,
		Context: context,
	}
}

// NewErrorf creates a new Error with a formatted context message
func NewErrorf(status Status, format string, args ...any) *Error {
	return NewError(status, fmt.Sprintf(format, args...))
}

// NewErrorWithCause creates a new Error with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *Error {
	return &Error{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// StatusOf extracts the status from err, or StatusInternalError if err
// did not come from the accelerator API
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.Status
	}
	return StatusInternalError
}

// ErrnoToStatus converts a Linux errno to an accelerator status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.ENOMEM, unix.ENOBUFS:
		return StatusOutOfMemory
	case unix.EINVAL:
		return StatusInvalidArgument
	case unix.ETIMEDOUT:
		return StatusTimeout
	case unix.ECANCELED:
		return StatusStreamAborted
	case unix.EBUSY, unix.EAGAIN:
		return StatusNotReady
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return StatusNotImplemented
	default:
		return StatusInternalError
	}
}

// StatusFromErrno creates an Error from an errno
func StatusFromErrno(errno unix.Errno, context string) *Error {
	return &Error{
		Status:  ErrnoToStatus(errno),
		Context: context,
		Cause:   errno,
	}
}
