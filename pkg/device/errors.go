package device

import "errors"

// Errors for the device registry
var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrDuplicateName = errors.New("device name already registered")
)
