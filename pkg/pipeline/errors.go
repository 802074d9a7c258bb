package pipeline

import "github.com/emergingrobotics/go-imgaccel/pkg/bridge"

// Failure kinds returned by Resize and ConvertFormat. Match them with
// errors.Is; use errors.As with *Error for the device status.
var (
	ErrInvalidBuffer         = bridge.ErrInvalidBuffer
	ErrUnsupportedFormat     = bridge.ErrUnsupportedFormat
	ErrDeviceOperationFailed = bridge.ErrDeviceOperationFailed
	ErrLockFailed            = bridge.ErrLockFailed
)

// Error is the error type of every failed pipeline call
type Error = bridge.Error
