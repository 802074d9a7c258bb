package pipeline

import (
	"go.uber.org/zap"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
)

// Option configures a Pipeline
type Option func(*options)

type options struct {
	interp driver.Interp
	border driver.Border
	log    *zap.Logger
}

func defaultOptions() options {
	return options{
		interp: driver.InterpLinear,
		border: driver.BorderClamp,
	}
}

// WithInterpolation selects the rescale kernel. Default is linear.
func WithInterpolation(interp driver.Interp) Option {
	return func(o *options) {
		o.interp = interp
	}
}

// WithBorder selects how samples outside the source are treated.
// Default is clamp.
func WithBorder(border driver.Border) Option {
	return func(o *options) {
		o.border = border
	}
}

// WithLogger sets the logger. Without it the package logger is used.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}
