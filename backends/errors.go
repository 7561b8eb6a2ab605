package backends

import "github.com/pkg/errors"

// Error kinds shared by the core and the backends. Errors returned anywhere
// in simplecl wrap exactly one of these sentinels, so callers can classify
// with errors.Is.
var (
	// ErrInvalidArgument marks a malformed request: unknown operation kind,
	// unsupported element or scalar type, reference to a non-existent step.
	// Raised at compile or configure time, before device submission where
	// possible.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDevice marks an allocation, queue or submission failure surfaced
	// from the underlying runtime. Never retried by simplecl.
	ErrDevice = errors.New("device error")

	// ErrBuildFailure marks a program that failed to build for a device.
	// The wrapped message carries the device build log when the runtime
	// provides one.
	ErrBuildFailure = errors.New("program build failure")
)

// InvalidArgumentf returns an ErrInvalidArgument-kinded error.
func InvalidArgumentf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// DeviceErrorf returns an ErrDevice-kinded error. The underlying runtime
// error, if any, should be rendered into the message.
func DeviceErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrDevice, format, args...)
}

// BuildFailuref returns an ErrBuildFailure-kinded error.
func BuildFailuref(format string, args ...any) error {
	return errors.Wrapf(ErrBuildFailure, format, args...)
}
