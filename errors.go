package simplecl

import "github.com/thi-ng/simplecl/backends"

// The error kinds surfaced by simplecl, re-exported from package backends.
// Classify with errors.Is.
var (
	ErrInvalidArgument = backends.ErrInvalidArgument
	ErrDevice          = backends.ErrDevice
	ErrBuildFailure    = backends.ErrBuildFailure
)
