// Package _default includes the default backends, namely OpenCL and hostgo.
//
// To use it simply include:
//
//	import _ "github.com/thi-ng/simplecl/backends/default"
//
// If you add the tag `noopencl` it will not include the OpenCL backend --
// useful on machines without an OpenCL SDK installed.
package _default

import (
	_ "github.com/thi-ng/simplecl/backends/hostgo"
)
