//go:build cgo && !noopencl

package _default

import _ "github.com/thi-ng/simplecl/backends/opencl"
