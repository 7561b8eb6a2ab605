package simplecl

import (
	"unsafe"

	"github.com/thi-ng/simplecl/backends"
)

// ElementType is the closed set of buffer element types simplecl supports.
// The zero value is InvalidType so the type can double as an optional in
// ExecOptions.
type ElementType int

const (
	InvalidType ElementType = iota

	// Uint8 is an unsigned byte element.
	Uint8
	// Int32 is a signed 32-bit integer element.
	Int32
	// Float32 is an IEEE-754 32-bit float element.
	Float32
	// Float64 is an IEEE-754 64-bit float element.
	Float64
)

// Element constrains the Go types that can back a simplecl buffer.
type Element interface {
	uint8 | int32 | float32 | float64
}

// Size returns the byte width of one element, or 0 for InvalidType.
func (t ElementType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// String implements fmt.Stringer.
func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return "invalid"
}

// Valid reports whether t is one of the supported element types.
func (t ElementType) Valid() bool {
	return t >= Uint8 && t <= Float64
}

// TypeOf maps a Go element type onto its tag.
func TypeOf[T Element]() ElementType {
	var v T
	switch any(v).(type) {
	case uint8:
		return Uint8
	case int32:
		return Int32
	case float32:
		return Float32
	default:
		return Float64
	}
}

// view reinterprets raw host memory as a slice of T. The returned slice
// aliases data and becomes invalid when data does.
func view[T Element](data []byte) []T {
	if len(data) == 0 {
		return nil
	}
	var v T
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/int(unsafe.Sizeof(v)))
}

// put stores v, cast to the element type, at element index i of the raw
// host memory.
func (t ElementType) put(data []byte, i int, v float64) {
	switch t {
	case Uint8:
		data[i] = uint8(v)
	case Int32:
		view[int32](data)[i] = int32(v)
	case Float32:
		view[float32](data)[i] = float32(v)
	case Float64:
		view[float64](data)[i] = v
	}
}

// at loads element index i of the raw host memory, widened to float64.
// All four element types round-trip through float64 exactly.
func (t ElementType) at(data []byte, i int) float64 {
	switch t {
	case Uint8:
		return float64(data[i])
	case Int32:
		return float64(view[int32](data)[i])
	case Float32:
		return float64(view[float32](data)[i])
	case Float64:
		return view[float64](data)[i]
	}
	return 0
}

// bytesView returns the raw bytes backing a typed slice.
func bytesView[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var v T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(v)))
}

// alloc allocates n elements of the element's Go type and returns both the
// typed slice (as any) and the raw byte view over its memory. Backing host
// views with typed slices keeps the memory aligned for the element type.
func (t ElementType) alloc(n int) (any, []byte) {
	switch t {
	case Uint8:
		s := make([]uint8, n)
		return s, s
	case Int32:
		s := make([]int32, n)
		return s, bytesView(s)
	case Float32:
		s := make([]float32, n)
		return s, bytesView(s)
	case Float64:
		s := make([]float64, n)
		return s, bytesView(s)
	}
	return nil, nil
}

// Usage re-exports the backend buffer usage flags, the values a Step buffer
// spec and NewBuffer accept.
type Usage = backends.MemFlag

const (
	ReadWrite = backends.MemReadWrite
	ReadOnly  = backends.MemReadOnly
	WriteOnly = backends.MemWriteOnly
	AllocHost = backends.MemAllocHost
	CopyHost  = backends.MemCopyHost
	UseHost   = backends.MemUseHost
)
