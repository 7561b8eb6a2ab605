// Package backends defines the device capability interface the simplecl
// pipeline core submits work through, plus a registry of named backend
// constructors.
//
// A backend wraps one compute runtime (OpenCL, or the pure-Go host backend)
// and exposes the small set of operations the core needs: queue creation,
// program building, kernel lookup and argument binding, buffer allocation,
// and ordered write/read/dispatch submission. Everything else about the
// runtime (platform selection, extensions, profiling) stays inside the
// backend package.
//
// Registry misuse (no backend registered, unknown backend name) panics with
// a stack trace, see package github.com/gomlx/exceptions. Runtime faults are
// returned as errors.
package backends

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
)

// DeviceNum identifies one device of a backend.
// It is backend-interpreted, but always in the range [0, Backend.NumDevices).
type DeviceNum int

// Opaque handles owned by a backend. The core passes them back into the
// backend methods and never looks inside.
type (
	// Buffer is a handle to a region of device memory.
	Buffer any

	// Kernel is a handle to one entry point of a built program.
	Kernel any

	// Program is a handle to a program built for a device.
	Program any

	// Queue is a handle to one in-order command queue.
	Queue any
)

// MemFlag declares the intended use of a device buffer. It is passed through
// to the backend unchanged, which maps it onto the runtime's allocation and
// transfer strategy.
type MemFlag int

const (
	// MemReadWrite is device memory the kernels both read and write.
	MemReadWrite MemFlag = iota
	// MemReadOnly is device memory the kernels only read.
	MemReadOnly
	// MemWriteOnly is device memory the kernels only write.
	MemWriteOnly
	// MemAllocHost asks for device memory allocated from host-accessible memory.
	MemAllocHost
	// MemCopyHost asks for device memory initialized by copying host memory.
	MemCopyHost
	// MemUseHost asks the device to share (or copy, if sharing is not
	// supported) the given host memory.
	MemUseHost
)

// String implements fmt.Stringer.
func (m MemFlag) String() string {
	switch m {
	case MemReadWrite:
		return "readwrite"
	case MemReadOnly:
		return "readonly"
	case MemWriteOnly:
		return "writeonly"
	case MemAllocHost:
		return "alloc-host"
	case MemCopyHost:
		return "copy-host"
	case MemUseHost:
		return "use-host"
	}
	return "invalid"
}

// DeviceInfo describes one device for display purposes.
type DeviceInfo struct {
	Name             string
	Vendor           string
	MaxWorkGroupSize int
	GlobalMemBytes   uint64
}

// Backend is the API a compute runtime needs to implement to execute
// simplecl pipelines.
//
// All submission methods target one Queue; operations submitted to a queue
// execute in FIFO order. A blocking Enqueue* call returns only after the
// device has completed the transfer; non-blocking calls return immediately
// after enqueueing.
type Backend interface {
	// Name returns the short name of the backend, e.g. "opencl".
	Name() string

	// Description is a longer description of the backend for pretty-printing.
	Description() string

	// NumDevices returns the number of devices available.
	NumDevices() DeviceNum

	// DeviceInfo describes the given device.
	DeviceInfo(device DeviceNum) (DeviceInfo, error)

	// NewQueue creates an in-order command queue on the given device.
	NewQueue(device DeviceNum) (Queue, error)

	// QueueFinish blocks until every operation submitted to the queue has
	// completed on the device.
	QueueFinish(queue Queue) error

	// QueueFinalize releases the queue. The queue must not be used afterwards.
	QueueFinalize(queue Queue) error

	// BuildProgram compiles and builds program source for the given device.
	// Build failures carry the device build log in the returned error.
	BuildProgram(device DeviceNum, source string) (Program, error)

	// ProgramFinalize releases the program.
	ProgramFinalize(program Program) error

	// KernelByName returns a handle to the named entry point of a built program.
	KernelByName(program Program, name string) (Kernel, error)

	// KernelMaxWorkGroupSize reports the largest work-group the device can
	// run this kernel with.
	KernelMaxWorkGroupSize(kernel Kernel, device DeviceNum) (int, error)

	// KernelSetBufferArg binds a buffer to the kernel argument at index.
	KernelSetBufferArg(kernel Kernel, index int, buffer Buffer) error

	// KernelSetScalarArg binds a scalar to the kernel argument at index.
	// The value must be an int32, float32 or float64.
	KernelSetScalarArg(kernel Kernel, index int, value any) error

	// KernelFinalize releases the kernel.
	KernelFinalize(kernel Kernel) error

	// NewDeviceBuffer allocates sizeBytes of device memory.
	NewDeviceBuffer(device DeviceNum, flags MemFlag, sizeBytes int) (Buffer, error)

	// NewHostBuffer creates a device buffer backed by (shared with, or copied
	// from, depending on flags) the given host memory.
	NewHostBuffer(device DeviceNum, flags MemFlag, hostBytes []byte) (Buffer, error)

	// BufferFinalize releases the buffer's device memory. Finalizing an
	// already-finalized buffer must be a no-op, not a fault.
	BufferFinalize(buffer Buffer) error

	// EnqueueWrite submits a host-to-device transfer covering len(hostBytes)
	// bytes from the start of the buffer.
	EnqueueWrite(queue Queue, buffer Buffer, hostBytes []byte, blocking bool) error

	// EnqueueRead submits a device-to-host transfer covering len(hostBytes)
	// bytes from the start of the buffer.
	EnqueueRead(queue Queue, buffer Buffer, hostBytes []byte, blocking bool) error

	// EnqueueKernel submits a 1-D dispatch of globalSize work-items in
	// work-groups of localSize. globalSize must be a multiple of localSize.
	EnqueueKernel(queue Queue, kernel Kernel, globalSize, localSize int) error

	// Finalize releases all resources still associated with the backend and
	// makes it invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) Backend

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a backend constructor under the given name. The constructor is
// handed the backend-specific part of the configuration string.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the backend configuration to use if none is given through
// the environment. See NewWithConfig for the format.
var DefaultConfig string

// SIMPLECL_BACKEND is the environment variable with the default backend
// configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>", where
// "<backend_name>" is a registered backend (e.g.: "opencl") and
// "<backend_configuration>" is backend specific (e.g.: for the opencl
// backend, a platform name substring).
const SIMPLECL_BACKEND = "SIMPLECL_BACKEND"

// New returns a new Backend using the default configuration.
//
// The default is:
//
// 1. The environment SIMPLECL_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
//
// It panics if no backend was registered.
func New() Backend {
	config, found := os.LookupEnv(SIMPLECL_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as
// "<backend_name>:<backend_configuration>" and returns the corresponding
// backend. See SIMPLECL_BACKEND for the format.
func NewWithConfig(config string) Backend {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered backends for simplecl -- maybe import the OpenCL one with import _ "github.com/thi-ng/simplecl/backends/opencl"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		exceptions.Panicf("can't find backend %q for configuration %q given", backendName, config)
	}
	return constructor(backendConfig)
}
