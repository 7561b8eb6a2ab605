// Package hostgo implements a pure-Go simplecl backend: device memory is
// host memory, the command queue executes submissions immediately in FIFO
// order, and "programs" are registries of Go kernel functions.
//
// It is not fast, but it is fully portable, which makes it the backend the
// rest of the module tests itself against, and a way to run pipelines on
// machines without a GPU runtime.
package hostgo

import (
	"sync"
	"unsafe"

	"github.com/thi-ng/simplecl/backends"
)

// BackendName to be used in SIMPLECL_BACKEND to specify this backend.
const BackendName = "go"

// MaxWorkGroupSize is the fixed work-group limit reported for every kernel.
// Work-groups are a sizing fiction here: dispatch just loops over the
// global ids.
const MaxWorkGroupSize = 64

func init() {
	backends.Register(BackendName, New)
}

// New constructs a hostgo Backend. There are no configurations, the string
// is simply ignored.
func New(_ string) backends.Backend {
	return &Backend{}
}

// KernelFunc is one Go kernel: invoked once per work-item with the global
// id and the bound argument list. Buffer arguments appear as []byte views
// of the device memory (see Float32s and friends); scalar arguments appear
// as int32, float32 or float64.
//
// Like their device-side counterparts, kernel functions must bounds-check
// the global id against the true item count: the dispatch global size is
// rounded up to a work-group multiple.
type KernelFunc func(gid int, args []any)

var (
	programsMu sync.Mutex
	programs   = make(map[string]map[string]KernelFunc)
)

// RegisterProgram registers a named set of Go kernels. The name plays the
// role of program source: Backend.BuildProgram resolves it through this
// registry.
func RegisterProgram(name string, kernels map[string]KernelFunc) {
	programsMu.Lock()
	defer programsMu.Unlock()
	programs[name] = kernels
}

// Backend implements backends.Backend on host memory.
type Backend struct{}

// Compile-time check.
var _ backends.Backend = (*Backend)(nil)

type buffer struct {
	data  []byte
	freed bool
}

type queue struct{}

type program struct {
	name    string
	kernels map[string]KernelFunc
}

type kernel struct {
	name string
	fn   KernelFunc
	args []any
}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// Description is a longer description of the backend.
func (b *Backend) Description() string { return "Pure Go host backend" }

// NumDevices returns 1: the host.
func (b *Backend) NumDevices() backends.DeviceNum { return 1 }

// DeviceInfo describes the host pseudo-device.
func (b *Backend) DeviceInfo(device backends.DeviceNum) (backends.DeviceInfo, error) {
	if device != 0 {
		return backends.DeviceInfo{}, backends.InvalidArgumentf("hostgo has a single device, got device %d", device)
	}
	return backends.DeviceInfo{
		Name:             "host",
		Vendor:           "go",
		MaxWorkGroupSize: MaxWorkGroupSize,
	}, nil
}

// NewQueue creates the (stateless) immediate-execution queue.
func (b *Backend) NewQueue(device backends.DeviceNum) (backends.Queue, error) {
	if device != 0 {
		return nil, backends.InvalidArgumentf("hostgo has a single device, got device %d", device)
	}
	return &queue{}, nil
}

// QueueFinish is a no-op: every submission completed before it returned.
func (b *Backend) QueueFinish(q backends.Queue) error {
	_, err := asQueue(q)
	return err
}

// QueueFinalize releases the queue.
func (b *Backend) QueueFinalize(q backends.Queue) error {
	_, err := asQueue(q)
	return err
}

// BuildProgram resolves a registered Go program by name.
func (b *Backend) BuildProgram(device backends.DeviceNum, source string) (backends.Program, error) {
	programsMu.Lock()
	kernels, ok := programs[source]
	programsMu.Unlock()
	if !ok {
		return nil, backends.BuildFailuref("no Go program registered under name %q", source)
	}
	return &program{name: source, kernels: kernels}, nil
}

// ProgramFinalize releases the program.
func (b *Backend) ProgramFinalize(p backends.Program) error {
	_, err := asProgram(p)
	return err
}

// KernelByName returns a fresh kernel instance for the named entry point.
// Each instance carries its own argument bindings.
func (b *Backend) KernelByName(p backends.Program, name string) (backends.Kernel, error) {
	prog, err := asProgram(p)
	if err != nil {
		return nil, err
	}
	fn, ok := prog.kernels[name]
	if !ok {
		return nil, backends.DeviceErrorf("program %q has no kernel %q", prog.name, name)
	}
	return &kernel{name: name, fn: fn}, nil
}

// KernelMaxWorkGroupSize reports the fixed work-group limit.
func (b *Backend) KernelMaxWorkGroupSize(k backends.Kernel, device backends.DeviceNum) (int, error) {
	if _, err := asKernel(k); err != nil {
		return 0, err
	}
	return MaxWorkGroupSize, nil
}

// KernelSetBufferArg binds device memory to an argument slot.
func (b *Backend) KernelSetBufferArg(k backends.Kernel, index int, buf backends.Buffer) error {
	krn, err := asKernel(k)
	if err != nil {
		return err
	}
	mem, err := asBuffer(buf)
	if err != nil {
		return err
	}
	krn.setArg(index, mem)
	return nil
}

// KernelSetScalarArg binds an int32, float32 or float64 to an argument slot.
func (b *Backend) KernelSetScalarArg(k backends.Kernel, index int, value any) error {
	krn, err := asKernel(k)
	if err != nil {
		return err
	}
	switch value.(type) {
	case int32, float32, float64:
	default:
		return backends.InvalidArgumentf("kernel %q: unsupported scalar argument type %T", krn.name, value)
	}
	krn.setArg(index, value)
	return nil
}

// KernelFinalize releases the kernel.
func (b *Backend) KernelFinalize(k backends.Kernel) error {
	_, err := asKernel(k)
	return err
}

// NewDeviceBuffer allocates "device" memory on the host heap.
func (b *Backend) NewDeviceBuffer(device backends.DeviceNum, flags backends.MemFlag, sizeBytes int) (backends.Buffer, error) {
	if sizeBytes <= 0 {
		return nil, backends.InvalidArgumentf("buffer size must be positive, got %d bytes", sizeBytes)
	}
	return &buffer{data: make([]byte, sizeBytes)}, nil
}

// NewHostBuffer creates a buffer over host memory: shared for MemUseHost,
// copied otherwise.
func (b *Backend) NewHostBuffer(device backends.DeviceNum, flags backends.MemFlag, hostBytes []byte) (backends.Buffer, error) {
	if len(hostBytes) == 0 {
		return nil, backends.InvalidArgumentf("host buffer needs a non-empty host region")
	}
	if flags == backends.MemUseHost {
		return &buffer{data: hostBytes}, nil
	}
	data := make([]byte, len(hostBytes))
	copy(data, hostBytes)
	return &buffer{data: data}, nil
}

// BufferFinalize releases the buffer. Finalizing twice is a no-op.
func (b *Backend) BufferFinalize(buf backends.Buffer) error {
	mem, err := asBuffer(buf)
	if err != nil {
		return err
	}
	mem.freed = true
	mem.data = nil
	return nil
}

// EnqueueWrite copies host memory into the buffer. The queue executes
// immediately, so FIFO ordering holds trivially and the blocking flag is
// moot.
func (b *Backend) EnqueueWrite(q backends.Queue, buf backends.Buffer, hostBytes []byte, blocking bool) error {
	if _, err := asQueue(q); err != nil {
		return err
	}
	mem, err := asLiveBuffer(buf)
	if err != nil {
		return err
	}
	if len(hostBytes) > len(mem.data) {
		return backends.InvalidArgumentf("write of %d bytes exceeds buffer of %d", len(hostBytes), len(mem.data))
	}
	copy(mem.data, hostBytes)
	return nil
}

// EnqueueRead copies the buffer into host memory.
func (b *Backend) EnqueueRead(q backends.Queue, buf backends.Buffer, hostBytes []byte, blocking bool) error {
	if _, err := asQueue(q); err != nil {
		return err
	}
	mem, err := asLiveBuffer(buf)
	if err != nil {
		return err
	}
	if len(hostBytes) > len(mem.data) {
		return backends.InvalidArgumentf("read of %d bytes exceeds buffer of %d", len(hostBytes), len(mem.data))
	}
	copy(hostBytes, mem.data)
	return nil
}

// EnqueueKernel runs the kernel for every global id, sequentially. Buffer
// arguments are passed to the kernel function as live []byte views.
func (b *Backend) EnqueueKernel(q backends.Queue, k backends.Kernel, globalSize, localSize int) error {
	if _, err := asQueue(q); err != nil {
		return err
	}
	krn, err := asKernel(k)
	if err != nil {
		return err
	}
	if localSize <= 0 || globalSize <= 0 || globalSize%localSize != 0 {
		return backends.InvalidArgumentf("kernel %q: global size %d is not a positive multiple of local size %d",
			krn.name, globalSize, localSize)
	}
	args := make([]any, len(krn.args))
	for i, a := range krn.args {
		if mem, ok := a.(*buffer); ok {
			if mem.freed {
				return backends.DeviceErrorf("kernel %q: argument %d is a released buffer", krn.name, i)
			}
			args[i] = mem.data
			continue
		}
		args[i] = a
	}
	for gid := 0; gid < globalSize; gid++ {
		krn.fn(gid, args)
	}
	return nil
}

// Finalize releases all resources associated with the backend.
func (b *Backend) Finalize() {}

func (k *kernel) setArg(index int, value any) {
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = value
}

func asQueue(q backends.Queue) (*queue, error) {
	if v, ok := q.(*queue); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not a hostgo queue: %T", q)
}

func asProgram(p backends.Program) (*program, error) {
	if v, ok := p.(*program); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not a hostgo program: %T", p)
}

func asKernel(k backends.Kernel) (*kernel, error) {
	if v, ok := k.(*kernel); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not a hostgo kernel: %T", k)
}

func asBuffer(b backends.Buffer) (*buffer, error) {
	if v, ok := b.(*buffer); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not a hostgo buffer: %T", b)
}

func asLiveBuffer(b backends.Buffer) (*buffer, error) {
	mem, err := asBuffer(b)
	if err != nil {
		return nil, err
	}
	if mem.freed {
		return nil, backends.DeviceErrorf("buffer already released")
	}
	return mem, nil
}

// Uint8s reinterprets a kernel buffer argument as a []uint8 view.
func Uint8s(arg any) []uint8 { return arg.([]byte) }

// Int32s reinterprets a kernel buffer argument as an []int32 view.
func Int32s(arg any) []int32 { return argView[int32](arg) }

// Float32s reinterprets a kernel buffer argument as a []float32 view.
func Float32s(arg any) []float32 { return argView[float32](arg) }

// Float64s reinterprets a kernel buffer argument as a []float64 view.
func Float64s(arg any) []float64 { return argView[float64](arg) }

func argView[T int32 | float32 | float64](arg any) []T {
	data := arg.([]byte)
	if len(data) == 0 {
		return nil
	}
	var v T
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/int(unsafe.Sizeof(v)))
}
