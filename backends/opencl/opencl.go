//go:build cgo

// Package opencl implements the simplecl backend on OpenCL, through the
// github.com/jgillich/go-opencl/cl bindings.
//
// The backend owns the platform, device list and context; one simplecl
// Context on top of it owns a command queue. Program building reports the
// device build log inside the returned error.
//
// Building this package requires cgo and an OpenCL SDK.
package opencl

import (
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
	"github.com/pkg/errors"

	"github.com/thi-ng/simplecl/backends"
)

// BackendName to be used in SIMPLECL_BACKEND to specify this backend.
const BackendName = "opencl"

func init() {
	backends.Register(BackendName, func(config string) backends.Backend {
		b, err := New(config)
		if err != nil {
			panic(err)
		}
		return b
	})
}

// Backend implements backends.Backend on one OpenCL platform.
type Backend struct {
	platform *cl.Platform
	devices  []*cl.Device
	context  *cl.Context
}

// Compile-time check.
var _ backends.Backend = (*Backend)(nil)

// New selects an OpenCL platform and creates a context over all its
// devices. A non-empty config selects the first platform whose name
// contains it (case-insensitive); otherwise the first platform with any
// device wins.
func New(config string) (*Backend, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, backends.DeviceErrorf("enumerating OpenCL platforms: %v", err)
	}
	for _, platform := range platforms {
		if config != "" && !strings.Contains(strings.ToLower(platform.Name()), strings.ToLower(config)) {
			continue
		}
		devices, err := platform.GetDevices(cl.DeviceTypeAll)
		if err != nil || len(devices) == 0 {
			continue
		}
		context, err := cl.CreateContext(devices)
		if err != nil {
			return nil, backends.DeviceErrorf("creating context on platform %q: %v", platform.Name(), err)
		}
		return &Backend{platform: platform, devices: devices, context: context}, nil
	}
	return nil, errors.Errorf("no OpenCL platform matching %q with usable devices", config)
}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// Description names the selected platform.
func (b *Backend) Description() string {
	return "OpenCL platform " + b.platform.Name()
}

// NumDevices returns the number of devices in the context.
func (b *Backend) NumDevices() backends.DeviceNum {
	return backends.DeviceNum(len(b.devices))
}

// DeviceInfo describes the given device.
func (b *Backend) DeviceInfo(device backends.DeviceNum) (backends.DeviceInfo, error) {
	dev, err := b.device(device)
	if err != nil {
		return backends.DeviceInfo{}, err
	}
	return backends.DeviceInfo{
		Name:             dev.Name(),
		Vendor:           dev.Vendor(),
		MaxWorkGroupSize: dev.MaxWorkGroupSize(),
		GlobalMemBytes:   uint64(dev.GlobalMemSize()),
	}, nil
}

// NewQueue creates an in-order command queue on the given device.
func (b *Backend) NewQueue(device backends.DeviceNum) (backends.Queue, error) {
	dev, err := b.device(device)
	if err != nil {
		return nil, err
	}
	queue, err := b.context.CreateCommandQueue(dev, 0)
	if err != nil {
		return nil, backends.DeviceErrorf("creating command queue: %v", err)
	}
	return queue, nil
}

// QueueFinish blocks until the queue has drained.
func (b *Backend) QueueFinish(q backends.Queue) error {
	queue, err := asQueue(q)
	if err != nil {
		return err
	}
	if err := queue.Finish(); err != nil {
		return backends.DeviceErrorf("clFinish: %v", err)
	}
	return nil
}

// QueueFinalize releases the queue.
func (b *Backend) QueueFinalize(q backends.Queue) error {
	queue, err := asQueue(q)
	if err != nil {
		return err
	}
	queue.Release()
	return nil
}

// BuildProgram compiles and builds source for the given device. The cl
// bindings fold the device build log into the build error.
func (b *Backend) BuildProgram(device backends.DeviceNum, source string) (backends.Program, error) {
	dev, err := b.device(device)
	if err != nil {
		return nil, err
	}
	program, err := b.context.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, backends.DeviceErrorf("creating program: %v", err)
	}
	if err := program.BuildProgram([]*cl.Device{dev}, ""); err != nil {
		program.Release()
		return nil, backends.BuildFailuref("%v", err)
	}
	return program, nil
}

// ProgramFinalize releases the program.
func (b *Backend) ProgramFinalize(p backends.Program) error {
	program, err := asProgram(p)
	if err != nil {
		return err
	}
	program.Release()
	return nil
}

// KernelByName returns a handle to the named program entry point.
func (b *Backend) KernelByName(p backends.Program, name string) (backends.Kernel, error) {
	program, err := asProgram(p)
	if err != nil {
		return nil, err
	}
	kernel, err := program.CreateKernel(name)
	if err != nil {
		return nil, backends.DeviceErrorf("creating kernel %q: %v", name, err)
	}
	return kernel, nil
}

// KernelMaxWorkGroupSize queries CL_KERNEL_WORK_GROUP_SIZE.
func (b *Backend) KernelMaxWorkGroupSize(k backends.Kernel, device backends.DeviceNum) (int, error) {
	kernel, err := asKernel(k)
	if err != nil {
		return 0, err
	}
	dev, err := b.device(device)
	if err != nil {
		return 0, err
	}
	size, err := kernel.WorkGroupSize(dev)
	if err != nil {
		return 0, backends.DeviceErrorf("querying kernel work-group size: %v", err)
	}
	return size, nil
}

// KernelSetBufferArg binds a device buffer to an argument slot.
func (b *Backend) KernelSetBufferArg(k backends.Kernel, index int, buf backends.Buffer) error {
	kernel, err := asKernel(k)
	if err != nil {
		return err
	}
	mem, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if err := kernel.SetArg(index, mem); err != nil {
		return backends.DeviceErrorf("setting buffer argument %d: %v", index, err)
	}
	return nil
}

// KernelSetScalarArg binds an int32, float32 or float64 to an argument slot.
func (b *Backend) KernelSetScalarArg(k backends.Kernel, index int, value any) error {
	kernel, err := asKernel(k)
	if err != nil {
		return err
	}
	var err2 error
	switch v := value.(type) {
	case int32, float32:
		err2 = kernel.SetArg(index, v)
	case float64:
		// The cl bindings' SetArg switch has no float64 case.
		err2 = kernel.SetArgUnsafe(index, int(unsafe.Sizeof(v)), unsafe.Pointer(&v))
	default:
		return backends.InvalidArgumentf("unsupported scalar argument type %T at index %d", value, index)
	}
	if err2 != nil {
		return backends.DeviceErrorf("setting scalar argument %d: %v", index, err2)
	}
	return nil
}

// KernelFinalize releases the kernel.
func (b *Backend) KernelFinalize(k backends.Kernel) error {
	kernel, err := asKernel(k)
	if err != nil {
		return err
	}
	kernel.Release()
	return nil
}

// NewDeviceBuffer allocates device memory.
func (b *Backend) NewDeviceBuffer(device backends.DeviceNum, flags backends.MemFlag, sizeBytes int) (backends.Buffer, error) {
	if _, err := b.device(device); err != nil {
		return nil, err
	}
	mem, err := b.context.CreateEmptyBuffer(memFlag(flags), sizeBytes)
	if err != nil {
		return nil, backends.DeviceErrorf("allocating %d byte buffer: %v", sizeBytes, err)
	}
	return mem, nil
}

// NewHostBuffer creates a device buffer initialized from host memory. The
// cl bindings copy the host region, which satisfies the share-or-copy
// contract for every host-side flag.
func (b *Backend) NewHostBuffer(device backends.DeviceNum, flags backends.MemFlag, hostBytes []byte) (backends.Buffer, error) {
	if _, err := b.device(device); err != nil {
		return nil, err
	}
	mem, err := b.context.CreateBuffer(memFlag(flags), hostBytes)
	if err != nil {
		return nil, backends.DeviceErrorf("creating %d byte host buffer: %v", len(hostBytes), err)
	}
	return mem, nil
}

// BufferFinalize releases the device memory.
func (b *Backend) BufferFinalize(buf backends.Buffer) error {
	mem, err := asBuffer(buf)
	if err != nil {
		return err
	}
	mem.Release()
	return nil
}

// EnqueueWrite submits a host-to-device transfer.
func (b *Backend) EnqueueWrite(q backends.Queue, buf backends.Buffer, hostBytes []byte, blocking bool) error {
	queue, err := asQueue(q)
	if err != nil {
		return err
	}
	mem, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if _, err := queue.EnqueueWriteBuffer(mem, blocking, 0, len(hostBytes), unsafe.Pointer(&hostBytes[0]), nil); err != nil {
		return backends.DeviceErrorf("enqueueing %d byte write: %v", len(hostBytes), err)
	}
	return nil
}

// EnqueueRead submits a device-to-host transfer.
func (b *Backend) EnqueueRead(q backends.Queue, buf backends.Buffer, hostBytes []byte, blocking bool) error {
	queue, err := asQueue(q)
	if err != nil {
		return err
	}
	mem, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if _, err := queue.EnqueueReadBuffer(mem, blocking, 0, len(hostBytes), unsafe.Pointer(&hostBytes[0]), nil); err != nil {
		return backends.DeviceErrorf("enqueueing %d byte read: %v", len(hostBytes), err)
	}
	return nil
}

// EnqueueKernel submits a 1-D NDRange dispatch.
func (b *Backend) EnqueueKernel(q backends.Queue, k backends.Kernel, globalSize, localSize int) error {
	queue, err := asQueue(q)
	if err != nil {
		return err
	}
	kernel, err := asKernel(k)
	if err != nil {
		return err
	}
	if _, err := queue.EnqueueNDRangeKernel(kernel, nil, []int{globalSize}, []int{localSize}, nil); err != nil {
		return backends.DeviceErrorf("enqueueing kernel (global=%d local=%d): %v", globalSize, localSize, err)
	}
	return nil
}

// Finalize releases the context. Queues, programs, kernels and buffers must
// already have been finalized by their owners.
func (b *Backend) Finalize() {
	if b.context != nil {
		b.context.Release()
		b.context = nil
	}
}

func (b *Backend) device(device backends.DeviceNum) (*cl.Device, error) {
	if device < 0 || int(device) >= len(b.devices) {
		return nil, backends.InvalidArgumentf("device %d out of range, platform has %d", device, len(b.devices))
	}
	return b.devices[device], nil
}

// memFlag maps the simplecl usage flags onto cl memory flags.
func memFlag(flags backends.MemFlag) cl.MemFlag {
	switch flags {
	case backends.MemReadOnly:
		return cl.MemReadOnly
	case backends.MemWriteOnly:
		return cl.MemWriteOnly
	case backends.MemAllocHost:
		return cl.MemReadWrite | cl.MemAllocHostPtr
	case backends.MemCopyHost:
		return cl.MemReadWrite | cl.MemCopyHostPtr
	case backends.MemUseHost:
		return cl.MemReadWrite | cl.MemUseHostPtr
	default:
		return cl.MemReadWrite
	}
}

func asQueue(q backends.Queue) (*cl.CommandQueue, error) {
	if v, ok := q.(*cl.CommandQueue); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not an OpenCL queue: %T", q)
}

func asProgram(p backends.Program) (*cl.Program, error) {
	if v, ok := p.(*cl.Program); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not an OpenCL program: %T", p)
}

func asKernel(k backends.Kernel) (*cl.Kernel, error) {
	if v, ok := k.(*cl.Kernel); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not an OpenCL kernel: %T", k)
}

func asBuffer(b backends.Buffer) (*cl.MemObject, error) {
	if v, ok := b.(*cl.MemObject); ok {
		return v, nil
	}
	return nil, backends.InvalidArgumentf("not an OpenCL buffer: %T", b)
}
