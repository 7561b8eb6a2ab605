package simplecl

import (
	"golang.org/x/exp/constraints"

	"github.com/thi-ng/simplecl/backends"
)

// Kernel is a handle to one entry point of the context's built program,
// together with the device-reported maximum work-group size for it.
//
// A kernel must be fully configured (all arguments bound, see Configure)
// before it is dispatched. Reusing a kernel across frames with different
// buffers just means calling Configure again: binding always starts over
// from argument index 0.
type Kernel struct {
	name             string
	handle           backends.Kernel
	maxWorkGroupSize int
}

// NewKernel looks up the named entry point in the context's program and
// queries its device work-group limit.
func NewKernel(ctx *Context, name string) (*Kernel, error) {
	if ctx.program == nil {
		return nil, backends.InvalidArgumentf("context has no built program to look up kernel %q in", name)
	}
	handle, err := ctx.backend.KernelByName(ctx.program, name)
	if err != nil {
		return nil, backends.DeviceErrorf("creating kernel %q: %v", name, err)
	}
	maxWG, err := ctx.backend.KernelMaxWorkGroupSize(handle, ctx.device)
	if err != nil {
		return nil, backends.DeviceErrorf("querying work-group size of kernel %q: %v", name, err)
	}
	return &Kernel{name: name, handle: handle, maxWorkGroupSize: maxWG}, nil
}

// Name returns the kernel's entry point name.
func (k *Kernel) Name() string { return k.name }

// MaxWorkGroupSize returns the device-reported work-group limit for this
// kernel.
func (k *Kernel) MaxWorkGroupSize() int { return k.maxWorkGroupSize }

// Handle returns the backend kernel handle.
func (k *Kernel) Handle() backends.Kernel { return k.handle }

// Release frees the kernel handle.
func (k *Kernel) Release(ctx *Context) error {
	if err := ctx.backend.KernelFinalize(k.handle); err != nil {
		return backends.DeviceErrorf("releasing kernel %q: %v", k.name, err)
	}
	return nil
}

// Configure binds the kernel's argument list: the buffers in order, then
// the scalars in order. Scalars must be int32, float32 or float64; anything
// else fails with ErrInvalidArgument before any argument past it is bound.
// Configure always starts from argument index 0, so re-binding a reused
// kernel is idempotent.
func (k *Kernel) Configure(ctx *Context, buffers []*Buffer, scalars []any) error {
	idx := 0
	for _, b := range buffers {
		if err := ctx.backend.KernelSetBufferArg(k.handle, idx, b.handle); err != nil {
			return backends.DeviceErrorf("kernel %q: binding buffer argument %d: %v", k.name, idx, err)
		}
		idx++
	}
	for _, s := range scalars {
		switch s.(type) {
		case int32, float32, float64:
			// The supported scalar kinds.
		default:
			return backends.InvalidArgumentf("kernel %q: scalar argument %d has unsupported type %T", k.name, idx, s)
		}
		if err := ctx.backend.KernelSetScalarArg(k.handle, idx, s); err != nil {
			return backends.DeviceErrorf("kernel %q: binding scalar argument %d: %v", k.name, idx, err)
		}
		idx++
	}
	return nil
}

// WorkSize is the 1-D dispatch sizing for one kernel invocation.
type WorkSize struct {
	// Local is the work-group size.
	Local int
	// Global is the total number of work-items, always a multiple of Local.
	Global int
}

// ComputeSizing derives the dispatch sizing for n work-items: the local
// size is the device-reported maximum for the kernel, capped by
// DefaultLocalSizeCap and by maxLocal (when positive); the global size is n
// rounded up to the next multiple of the local size.
//
// The round-up means up to Local-1 excess work-items run per dispatch;
// kernels must bounds-check get_global_id(0) against the true item count.
func (k *Kernel) ComputeSizing(n, maxLocal int) WorkSize {
	local := min(k.maxWorkGroupSize, DefaultLocalSizeCap)
	if maxLocal > 0 {
		local = min(local, maxLocal)
	}
	if local < 1 {
		local = 1
	}
	return WorkSize{Local: local, Global: roundUpMultiple(n, local)}
}

// roundUpMultiple returns the smallest multiple of m that is >= n.
func roundUpMultiple[T constraints.Integer](n, m T) T {
	if rem := n % m; rem != 0 {
		return n + m - rem
	}
	return n
}
