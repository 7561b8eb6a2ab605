package simplecl

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/thi-ng/simplecl/backends"
)

// ExecOptions control result extraction and resource release of one
// Execute call.
type ExecOptions struct {
	// FinalSize bounds how many elements of the final output buffer are
	// extracted. Zero means the buffer's full capacity.
	FinalSize int

	// FinalType optionally reinterprets the final output buffer's memory as
	// a different element type for extraction. InvalidType (the zero value)
	// keeps the buffer's native type.
	FinalType ElementType

	// Verbose logs per-phase timings through klog.
	Verbose bool

	// KeepBuffers suppresses the release of the pipeline's buffers and
	// kernels, for reuse across repeated invocations (simulation loops).
	KeepBuffers bool
}

// Execute submits every operation of the compiled pipeline, in order, to
// the context's command queue. Writes and dispatches are asynchronous
// enqueues; reads marked blocking are the only points the host waits.
//
// If the pipeline has a final output buffer, its first FinalSize elements
// are copied into a standalone host slice (of the buffer's element type, or
// FinalType if set) that stays valid after release, and returned as a flat
// slice ([]uint8, []int32, []float32 or []float64). Pipelines without a
// final output return nil.
//
// Unless opts.KeepBuffers is set, every buffer and kernel materialized or
// tracked by the pipeline is released before returning, including on the
// error paths after submission started.
func Execute(ctx *Context, p *Pipeline, opts ExecOptions) (any, error) {
	start := time.Now()
	if !opts.KeepBuffers {
		defer p.Release(ctx)
	}

	for i := range p.Ops {
		op := &p.Ops[i]
		switch op.Kind {
		case OpWrite:
			if err := ctx.backend.EnqueueWrite(ctx.queue, op.Buffer.handle, op.Buffer.data, false); err != nil {
				return nil, backends.DeviceErrorf("op %d: enqueueing write: %v", i, err)
			}
		case OpRead:
			if err := ctx.backend.EnqueueRead(ctx.queue, op.Buffer.handle, op.Buffer.data, op.Blocking); err != nil {
				return nil, backends.DeviceErrorf("op %d: enqueueing read: %v", i, err)
			}
			op.Buffer.Rewind()
		case OpDispatch:
			if err := ctx.backend.EnqueueKernel(ctx.queue, op.Kernel.handle, op.Work.Global, op.Work.Local); err != nil {
				return nil, backends.DeviceErrorf("op %d: dispatching kernel %q (global=%d local=%d): %v",
					i, op.Kernel.name, op.Work.Global, op.Work.Local, err)
			}
		default:
			return nil, backends.InvalidArgumentf("op %d: unknown operation kind %d", i, int(op.Kind))
		}
	}
	submitted := time.Now()

	var result any
	if p.Final != nil {
		var err error
		result, err = extractFinal(ctx, p.Final, opts)
		if err != nil {
			return nil, err
		}
	} else if err := ctx.Finish(); err != nil {
		// No blocking final read to drain the queue, but the buffers may be
		// about to be released underneath still-pending operations.
		return nil, err
	}

	if opts.Verbose {
		klog.Infof("pipeline: %d ops submitted in %s, completed in %s",
			len(p.Ops), submitted.Sub(start), time.Since(start))
	}
	return result, nil
}

// extractFinal copies the bounded final slice out of the device buffer via
// a blocking read into a standalone host region.
func extractFinal(ctx *Context, final *Buffer, opts ExecOptions) (any, error) {
	typ := final.typ
	if opts.FinalType != InvalidType {
		if !opts.FinalType.Valid() {
			return nil, backends.InvalidArgumentf("unsupported final element type %d", int(opts.FinalType))
		}
		typ = opts.FinalType
	}
	capacity := len(final.data) / typ.Size()
	n := opts.FinalSize
	if n <= 0 || n > capacity {
		n = capacity
	}
	result, staging := typ.alloc(n)
	if err := ctx.backend.EnqueueRead(ctx.queue, final.handle, staging, true); err != nil {
		return nil, backends.DeviceErrorf("reading final output (%d x %s): %v", n, typ, err)
	}
	return result, nil
}

// Release frees every tracked buffer and kernel. Execute calls it unless
// told to keep buffers; callers discarding a compiled-but-unexecuted
// pipeline should call it themselves. Failures are logged, not returned:
// release also runs on error paths and must not mask the primary error.
func (p *Pipeline) Release(ctx *Context) {
	for _, b := range p.Buffers {
		if err := b.Release(ctx); err != nil {
			klog.Warningf("releasing pipeline buffer: %v", err)
		}
	}
	for _, k := range p.kernels {
		if err := k.Release(ctx); err != nil {
			klog.Warningf("releasing pipeline kernel %q: %v", k.name, err)
		}
	}
}
