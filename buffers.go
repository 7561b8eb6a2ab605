package simplecl

import (
	"iter"

	"github.com/thi-ng/simplecl/backends"
)

// Buffer is a typed region of device memory together with a host-side
// staging view. The host view carries a read/write position in elements,
// matching the rewind-sensitive semantics of Fill and Values: both operate
// on the elements from the current position to the end.
//
// Buffers materialized by a pipeline are owned by it and released by
// Execute; buffers the caller wraps or allocates directly stay owned by the
// caller (see Step inputs).
type Buffer struct {
	typ    ElementType
	count  int
	usage  Usage
	handle backends.Buffer

	// data is the host staging view, count*typ.Size() bytes.
	data []byte
	// pos is the current element position of the host view.
	pos int

	released bool
}

// NewBuffer allocates a device buffer of count elements of the given type,
// plus its host staging view.
func NewBuffer(ctx *Context, typ ElementType, count int, usage Usage) (*Buffer, error) {
	if !typ.Valid() {
		return nil, backends.InvalidArgumentf("unsupported element type %d", int(typ))
	}
	if count <= 0 {
		return nil, backends.InvalidArgumentf("buffer element count must be positive, got %d", count)
	}
	_, data := typ.alloc(count)
	var handle backends.Buffer
	var err error
	switch usage {
	case CopyHost, UseHost:
		handle, err = ctx.backend.NewHostBuffer(ctx.device, usage, data)
	default:
		handle, err = ctx.backend.NewDeviceBuffer(ctx.device, usage, len(data))
	}
	if err != nil {
		return nil, backends.DeviceErrorf("allocating %d x %s buffer: %v", count, typ, err)
	}
	return &Buffer{typ: typ, count: count, usage: usage, handle: handle, data: data}, nil
}

// Wrap copies host values into a freshly allocated device buffer of the
// inferred element type. The returned buffer is rewound.
func Wrap[T Element](ctx *Context, values []T, usage Usage) (*Buffer, error) {
	b, err := NewBuffer(ctx, TypeOf[T](), len(values), usage)
	if err != nil {
		return nil, err
	}
	copy(view[T](b.data), values)
	return b.Rewind(), nil
}

// WrapBytes creates a device buffer over an existing host memory region,
// reinterpreted as count elements of the given type, where
// count = len(data)/typ.Size(). Depending on usage the device shares or
// copies the memory. The returned buffer is rewound.
func WrapBytes(ctx *Context, data []byte, typ ElementType, usage Usage) (*Buffer, error) {
	if !typ.Valid() {
		return nil, backends.InvalidArgumentf("unsupported element type %d", int(typ))
	}
	count := len(data) / typ.Size()
	if count == 0 {
		return nil, backends.InvalidArgumentf("host region of %d bytes holds no %s elements", len(data), typ)
	}
	handle, err := ctx.backend.NewHostBuffer(ctx.device, usage, data)
	if err != nil {
		return nil, backends.DeviceErrorf("wrapping %d bytes as %s buffer: %v", len(data), typ, err)
	}
	return &Buffer{typ: typ, count: count, usage: usage, handle: handle, data: data}, nil
}

// Type returns the buffer's element type.
func (b *Buffer) Type() ElementType { return b.typ }

// Len returns the buffer's element count.
func (b *Buffer) Len() int { return b.count }

// Usage returns the buffer's usage flag.
func (b *Buffer) Usage() Usage { return b.usage }

// Handle returns the backend buffer handle.
func (b *Buffer) Handle() backends.Buffer { return b.handle }

// Bytes returns the host staging view. Mutations are visible to the next
// enqueued write; device results land here after an enqueued read.
func (b *Buffer) Bytes() []byte { return b.data }

// Remaining returns the number of elements between the current position and
// the end of the buffer.
func (b *Buffer) Remaining() int { return b.count - b.pos }

// Rewind resets the host view position to the first element.
func (b *Buffer) Rewind() *Buffer {
	b.pos = 0
	return b
}

// Fill overwrites every remaining element of the host view with gen(i),
// cast to the buffer's element type, where i is the absolute element
// position. The buffer is rewound afterwards.
//
// gen must be a pure function of its position: Fill may be re-run against
// the same buffer and has to produce identical contents.
func (b *Buffer) Fill(gen func(i int) float64) *Buffer {
	for i := b.pos; i < b.count; i++ {
		b.typ.put(b.data, i, gen(i))
	}
	return b.Rewind()
}

// Values is a forward-only iterator over the remaining elements of the host
// view, widened to float64 (exact for all supported element types). Iterated
// elements are consumed: the position advances as the sequence is walked and
// the iterator is not restartable without an explicit Rewind.
func (b *Buffer) Values() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for b.pos < b.count {
			v := b.typ.at(b.data, b.pos)
			b.pos++
			if !yield(v) {
				return
			}
		}
	}
}

// Floats collects the remaining elements into a fresh []float64, consuming
// them like Values.
func (b *Buffer) Floats() []float64 {
	out := make([]float64, 0, b.Remaining())
	for v := range b.Values() {
		out = append(out, v)
	}
	return out
}

// Write enqueues a host-to-device transfer of the full host view through
// the context's queue.
func (b *Buffer) Write(ctx *Context, blocking bool) error {
	if err := ctx.backend.EnqueueWrite(ctx.queue, b.handle, b.data, blocking); err != nil {
		return backends.DeviceErrorf("writing %d x %s buffer: %v", b.count, b.typ, err)
	}
	return nil
}

// ReadBack enqueues a blocking device-to-host transfer into the host view
// and rewinds it.
func (b *Buffer) ReadBack(ctx *Context) error {
	if err := ctx.backend.EnqueueRead(ctx.queue, b.handle, b.data, true); err != nil {
		return backends.DeviceErrorf("reading %d x %s buffer: %v", b.count, b.typ, err)
	}
	b.Rewind()
	return nil
}

// Release frees the buffer's device memory. Releasing an already-released
// buffer is a no-op.
func (b *Buffer) Release(ctx *Context) error {
	if b.released {
		return nil
	}
	b.released = true
	if err := ctx.backend.BufferFinalize(b.handle); err != nil {
		return backends.DeviceErrorf("releasing %d x %s buffer: %v", b.count, b.typ, err)
	}
	return nil
}
