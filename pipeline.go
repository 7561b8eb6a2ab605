package simplecl

import "github.com/thi-ng/simplecl/backends"

// OpKind tags one entry of a compiled operation queue.
type OpKind int

const (
	// OpInvalid is the zero OpKind; executing it is an ErrInvalidArgument.
	OpInvalid OpKind = iota
	// OpWrite is a host-to-device transfer of a buffer's host view.
	OpWrite
	// OpRead is a device-to-host transfer into a buffer's host view.
	OpRead
	// OpDispatch is a 1-D kernel dispatch.
	OpDispatch
)

// String implements fmt.Stringer.
func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	case OpDispatch:
		return "dispatch"
	}
	return "invalid"
}

// Op is one device operation of a compiled pipeline.
type Op struct {
	Kind OpKind

	// Buffer is the transfer target for OpWrite/OpRead.
	Buffer *Buffer
	// Blocking marks a read that forces the host to wait for completion.
	Blocking bool

	// Kernel and Work describe an OpDispatch.
	Kernel *Kernel
	Work   WorkSize
}

// stepRecord is the materialized form of one compiled kernel step, kept for
// back-references from later steps.
type stepRecord struct {
	id     string
	kernel *Kernel
	in     []*Buffer
	out    []*Buffer
}

// lastOut returns the step's last output buffer, or nil if it has none.
func (r *stepRecord) lastOut() *Buffer {
	if len(r.out) == 0 {
		return nil
	}
	return r.out[len(r.out)-1]
}

// buffersOf returns the record's buffer list for the given role.
func (r *stepRecord) buffersOf(role Role) []*Buffer {
	if role == RoleOut {
		return r.out
	}
	return r.in
}

// Pipeline is the result of compiling a step list: a flat operation queue,
// the set of buffers in play, and the designated final output.
//
// The queue order guarantees that each kernel step's declared pre-write
// operations precede its dispatch and its declared post-read operations
// follow it. Submitting the queue to one in-order command queue executes
// the whole pipeline deterministically.
type Pipeline struct {
	// Ops is the ordered operation queue.
	Ops []Op

	// Buffers is the union of all kernel-step input/output buffers, in
	// first-touch order. Execute releases them unless told otherwise.
	Buffers []*Buffer

	// Final is the last kernel step's last output buffer, or nil for a
	// pipeline without kernel steps.
	Final *Buffer

	// kernels are the per-step kernel handles, released with the buffers.
	kernels []*Kernel
}

// compiler is the accumulator state while processing steps in order.
type compiler struct {
	ctx     *Context
	ops     []Op
	records []*stepRecord
	byID    map[string]*stepRecord
}

// Compile resolves a step list into a Pipeline, processing steps strictly
// in the order given. Buffers named by BufferSpec entries are allocated
// (and filled) eagerly, so a failed compilation can leave already
// materialized buffers behind; callers passing in their own buffers should
// treat a compile error as needing explicit cleanup.
func Compile(ctx *Context, steps []Step) (*Pipeline, error) {
	c := &compiler{ctx: ctx, byID: make(map[string]*stepRecord)}
	p := &Pipeline{}
	for i := range steps {
		step := &steps[i]
		if step.transferOnly() {
			if err := c.compileTransfer(step); err != nil {
				return nil, err
			}
			continue
		}
		record, err := c.compileKernelStep(step)
		if err != nil {
			return nil, err
		}
		p.kernels = append(p.kernels, record.kernel)
	}
	seen := make(map[*Buffer]bool)
	for _, r := range c.records {
		for _, b := range append(r.in[:len(r.in):len(r.in)], r.out...) {
			if b != nil && !seen[b] {
				seen[b] = true
				p.Buffers = append(p.Buffers, b)
			}
		}
	}
	if n := len(c.records); n > 0 {
		p.Final = c.records[n-1].lastOut()
	}
	p.Ops = c.ops
	return p, nil
}

// compileKernelStep materializes one kernel step: resolves its buffer
// references, creates and configures the kernel, computes the dispatch
// sizing and appends write/dispatch/read operations in that order.
func (c *compiler) compileKernelStep(step *Step) (*stepRecord, error) {
	id := step.ID
	if id == "" {
		id = step.Kernel
	}
	if step.N <= 0 {
		return nil, backends.InvalidArgumentf("step %q: item count must be positive, got %d", id, step.N)
	}

	record := &stepRecord{id: id}
	var err error
	if record.in, err = c.resolveAll(step.In, id, RoleIn); err != nil {
		return nil, err
	}
	if record.out, err = c.resolveAll(step.Out, id, RoleOut); err != nil {
		return nil, err
	}

	stepCtx := c.ctx
	if step.Program != nil {
		stepCtx = c.ctx.WithProgram(step.Program)
	}
	record.kernel, err = NewKernel(stepCtx, step.Kernel)
	if err != nil {
		return nil, err
	}
	buffers := append(record.in[:len(record.in):len(record.in)], record.out...)
	if err = record.kernel.Configure(stepCtx, buffers, step.Args); err != nil {
		return nil, err
	}
	work := record.kernel.ComputeSizing(step.N, step.MaxLocal)

	for _, slot := range step.Write {
		b, err := c.slotBuffer(record, slot)
		if err != nil {
			return nil, err
		}
		c.ops = append(c.ops, Op{Kind: OpWrite, Buffer: b})
	}
	c.ops = append(c.ops, Op{Kind: OpDispatch, Kernel: record.kernel, Work: work})
	for _, slot := range step.Read {
		b, err := c.slotBuffer(record, slot)
		if err != nil {
			return nil, err
		}
		c.ops = append(c.ops, Op{Kind: OpRead, Buffer: b, Blocking: true})
	}

	c.records = append(c.records, record)
	c.byID[id] = record
	return record, nil
}

// compileTransfer appends the operations of a transfer-only step. Its
// buffers must be concrete; they are not recorded for back-reference or
// release.
func (c *compiler) compileTransfer(step *Step) error {
	for i, b := range step.WriteBuffers {
		if b == nil {
			return backends.InvalidArgumentf("transfer step: write buffer %d is nil", i)
		}
		c.ops = append(c.ops, Op{Kind: OpWrite, Buffer: b})
	}
	for i, b := range step.ReadBuffers {
		if b == nil {
			return backends.InvalidArgumentf("transfer step: read buffer %d is nil", i)
		}
		c.ops = append(c.ops, Op{Kind: OpRead, Buffer: b, Blocking: true})
	}
	return nil
}

// resolveAll resolves one side of a step's buffer list.
func (c *compiler) resolveAll(inputs []Input, stepID string, role Role) ([]*Buffer, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	buffers := make([]*Buffer, len(inputs))
	for i, in := range inputs {
		b, err := c.resolve(in, stepID, role, i)
		if err != nil {
			return nil, err
		}
		buffers[i] = b
	}
	return buffers, nil
}

// resolve maps one Input variant onto a concrete buffer, per the reference
// resolution rules documented on Input.
func (c *compiler) resolve(in Input, stepID string, role Role, pos int) (*Buffer, error) {
	switch ref := in.(type) {
	case nil:
		if len(c.records) == 0 {
			return nil, backends.InvalidArgumentf("step %q: %s %d defaults to the previous step's output, but there is no previous step", stepID, role, pos)
		}
		prev := c.records[len(c.records)-1]
		if b := prev.lastOut(); b != nil {
			return b, nil
		}
		return nil, backends.InvalidArgumentf("step %q: %s %d defaults to the previous step's output, but step %q has no outputs", stepID, role, pos, prev.id)
	case Literal:
		if ref.Buffer == nil {
			return nil, backends.InvalidArgumentf("step %q: %s %d is a nil literal buffer", stepID, role, pos)
		}
		return ref.Buffer, nil
	case BufferSpec:
		b, err := NewBuffer(c.ctx, ref.Type, ref.Count, ref.Usage)
		if err != nil {
			return nil, err
		}
		if ref.Fill != nil {
			b.Fill(ref.Fill)
		}
		return b, nil
	case StepOutput:
		prev, ok := c.byID[ref.StepID]
		if !ok {
			return nil, backends.InvalidArgumentf("step %q: %s %d references unknown step %q", stepID, role, pos, ref.StepID)
		}
		if b := prev.lastOut(); b != nil {
			return b, nil
		}
		return nil, backends.InvalidArgumentf("step %q: %s %d references step %q, which has no outputs", stepID, role, pos, ref.StepID)
	case BufferAt:
		prev, ok := c.byID[ref.StepID]
		if !ok {
			return nil, backends.InvalidArgumentf("step %q: %s %d references unknown step %q", stepID, role, pos, ref.StepID)
		}
		list := prev.buffersOf(ref.Role)
		if ref.Index < 0 || ref.Index >= len(list) {
			return nil, backends.InvalidArgumentf("step %q: %s %d references %s buffer %d of step %q, which has %d", stepID, role, pos, ref.Role, ref.Index, ref.StepID, len(list))
		}
		return list[ref.Index], nil
	}
	return nil, backends.InvalidArgumentf("step %q: %s %d has unsupported reference type %T", stepID, role, pos, in)
}

// slotBuffer maps a Slot onto one of the record's own resolved buffers.
func (c *compiler) slotBuffer(record *stepRecord, slot Slot) (*Buffer, error) {
	list := record.buffersOf(slot.Role)
	if slot.Index < 0 || slot.Index >= len(list) {
		return nil, backends.InvalidArgumentf("step %q: transfer slot %s %d out of range, step has %d", record.id, slot.Role, slot.Index, len(list))
	}
	return list[slot.Index], nil
}
