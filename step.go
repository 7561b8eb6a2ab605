package simplecl

import "github.com/thi-ng/simplecl/backends"

// Role selects one side of a step's buffer list in back-references and
// transfer slots.
type Role int

const (
	// RoleIn selects a step's input buffers.
	RoleIn Role = iota
	// RoleOut selects a step's output buffers.
	RoleOut
)

// String implements fmt.Stringer.
func (r Role) String() string {
	if r == RoleOut {
		return "out"
	}
	return "in"
}

// Input is the closed set of ways a step names one of its buffers:
//
//   - Literal: a concrete, already-materialized buffer.
//   - BufferSpec: a buffer to materialize during compilation.
//   - StepOutput: the last output buffer of a previously compiled step.
//   - BufferAt: a specific buffer of a previously compiled step, selected
//     by role and position.
//   - a nil Input: the last output buffer of the most recently compiled
//     kernel step (linear chaining without explicit ids).
//
// The very first kernel step of a pipeline has no predecessor, so its
// entries must be Literal or BufferSpec.
type Input interface {
	isInput()
}

// Literal wraps a concrete buffer. The buffer stays owned by whoever
// created it; the pipeline still tracks it for release unless Execute is
// told to keep buffers.
type Literal struct {
	Buffer *Buffer
}

func (Literal) isInput() {}

// Lit is shorthand for Literal{Buffer: b}.
func Lit(b *Buffer) Input { return Literal{Buffer: b} }

// BufferSpec describes a buffer for the compiler to materialize: count
// elements of the given type, optionally pre-filled host-side with Fill
// (see Buffer.Fill; the fill is host-only until an enqueued write transfers
// it).
type BufferSpec struct {
	Type  ElementType
	Count int
	Usage Usage
	Fill  func(i int) float64
}

func (BufferSpec) isInput() {}

// StepOutput references the last output buffer of the previously compiled
// step with the given id (or kernel name, for steps without an id).
type StepOutput struct {
	StepID string
}

func (StepOutput) isInput() {}

// BufferAt references one buffer of a previously compiled step by role and
// position within that step's input or output list.
type BufferAt struct {
	StepID string
	Role   Role
	Index  int
}

func (BufferAt) isInput() {}

// Slot names one of the current step's own resolved buffers, for declaring
// pre-dispatch writes and post-dispatch reads.
type Slot struct {
	Role  Role
	Index int
}

// In names the step's input buffer at index i.
func In(i int) Slot { return Slot{Role: RoleIn, Index: i} }

// Out names the step's output buffer at index i.
func Out(i int) Slot { return Slot{Role: RoleOut, Index: i} }

// Step is the unit of a pipeline description. A step with a Kernel name is
// a kernel-invocation step; a step without one is a transfer-only step that
// just enqueues writes and reads for concrete buffers.
//
// Kernel steps are recorded under ID (or under Kernel when ID is empty) and
// can be back-referenced by later steps. Transfer-only steps cannot.
type Step struct {
	// ID names the step for back-references. Optional; defaults to Kernel.
	ID string

	// Kernel is the program entry point to dispatch. Empty for
	// transfer-only steps.
	Kernel string

	// Program optionally overrides the context's program for this step.
	Program backends.Program

	// In and Out are the kernel's buffer arguments, bound in order: all of
	// In, then all of Out.
	In  []Input
	Out []Input

	// Args are the kernel's scalar arguments, bound after the buffers.
	// Each must be an int32, float32 or float64.
	Args []any

	// N is the requested number of work-items.
	N int

	// MaxLocal optionally caps the local work-group size for this step.
	MaxLocal int

	// Write lists the step's own buffers to enqueue for writing
	// (asynchronously) before the dispatch.
	Write []Slot

	// Read lists the step's own buffers to enqueue for reading (blocking)
	// after the dispatch.
	Read []Slot

	// WriteBuffers and ReadBuffers are only used by transfer-only steps:
	// concrete buffers to enqueue for writing (asynchronous) and reading
	// (blocking), with no dependency resolution.
	WriteBuffers []*Buffer
	ReadBuffers  []*Buffer
}

// transferOnly reports whether the step has no kernel involved.
func (s *Step) transferOnly() bool { return s.Kernel == "" }
