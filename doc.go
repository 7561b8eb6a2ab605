// Package simplecl is a declarative compiler and scheduler for multi-kernel
// GPU compute pipelines.
//
// A pipeline is a sequence of named Steps: kernel invocations that name
// their input/output buffers literally, by spec, or by reference to an
// earlier step's buffers, plus transfer-only steps that just move data.
// Compile resolves the references, materializes buffers and kernels, sizes
// each 1-D dispatch, and linearizes everything into a flat operation queue;
// Execute submits that queue to one in-order device command queue, extracts
// a bounded slice of the final output, and releases the resources in play.
// FlipFlop generates the alternating step variants needed to iterate a
// kernel over two buffers without intermediate copies.
//
// Device access goes through the narrow interface of package
// github.com/thi-ng/simplecl/backends. Import a backend for its side
// effects to make it available:
//
//	import _ "github.com/thi-ng/simplecl/backends/opencl"
//
// or use github.com/thi-ng/simplecl/backends/hostgo to run pipelines with
// pure-Go kernels (no GPU required), which is also how this module tests
// itself.
//
// All device state a call needs travels in an explicit *Context value; the
// package keeps no global device state. A Context (and the single command
// queue it wraps) serializes everything submitted through it, so concurrent
// pipelines need separate Contexts.
package simplecl
