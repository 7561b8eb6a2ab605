package simplecl

import (
	"k8s.io/klog/v2"

	"github.com/thi-ng/simplecl/backends"
)

// DefaultLocalSizeCap is the process-wide upper bound on the local
// work-group size, applied on top of the device-reported maximum for each
// kernel. Steps can lower it further via Step.MaxLocal.
const DefaultLocalSizeCap = 256

// Context bundles the device-side state one pipeline runs against: a
// backend, a device, one in-order command queue and (optionally) a built
// program. It is an immutable value threaded explicitly through every
// buffer, kernel and pipeline call; derive variants with WithProgram.
//
// A Context is not safe for concurrent use: its queue serializes everything
// submitted through it. Concurrent pipelines need separate Contexts.
type Context struct {
	backend backends.Backend
	device  backends.DeviceNum
	queue   backends.Queue
	program backends.Program

	// ownsQueue records whether Close should finalize the queue.
	ownsQueue bool
}

// NewContext creates a command queue on the given device and returns the
// Context wrapping it.
func NewContext(backend backends.Backend, device backends.DeviceNum) (*Context, error) {
	queue, err := backend.NewQueue(device)
	if err != nil {
		return nil, backends.DeviceErrorf("creating command queue on device %d: %v", device, err)
	}
	return &Context{
		backend:   backend,
		device:    device,
		queue:     queue,
		ownsQueue: true,
	}, nil
}

// WithQueue wraps a caller-owned queue. Close will not finalize it.
func WithQueue(backend backends.Backend, device backends.DeviceNum, queue backends.Queue) *Context {
	return &Context{backend: backend, device: device, queue: queue}
}

// WithProgram returns a copy of the context with the program set. The
// receiver is unchanged.
func (c *Context) WithProgram(program backends.Program) *Context {
	derived := *c
	derived.program = program
	derived.ownsQueue = false
	return &derived
}

// BuildProgram builds source for the context's device and returns a copy of
// the context carrying the built program. Build failures are reported as
// ErrBuildFailure with the device build log in the message.
func (c *Context) BuildProgram(source string) (*Context, error) {
	program, err := c.backend.BuildProgram(c.device, source)
	if err != nil {
		return nil, backends.BuildFailuref("building program: %v", err)
	}
	return c.WithProgram(program), nil
}

// Backend returns the backend this context submits to.
func (c *Context) Backend() backends.Backend { return c.backend }

// Device returns the device this context targets.
func (c *Context) Device() backends.DeviceNum { return c.device }

// Queue returns the context's command queue.
func (c *Context) Queue() backends.Queue { return c.queue }

// Program returns the context's built program, or nil if none was set.
func (c *Context) Program() backends.Program { return c.program }

// Finish blocks until every operation submitted through the context's queue
// has completed on the device.
func (c *Context) Finish() error {
	if err := c.backend.QueueFinish(c.queue); err != nil {
		return backends.DeviceErrorf("waiting for queue: %v", err)
	}
	return nil
}

// Close finalizes the queue if the context owns it. Contexts derived with
// WithProgram or WithQueue never own the queue; close the root context last.
func (c *Context) Close() error {
	if !c.ownsQueue || c.queue == nil {
		return nil
	}
	if err := c.backend.QueueFinish(c.queue); err != nil {
		klog.Warningf("finishing queue before release: %v", err)
	}
	err := c.backend.QueueFinalize(c.queue)
	c.queue = nil
	if err != nil {
		return backends.DeviceErrorf("releasing command queue: %v", err)
	}
	return nil
}
