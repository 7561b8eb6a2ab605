package simplecl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thi-ng/simplecl"
	"github.com/thi-ng/simplecl/backends"
	"github.com/thi-ng/simplecl/backends/hostgo"
)

// testProgram is the Go "program" the package tests run pipelines against.
const testProgram = "simplecl_test"

func init() {
	hostgo.RegisterProgram(testProgram, map[string]hostgo.KernelFunc{
		// c[i] = a[i] * b[i], args: a, b, c, n.
		"mul_f32": func(gid int, args []any) {
			n := int(args[3].(int32))
			if gid >= n {
				return
			}
			a, b, c := hostgo.Float32s(args[0]), hostgo.Float32s(args[1]), hostgo.Float32s(args[2])
			c[gid] = a[gid] * b[gid]
		},
		// out[i] = in[i] + 1, args: in, out, n.
		"inc_f32": func(gid int, args []any) {
			n := int(args[2].(int32))
			if gid >= n {
				return
			}
			in, out := hostgo.Float32s(args[0]), hostgo.Float32s(args[1])
			out[gid] = in[gid] + 1
		},
		// out[i] = in[i] * s, args: in, out, n, s.
		"scale_f32": func(gid int, args []any) {
			n := int(args[2].(int32))
			if gid >= n {
				return
			}
			in, out := hostgo.Float32s(args[0]), hostgo.Float32s(args[1])
			out[gid] = in[gid] * args[3].(float32)
		},
	})
}

// newTestContext returns a hostgo-backed context with the test program
// built.
func newTestContext(t *testing.T) *simplecl.Context {
	t.Helper()
	backend := hostgo.New("")
	ctx, err := simplecl.NewContext(backend, 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ctx.Close()) })
	ctx, err = ctx.BuildProgram(testProgram)
	require.NoError(t, err)
	return ctx
}

func TestBuildProgramUnknownIsBuildFailure(t *testing.T) {
	backend := hostgo.New("")
	ctx, err := simplecl.NewContext(backend, 0)
	require.NoError(t, err)
	defer ctx.Close()
	_, err = ctx.BuildProgram("no such program")
	require.ErrorIs(t, err, simplecl.ErrBuildFailure)
}

func TestContextWithProgramDerives(t *testing.T) {
	backend := hostgo.New("")
	root, err := simplecl.NewContext(backend, 0)
	require.NoError(t, err)
	defer root.Close()

	derived, err := root.BuildProgram(testProgram)
	require.NoError(t, err)
	require.Nil(t, root.Program(), "building must not mutate the receiver")
	require.NotNil(t, derived.Program())
	require.Equal(t, root.Queue(), derived.Queue())
	require.NoError(t, derived.Close(), "derived contexts don't own the queue")
	require.NoError(t, root.Finish(), "root queue must still be usable")
}

func TestDeviceInfoOutOfRange(t *testing.T) {
	backend := hostgo.New("")
	_, err := backend.DeviceInfo(7)
	require.ErrorIs(t, err, backends.ErrInvalidArgument)
}
