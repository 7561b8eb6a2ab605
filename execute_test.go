package simplecl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thi-ng/simplecl"
)

// TestExecuteElementwiseMultiply is the end-to-end scenario: c[i] = a[i]*b[i]
// over 1024 floats with a = [0..1023] and b its reverse, so
// c[i] = i * (1023-i) exactly.
func TestExecuteElementwiseMultiply(t *testing.T) {
	ctx := newTestContext(t)
	const n = 1024

	p, err := simplecl.Compile(ctx, []simplecl.Step{{
		ID:     "mul",
		Kernel: "mul_f32",
		In: []simplecl.Input{
			simplecl.BufferSpec{Type: simplecl.Float32, Count: n, Usage: simplecl.ReadOnly,
				Fill: func(i int) float64 { return float64(i) }},
			simplecl.BufferSpec{Type: simplecl.Float32, Count: n, Usage: simplecl.ReadOnly,
				Fill: func(i int) float64 { return float64(n - 1 - i) }},
		},
		Out:   []simplecl.Input{f32Spec(n, simplecl.WriteOnly)},
		Args:  []any{int32(n)},
		N:     n,
		Write: []simplecl.Slot{simplecl.In(0), simplecl.In(1)},
	}})
	require.NoError(t, err)

	result, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{})
	require.NoError(t, err)
	flat, ok := result.([]float32)
	require.True(t, ok, "final output is a float32 buffer, got %T", result)
	require.Len(t, flat, n)
	for i, v := range flat {
		require.Equal(t, float32(i)*float32(n-1-i), v, "element %d", i)
	}
}

func TestExecuteNoFinalOutputReturnsNil(t *testing.T) {
	ctx := newTestContext(t)
	a, err := simplecl.Wrap(ctx, []float32{1, 2}, simplecl.CopyHost)
	require.NoError(t, err)
	defer a.Release(ctx)

	p, err := simplecl.Compile(ctx, []simplecl.Step{{
		WriteBuffers: []*simplecl.Buffer{a},
	}})
	require.NoError(t, err)

	result, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestExecuteUnknownOpKindFailsFast(t *testing.T) {
	ctx := newTestContext(t)
	p := &simplecl.Pipeline{Ops: []simplecl.Op{{Kind: simplecl.OpKind(42)}}}
	_, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{})
	require.ErrorIs(t, err, simplecl.ErrInvalidArgument)

	p = &simplecl.Pipeline{Ops: []simplecl.Op{{}}}
	_, err = simplecl.Execute(ctx, p, simplecl.ExecOptions{})
	require.ErrorIs(t, err, simplecl.ErrInvalidArgument, "zero op kind is invalid too")
}

func TestExecuteFinalSizeBoundsExtraction(t *testing.T) {
	ctx := newTestContext(t)
	p := compileIncOver(t, ctx, 32)
	result, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{FinalSize: 5})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4, 5}, result)

	p = compileIncOver(t, ctx, 32)
	result, err = simplecl.Execute(ctx, p, simplecl.ExecOptions{FinalSize: 1 << 20})
	require.NoError(t, err)
	require.Len(t, result, 32, "final size is clamped to capacity")
}

func TestExecuteFinalTypeReinterprets(t *testing.T) {
	ctx := newTestContext(t)
	p := compileIncOver(t, ctx, 8)
	result, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{FinalType: simplecl.Uint8})
	require.NoError(t, err)
	flat, ok := result.([]uint8)
	require.True(t, ok, "got %T", result)
	require.Len(t, flat, 8*4, "a float32 buffer reinterpreted as bytes")

	p = compileIncOver(t, ctx, 8)
	_, err = simplecl.Execute(ctx, p, simplecl.ExecOptions{FinalType: simplecl.ElementType(99)})
	require.ErrorIs(t, err, simplecl.ErrInvalidArgument)
}

func TestExecuteKeepBuffersAllowsReinvocation(t *testing.T) {
	ctx := newTestContext(t)
	p := compileIncOver(t, ctx, 16)

	// A simulation loop: the same compiled pipeline submitted repeatedly.
	// The input is re-written from the host each pass, so the result is
	// stable across passes.
	for pass := 0; pass < 3; pass++ {
		result, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{KeepBuffers: true})
		require.NoError(t, err)
		require.Equal(t, float32(1), result.([]float32)[0], "pass %d", pass)
	}
	p.Release(ctx)

	// After the final release the buffers are gone: re-running must surface
	// a device error from the backend.
	_, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{KeepBuffers: true})
	require.ErrorIs(t, err, simplecl.ErrDevice)
}

// compileIncOver compiles inc_f32 over an index-filled input of n elements,
// writing the input before the dispatch.
func compileIncOver(t *testing.T, ctx *simplecl.Context, n int) *simplecl.Pipeline {
	t.Helper()
	p, err := simplecl.Compile(ctx, []simplecl.Step{{
		Kernel: "inc_f32",
		In: []simplecl.Input{simplecl.BufferSpec{
			Type: simplecl.Float32, Count: n, Usage: simplecl.ReadOnly,
			Fill: func(i int) float64 { return float64(i) },
		}},
		Out:   []simplecl.Input{f32Spec(n, simplecl.WriteOnly)},
		Args:  []any{int32(n)},
		N:     n,
		Write: []simplecl.Slot{simplecl.In(0)},
	}})
	require.NoError(t, err)
	return p
}
