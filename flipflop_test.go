package simplecl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thi-ng/simplecl"
)

func TestFlipFlopAlternatesRoles(t *testing.T) {
	ctx := newTestContext(t)
	a, err := simplecl.NewBuffer(ctx, simplecl.Float32, 4, simplecl.ReadWrite)
	require.NoError(t, err)
	defer a.Release(ctx)
	b, err := simplecl.NewBuffer(ctx, simplecl.Float32, 4, simplecl.ReadWrite)
	require.NoError(t, err)
	defer b.Release(ctx)

	template := simplecl.Step{
		Kernel:   "inc_f32",
		Args:     []any{int32(4)},
		N:        4,
		MaxLocal: 16,
	}
	steps := simplecl.FlipFlop(3, a, b, template)
	require.Len(t, steps, 3)

	wantPairs := [][2]*simplecl.Buffer{{a, b}, {b, a}, {a, b}}
	for i, step := range steps {
		require.Equal(t, simplecl.Lit(wantPairs[i][0]), step.In[0], "iteration %d input", i)
		require.Equal(t, []simplecl.Input{simplecl.Lit(wantPairs[i][1])}, step.Out, "iteration %d output", i)

		// Everything else is inherited from the template unchanged.
		require.Equal(t, template.Kernel, step.Kernel)
		require.Equal(t, template.Args, step.Args)
		require.Equal(t, template.N, step.N)
		require.Equal(t, template.MaxLocal, step.MaxLocal)
	}
}

func TestFlipFlopPrependsToTemplateInputs(t *testing.T) {
	ctx := newTestContext(t)
	a, err := simplecl.NewBuffer(ctx, simplecl.Float32, 4, simplecl.ReadWrite)
	require.NoError(t, err)
	defer a.Release(ctx)
	b, err := simplecl.NewBuffer(ctx, simplecl.Float32, 4, simplecl.ReadWrite)
	require.NoError(t, err)
	defer b.Release(ctx)
	extra, err := simplecl.NewBuffer(ctx, simplecl.Float32, 4, simplecl.ReadOnly)
	require.NoError(t, err)
	defer extra.Release(ctx)

	template := simplecl.Step{
		Kernel: "mul_f32",
		In:     []simplecl.Input{simplecl.Lit(extra)},
		Args:   []any{int32(4)},
		N:      4,
	}
	steps := simplecl.FlipFlop(2, a, b, template)
	require.Equal(t, []simplecl.Input{simplecl.Lit(a), simplecl.Lit(extra)}, steps[0].In)
	require.Equal(t, []simplecl.Input{simplecl.Lit(b), simplecl.Lit(extra)}, steps[1].In)
	require.Equal(t, []simplecl.Input{simplecl.Lit(extra)}, template.In, "template must not be mutated")
}

// TestFlipFlopExecute runs an odd number of ping-pong increments: with 3
// iterations the final state lands in buffer B, each element incremented
// once per iteration.
func TestFlipFlopExecute(t *testing.T) {
	ctx := newTestContext(t)
	const n = 64
	a, err := simplecl.NewBuffer(ctx, simplecl.Float32, n, simplecl.ReadWrite)
	require.NoError(t, err)
	b, err := simplecl.NewBuffer(ctx, simplecl.Float32, n, simplecl.ReadWrite)
	require.NoError(t, err)

	a.Fill(func(i int) float64 { return float64(i) })
	steps := append(
		[]simplecl.Step{{WriteBuffers: []*simplecl.Buffer{a}}},
		simplecl.FlipFlop(3, a, b, simplecl.Step{
			Kernel: "inc_f32",
			Args:   []any{int32(n)},
			N:      n,
		})...,
	)
	p, err := simplecl.Compile(ctx, steps)
	require.NoError(t, err)
	require.Same(t, b, p.Final, "odd iteration count ends in b")

	result, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{})
	require.NoError(t, err)
	flat := result.([]float32)
	for i, v := range flat {
		require.Equal(t, float32(i)+3, v, "element %d", i)
	}
}
