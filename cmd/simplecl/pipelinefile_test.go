package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thi-ng/simplecl"
	"github.com/thi-ng/simplecl/backends/hostgo"
)

func init() {
	hostgo.RegisterProgram("simplecl_demo", map[string]hostgo.KernelFunc{
		"mul_f32": func(gid int, args []any) {
			if gid >= int(args[3].(int32)) {
				return
			}
			a, b, c := hostgo.Float32s(args[0]), hostgo.Float32s(args[1]), hostgo.Float32s(args[2])
			c[gid] = a[gid] * b[gid]
		},
		"scale_f32": func(gid int, args []any) {
			if gid >= int(args[2].(int32)) {
				return
			}
			in, out := hostgo.Float32s(args[0]), hostgo.Float32s(args[1])
			out[gid] = in[gid] * args[3].(float32)
		},
	})
}

func TestLoadPipelineFile(t *testing.T) {
	data, err := os.ReadFile("testdata/mul.yaml")
	require.NoError(t, err)
	file, err := LoadPipelineFile(data)
	require.NoError(t, err)
	require.Equal(t, "simplecl_demo", file.Program)
	require.Len(t, file.Steps_, 2)
}

func TestPipelineFileEndToEnd(t *testing.T) {
	data, err := os.ReadFile("testdata/mul.yaml")
	require.NoError(t, err)
	file, err := LoadPipelineFile(data)
	require.NoError(t, err)

	ctx, err := simplecl.NewContext(hostgo.New(""), 0)
	require.NoError(t, err)
	defer ctx.Close()
	ctx, err = ctx.BuildProgram(file.Program)
	require.NoError(t, err)

	steps, err := file.Steps(ctx)
	require.NoError(t, err)
	require.Equal(t, simplecl.StepOutput{StepID: "mul"}, steps[1].In[0])
	require.Equal(t, []any{int32(1024), float32(0.5)}, steps[1].Args)

	p, err := simplecl.Compile(ctx, steps)
	require.NoError(t, err)
	result, err := simplecl.Execute(ctx, p, simplecl.ExecOptions{})
	require.NoError(t, err)
	flat := result.([]float32)
	require.Len(t, flat, 1024)
	for i, v := range flat {
		require.Equal(t, 0.5*float32(i)*float32(1023-i), v, "element %d", i)
	}
}

func TestPipelineFileErrors(t *testing.T) {
	_, err := LoadPipelineFile([]byte("steps: []"))
	require.Error(t, err)

	_, err = LoadPipelineFile([]byte("steps: [{kernel: k, in: [{type: complex128, count: 4}]}]"))
	require.NoError(t, err, "element types are validated at conversion, not decode")

	file, err := LoadPipelineFile([]byte(`
steps:
  - kernel: k
    n: 4
    in:
      - {type: complex128, count: 4}
`))
	require.NoError(t, err)
	_, err = file.Steps(nil)
	require.Error(t, err)

	file, err = LoadPipelineFile([]byte(`
steps:
  - kernel: k
    n: 4
    write: ["sideways:0"]
`))
	require.NoError(t, err)
	_, err = file.Steps(nil)
	require.Error(t, err)
}

func TestScalarArgDecoding(t *testing.T) {
	file, err := LoadPipelineFile([]byte(`
steps:
  - kernel: k
    n: 1
    args:
      - int32: 7
      - float32: 0.25
      - float64: 1.5
`))
	require.NoError(t, err)
	steps, err := file.Steps(nil)
	require.NoError(t, err)
	require.Equal(t, []any{int32(7), float32(0.25), 1.5}, steps[0].Args)
}
