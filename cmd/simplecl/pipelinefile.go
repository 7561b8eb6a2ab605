package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/thi-ng/simplecl"
)

// PipelineFile is the YAML shape of a declarative pipeline description:
//
//	program: |
//	  __kernel void mul(__global const float *a, ...) { ... }
//	steps:
//	  - id: mul
//	    kernel: mul
//	    n: 1024
//	    in:
//	      - {type: float32, count: 1024, usage: readonly, fill: index}
//	      - {type: float32, count: 1024, usage: readonly, fill: reverse}
//	    out:
//	      - {type: float32, count: 1024, usage: writeonly}
//	    args:
//	      - int32: 1024
//	    write: ["in:0", "in:1"]
//	    read: ["out:0"]
//
// For the hostgo backend, "program" is the name of a registered Go program
// instead of OpenCL source. Step inputs are either buffer-spec mappings as
// above or reference strings: "prev" (previous step's output), "<step-id>"
// (that step's last output), or "<step-id>/in/0" and "<step-id>/out/1"
// (a specific buffer by role and position).
type PipelineFile struct {
	Program string     `yaml:"program"`
	Steps_  []stepSpec `yaml:"steps"`
}

// LoadPipelineFile decodes a pipeline description.
func LoadPipelineFile(data []byte) (*PipelineFile, error) {
	var file PipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "decoding pipeline description")
	}
	if len(file.Steps_) == 0 {
		return nil, errors.New("pipeline description has no steps")
	}
	return &file, nil
}

// Steps converts the description into compiler steps. The YAML format has
// no literal buffers, so the context goes unused until it grows some.
func (f *PipelineFile) Steps(_ *simplecl.Context) ([]simplecl.Step, error) {
	steps := make([]simplecl.Step, 0, len(f.Steps_))
	for i, spec := range f.Steps_ {
		step, err := spec.step()
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

type stepSpec struct {
	ID       string      `yaml:"id"`
	Kernel   string      `yaml:"kernel"`
	N        int         `yaml:"n"`
	MaxLocal int         `yaml:"max-local"`
	In       []inputSpec `yaml:"in"`
	Out      []inputSpec `yaml:"out"`
	Args     []scalarArg `yaml:"args"`
	Write    []string    `yaml:"write"`
	Read     []string    `yaml:"read"`
}

func (s *stepSpec) step() (simplecl.Step, error) {
	step := simplecl.Step{
		ID:       s.ID,
		Kernel:   s.Kernel,
		N:        s.N,
		MaxLocal: s.MaxLocal,
	}
	for _, in := range s.In {
		ref, err := in.input()
		if err != nil {
			return step, err
		}
		step.In = append(step.In, ref)
	}
	for _, out := range s.Out {
		ref, err := out.input()
		if err != nil {
			return step, err
		}
		step.Out = append(step.Out, ref)
	}
	for _, arg := range s.Args {
		step.Args = append(step.Args, arg.value)
	}
	var err error
	if step.Write, err = parseSlots(s.Write); err != nil {
		return step, err
	}
	if step.Read, err = parseSlots(s.Read); err != nil {
		return step, err
	}
	return step, nil
}

// inputSpec is either a reference string or a buffer-spec mapping.
type inputSpec struct {
	ref  string
	spec *bufferSpec
}

type bufferSpec struct {
	Type  string  `yaml:"type"`
	Count int     `yaml:"count"`
	Usage string  `yaml:"usage"`
	Fill  string  `yaml:"fill"`
	Value float64 `yaml:"value"` // for fill: const
}

// UnmarshalYAML accepts both forms.
func (in *inputSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&in.ref)
	}
	in.spec = &bufferSpec{}
	return node.Decode(in.spec)
}

func (in *inputSpec) input() (simplecl.Input, error) {
	if in.spec != nil {
		return in.spec.input()
	}
	switch {
	case in.ref == "prev":
		return nil, nil
	case strings.Contains(in.ref, "/"):
		parts := strings.Split(in.ref, "/")
		if len(parts) != 3 {
			return nil, errors.Errorf("buffer reference %q is not of the form <step-id>/<in|out>/<index>", in.ref)
		}
		role, err := parseRole(parts[1])
		if err != nil {
			return nil, err
		}
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, errors.Errorf("buffer reference %q has a non-numeric index", in.ref)
		}
		return simplecl.BufferAt{StepID: parts[0], Role: role, Index: index}, nil
	default:
		return simplecl.StepOutput{StepID: in.ref}, nil
	}
}

func (s *bufferSpec) input() (simplecl.Input, error) {
	typ, err := ParseElementType(s.Type)
	if err != nil {
		return nil, err
	}
	usage, err := parseUsage(s.Usage)
	if err != nil {
		return nil, err
	}
	gen, err := fillGenerator(s.Fill, s.Value, s.Count)
	if err != nil {
		return nil, err
	}
	return simplecl.BufferSpec{Type: typ, Count: s.Count, Usage: usage, Fill: gen}, nil
}

// scalarArg is a single-entry mapping tagging the scalar kind:
// {int32: 1024}, {float32: 0.5} or {float64: 1e-9}.
type scalarArg struct {
	value any
}

func (a *scalarArg) UnmarshalYAML(node *yaml.Node) error {
	var tagged map[string]float64
	if err := node.Decode(&tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return errors.New("scalar argument must be a single {kind: value} mapping")
	}
	for kind, v := range tagged {
		switch kind {
		case "int32":
			a.value = int32(v)
		case "float32":
			a.value = float32(v)
		case "float64":
			a.value = v
		default:
			return errors.Errorf("unsupported scalar kind %q", kind)
		}
	}
	return nil
}

// ParseElementType maps a YAML/flag type name onto an ElementType.
func ParseElementType(name string) (simplecl.ElementType, error) {
	switch name {
	case "uint8", "byte":
		return simplecl.Uint8, nil
	case "int32":
		return simplecl.Int32, nil
	case "float32":
		return simplecl.Float32, nil
	case "float64":
		return simplecl.Float64, nil
	}
	return simplecl.InvalidType, errors.Errorf("unsupported element type %q", name)
}

func parseUsage(name string) (simplecl.Usage, error) {
	switch name {
	case "", "readwrite":
		return simplecl.ReadWrite, nil
	case "readonly":
		return simplecl.ReadOnly, nil
	case "writeonly":
		return simplecl.WriteOnly, nil
	case "alloc-host":
		return simplecl.AllocHost, nil
	case "copy-host":
		return simplecl.CopyHost, nil
	case "use-host":
		return simplecl.UseHost, nil
	}
	return simplecl.ReadWrite, errors.Errorf("unsupported buffer usage %q", name)
}

func parseRole(name string) (simplecl.Role, error) {
	switch name {
	case "in":
		return simplecl.RoleIn, nil
	case "out":
		return simplecl.RoleOut, nil
	}
	return simplecl.RoleIn, errors.Errorf("unsupported buffer role %q", name)
}

func parseSlots(specs []string) ([]simplecl.Slot, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	slots := make([]simplecl.Slot, 0, len(specs))
	for _, spec := range specs {
		role, index, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, errors.Errorf("transfer slot %q is not of the form <in|out>:<index>", spec)
		}
		r, err := parseRole(role)
		if err != nil {
			return nil, err
		}
		i, err := strconv.Atoi(index)
		if err != nil {
			return nil, errors.Errorf("transfer slot %q has a non-numeric index", spec)
		}
		slots = append(slots, simplecl.Slot{Role: r, Index: i})
	}
	return slots, nil
}

// fillGenerator resolves the named host-side fill function for a buffer of
// count elements. Generators are pure functions of the element position, so
// fills stay idempotent.
func fillGenerator(name string, value float64, count int) (func(int) float64, error) {
	switch name {
	case "":
		return nil, nil
	case "zero":
		return func(int) float64 { return 0 }, nil
	case "index":
		return func(i int) float64 { return float64(i) }, nil
	case "reverse":
		return func(i int) float64 { return float64(count - 1 - i) }, nil
	case "const":
		return func(int) float64 { return value }, nil
	}
	return nil, errors.Errorf("unsupported fill generator %q", name)
}
