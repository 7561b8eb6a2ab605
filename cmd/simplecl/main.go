// Command simplecl inspects simplecl backends and runs declarative pipeline
// descriptions.
//
// Usage:
//
//	simplecl devices
//	simplecl run pipeline.yaml [--verbose] [--keep] [--final-size N] [--final-type T]
//
// The backend is selected through --backend, the SIMPLECL_BACKEND
// environment variable, or defaults to the first registered one. See the
// package documentation of github.com/thi-ng/simplecl for the pipeline
// model and cmd/simplecl/pipelinefile.go for the YAML format.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/thi-ng/simplecl"
	"github.com/thi-ng/simplecl/backends"
	_ "github.com/thi-ng/simplecl/backends/default"
)

var flagBackend string

func main() {
	klog.InitFlags(nil)

	root := &cobra.Command{
		Use:           "simplecl",
		Short:         "Compile and run declarative GPU compute pipelines",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flagBackend, "backend", "",
		`backend configuration, "<name>:<config>" (default: $SIMPLECL_BACKEND or first registered)`)

	root.AddCommand(devicesCommand(), runCommand())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newBackend() backends.Backend {
	if flagBackend != "" {
		return backends.NewWithConfig(flagBackend)
	}
	return backends.New()
}

func devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the selected backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := newBackend()
			defer backend.Finalize()
			fmt.Printf("%s: %s\n", backend.Name(), backend.Description())
			for d := backends.DeviceNum(0); d < backend.NumDevices(); d++ {
				info, err := backend.DeviceInfo(d)
				if err != nil {
					return err
				}
				mem := "n/a"
				if info.GlobalMemBytes > 0 {
					mem = humanize.IBytes(info.GlobalMemBytes)
				}
				fmt.Printf("  [%d] %s (%s), max work-group %d, global mem %s\n",
					d, info.Name, info.Vendor, info.MaxWorkGroupSize, mem)
			}
			return nil
		},
	}
}

func runCommand() *cobra.Command {
	var opts simplecl.ExecOptions
	var finalType string
	var device int

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Compile and execute a pipeline description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := LoadPipelineFile(must.M1(os.ReadFile(args[0])))
			if err != nil {
				return err
			}
			if finalType != "" {
				if opts.FinalType, err = ParseElementType(finalType); err != nil {
					return err
				}
			}

			backend := newBackend()
			defer backend.Finalize()
			ctx, err := simplecl.NewContext(backend, backends.DeviceNum(device))
			if err != nil {
				return err
			}
			defer ctx.Close()
			if file.Program != "" {
				if ctx, err = ctx.BuildProgram(file.Program); err != nil {
					return err
				}
			}

			steps, err := file.Steps(ctx)
			if err != nil {
				return err
			}
			pipeline, err := simplecl.Compile(ctx, steps)
			if err != nil {
				return err
			}
			result, err := simplecl.Execute(ctx, pipeline, opts)
			if err != nil {
				return err
			}
			if result != nil {
				fmt.Println(formatResult(result))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log submission timings")
	cmd.Flags().BoolVar(&opts.KeepBuffers, "keep", false, "do not release pipeline buffers after execution")
	cmd.Flags().IntVar(&opts.FinalSize, "final-size", 0, "number of final output elements to extract (0 = all)")
	cmd.Flags().StringVar(&finalType, "final-type", "", "reinterpret the final output as this element type")
	cmd.Flags().IntVar(&device, "device", 0, "device number to run on")
	return cmd
}

func formatResult(result any) string {
	switch flat := result.(type) {
	case []uint8:
		return fmt.Sprint(flat)
	case []int32:
		return fmt.Sprint(flat)
	case []float32:
		return fmt.Sprint(flat)
	case []float64:
		return fmt.Sprint(flat)
	}
	return fmt.Sprintf("%v", result)
}
