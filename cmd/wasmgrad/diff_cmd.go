package main

import (
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wasmgrad/internal/adconfig"
	"wasmgrad/internal/addriver"
	"wasmgrad/internal/wasmir"
	"wasmgrad/internal/wasmir/wat"
	"wasmgrad/internal/wasmir/wirepb"
)

var (
	diffOutput   string
	diffTargets  []string
	diffDumpIR   bool
	diffDumpPlan bool
	diffJobs     int
)

func init() {
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "", "output path (single-input mode only; defaults to <in>.grad.wgm)")
	diffCmd.Flags().StringSliceVarP(&diffTargets, "target", "t", nil, "function name(s) to differentiate (default: every function in the module)")
	diffCmd.Flags().BoolVar(&diffDumpIR, "dump-ir", false, "print the transformed module as S-expressions instead of writing a file")
	diffCmd.Flags().BoolVar(&diffDumpPlan, "dump-plan", false, "print each target's tape plan instead of transforming")
	diffCmd.Flags().IntVarP(&diffJobs, "jobs", "j", 4, "maximum concurrent inputs in batch mode")
}

var diffCmd = &cobra.Command{
	Use:   "diff <in.wgm> [more.wgm...]",
	Short: "Differentiate every target function in one or more modules",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = "wasmgrad.toml"
	}
	cfg, err := adconfig.Load(configPath)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return diffOne(cmd, args[0], cfg)
	}

	if diffOutput != "" {
		return fmt.Errorf("--output is only valid with a single input module")
	}
	return diffBatch(cmd, args, cfg)
}

// diffOne runs the single-module path: decode, transform, and either dump
// or encode the result. --dump-ir and --dump-plan both short-circuit
// before any file is written.
func diffOne(cmd *cobra.Command, path string, cfg adconfig.Config) error {
	mod, err := loadModule(path)
	if err != nil {
		return err
	}

	if diffDumpPlan {
		funcs, err := targetFuncs(mod, diffTargets)
		if err != nil {
			return err
		}
		return dumpPlans(cmd.OutOrStdout(), mod, funcs)
	}

	d := addriver.New()
	d.Config = cfg
	results, err := d.Transform(mod, diffTargets)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if diffDumpIR {
		wat.Fprint(cmd.OutOrStdout(), mod)
		return nil
	}

	out := diffOutput
	if out == "" {
		out = path + ".grad.wgm"
	}
	if err := writeModule(out, mod); err != nil {
		return err
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	if !quiet {
		reportResults(cmd, out, results)
	}
	return nil
}

// diffBatch transforms every input module concurrently, bounded by
// diffJobs, and renders a Bubble Tea progress view when stdout is a
// terminal (teacher's cmd/surge batch runner), falling back to plain
// color-wrapped log lines otherwise.
func diffBatch(cmd *cobra.Command, paths []string, cfg adconfig.Config) error {
	events := make(chan batchEvent, len(paths))
	var program *tea.Program
	var wg sync.WaitGroup

	interactive := isTerminal(os.Stdout)
	if interactive {
		program = tea.NewProgram(newBatchModel("differentiating modules", paths, events))
		wg.Add(1)
		go func() {
			defer wg.Done()
			program.Run()
		}()
	}

	g := new(errgroup.Group)
	g.SetLimit(diffJobs)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			err := diffBatchOne(path, cfg)
			events <- batchEvent{path: path, err: err}
			if !interactive {
				logBatchLine(cmd, path, err)
			}
			return err
		})
	}
	runErr := g.Wait()
	close(events)

	if interactive {
		wg.Wait()
	}
	return runErr
}

// diffBatchOne runs the fixed "transform and write alongside the input"
// path used in batch mode; --dump-ir/--dump-plan/--output do not apply
// once more than one module is given.
func diffBatchOne(path string, cfg adconfig.Config) error {
	mod, err := loadModule(path)
	if err != nil {
		return err
	}
	d := addriver.New()
	d.Config = cfg
	if _, err := d.Transform(mod, diffTargets); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeModule(path+".grad.wgm", mod)
}

func logBatchLine(cmd *cobra.Command, path string, err error) {
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", path, err)
		return
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "ok   %s\n", path)
}

func reportResults(cmd *cobra.Command, out string, results []addriver.Result) {
	green := color.New(color.FgGreen, color.Bold)
	green.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s, %s\n", r.Source, r.FwdName, r.BwdName)
	}
}

func loadModule(path string) (*wasmir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	mod, err := wirepb.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return mod, nil
}

func writeModule(path string, mod *wasmir.Module) error {
	data, err := wirepb.Encode(mod)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func targetFuncs(mod *wasmir.Module, targets []string) ([]*wasmir.Func, error) {
	if len(targets) == 0 {
		return mod.Funcs, nil
	}
	funcs := make([]*wasmir.Func, 0, len(targets))
	for _, name := range targets {
		f, ok := mod.LookupFunc(name)
		if !ok {
			return nil, fmt.Errorf("target function %q not found", name)
		}
		funcs = append(funcs, f)
	}
	return funcs, nil
}
