package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wasmgrad/internal/adconfig"
	"wasmgrad/internal/addriver"
	"wasmgrad/internal/adtest"
)

var checkTargets []string

func init() {
	checkCmd.Flags().StringSliceVarP(&checkTargets, "target", "t", nil, "function name(s) to check (default: every function in the module)")
}

var checkCmd = &cobra.Command{
	Use:   "check <in.wgm> <arg>...",
	Short: "Differentiate a module and verify each target's F_bwd against a finite-difference estimate",
	Long: `check transforms a module the same way "diff" does, then drives each
resulting F_fwd/F_bwd pair with the given numeric arguments through an
in-process interpreter and compares the analytic gradient F_bwd returns
against a central-difference numeric estimate of F_fwd's output. The
tolerance and step size come from wasmgrad.toml's [test] section
(tolerance, fd_epsilon).`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = "wasmgrad.toml"
	}
	cfg, err := adconfig.Load(configPath)
	if err != nil {
		return err
	}

	path := args[0]
	inputs := make([]float64, len(args)-1)
	for i, a := range args[1:] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("argument %q is not a number: %w", a, err)
		}
		inputs[i] = v
	}

	mod, err := loadModule(path)
	if err != nil {
		return err
	}

	d := addriver.New()
	d.Config = cfg
	results, err := d.Transform(mod, checkTargets)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	it := adtest.New(mod)
	failed := false
	for _, r := range results {
		rep, err := adtest.CheckGradient(it, r.FwdName, r.BwdName, inputs, cfg.Test.FDEpsilon, cfg.Test.Tolerance)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Source, err)
		}
		if rep.Pass {
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "ok     %s  analytic=%v numeric=%v\n", r.Source, rep.Analytic, rep.Numeric)
			continue
		}
		failed = true
		color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "FAIL   %s  analytic=%v numeric=%v maxErr=%v\n", r.Source, rep.Analytic, rep.Numeric, rep.MaxAbsErr)
	}
	if failed {
		return fmt.Errorf("gradient check failed for one or more targets")
	}
	return nil
}
