package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wasmgrad/internal/adversion"
)

var rootCmd = &cobra.Command{
	Use:   "wasmgrad",
	Short: "Reverse-mode automatic differentiation for WebAssembly GC modules",
	Long:  `wasmgrad reads a WebAssembly GC module and emits, for each targeted function, a forward/backward pair implementing reverse-mode automatic differentiation.`,
}

// main wires the subcommand tree and global flags, then executes the root
// command; a non-nil error exits with status 1.
func main() {
	rootCmd.Version = adversion.Version

	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().String("config", "", "path to wasmgrad.toml (defaults to ./wasmgrad.toml if present)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("color")
		switch mode {
		case "on":
			color.NoColor = false
		case "off":
			color.NoColor = true
		default:
			color.NoColor = !isTerminal(os.Stdout)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
