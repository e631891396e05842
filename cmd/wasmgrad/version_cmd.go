package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"wasmgrad/internal/adversion"
)

const versionTagline = "runs the tape backward so you don't have to"

var (
	versionShowHash bool
	versionShowDate bool
	versionShowFull bool
)

func init() {
	versionCmd.Flags().BoolVar(&versionShowHash, "hash", false, "include git commit hash")
	versionCmd.Flags().BoolVar(&versionShowDate, "date", false, "include build timestamp")
	versionCmd.Flags().BoolVar(&versionShowFull, "full", false, "show every recorded bit of build metadata")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show wasmgrad build fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderVersion(cmd.OutOrStdout(), versionShowHash || versionShowFull, versionShowDate || versionShowFull)
		return nil
	},
}

func renderVersion(out io.Writer, showHash, showDate bool) {
	v := strings.TrimSpace(adversion.Version)
	if v == "" {
		v = "dev"
	}
	fmt.Fprintf(out, "wasmgrad %s — %s\n", v, versionTagline)
	if showHash {
		fmt.Fprintf(out, "commit: %s\n", valueOrUnknown(adversion.GitCommit))
	}
	if showDate {
		fmt.Fprintf(out, "built:  %s\n", valueOrUnknown(adversion.BuildDate))
	}
	if !showHash && !showDate {
		fmt.Fprintln(out, "set --hash, --date, or --full for more build trivia")
	}
}

func valueOrUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
