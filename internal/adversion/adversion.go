// Package adversion holds the wasmgrad CLI's build fingerprint, styled
// the way the teacher's internal/version package styles its own
// semantic version string with github.com/fatih/color.
package adversion

import "github.com/fatih/color"

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI. Its initializer is not a
	// string constant, so -ldflags -X does not override it.
	Version = majorColor.Sprint("0") + "." + minorColor.Sprint("1") + "." + patchColor.Sprint("0") + "-dev"

	// GitCommit is an optional git commit hash, set via -ldflags.
	GitCommit = ""

	// BuildDate is an optional ISO-8601 build date, set via -ldflags.
	BuildDate = ""
)
