// Package version carries build metadata for the callfuse binary.
//
// Release builds override the variables below with
// -ldflags "-X callfuse/internal/version.Version=..." and friends;
// a plain `go build` yields the -dev default.
package version

import "github.com/fatih/color"

var (
	major = color.New(color.FgYellow, color.Bold).Sprint("0")
	minor = color.New(color.FgGreen, color.Bold).Sprint("1")
	patch = color.New(color.FgBlue, color.Bold).Sprint("0")

	// Version is the semantic version of the CLI.
	Version = major + "." + minor + "." + patch + "-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)
