package main

import (
	"os"

	"elemforge/internal/cli"
	_ "elemforge/internal/tasks/builtin"
)

// These variables are populated by the build via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	os.Exit(cli.Execute())
}
