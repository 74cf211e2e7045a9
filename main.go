package main

import (
	"os"

	"github.com/withObsrvr/whr-pipeline/internal/cli/cmd"
)

// Set via -ldflags "-X main.version=..." at build time.
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

func main() {
	cmd.SetVersionInfo(version, gitCommit, buildDate)
	cmd.SetFactories(Factories())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
