package main

import (
	"os"

	"github.com/patleeman/taskfactory/cmd/taskfactoryd/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.SetVersion(version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
