package cmd

import (
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string

	appVersion string
	appCommit  string
)

var rootCmd = &cobra.Command{
	Use:           "taskfactoryd",
	Short:         "Runs the Task Factory orchestration core",
	Long: `taskfactoryd loads every registered workspace and runs one Queue
Manager per workspace, dispatching ready tasks to an Agent Session
Supervisor until signaled to stop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error); defaults to TASKFACTORY_LOG_LEVEL or info")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (auto, text, json); defaults to TASKFACTORY_LOG_FORMAT or auto")
}
