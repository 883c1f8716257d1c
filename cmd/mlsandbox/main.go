// mlsandbox launches a resource-limited JupyterLab container for the
// current project and stops it on request or after a timeout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	projectDirFlag string
	logLevelFlag   string
)

var rootCmd = &cobra.Command{
	Use:           "mlsandbox",
	Short:         "mlsandbox - launch a resource-limited Jupyter sandbox for this project",
	RunE:          runServe, // Default to the web panel.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDirFlag, "project", "C", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, dashboardCmd, initCmd, launchCmd, stopCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
