// Package cli implements the taskgrid command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree.
func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskgrid",
		Short: "Live patch synchronization for shared Gantt projects",
		Long: `taskgrid serves shared Gantt projects to many editors at once.

Edits arrive as small operations over a websocket or HTTP, are applied in
order per project, fanned out to everyone viewing the project, and written
to disk in the background.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd(version))

	return root
}

// Execute runs the root command.
func Execute(version string) error {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		return err
	}

	return nil
}
