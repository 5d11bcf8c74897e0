// Command kvsearch serves and inspects kvsearch tables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "kvsearch",
		Short:         "Secondary full-text and range index for key-value tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newTablesCmd(&configPath),
		newSchemaCmd(),
		newExplainCmd(),
	)
	return root
}
