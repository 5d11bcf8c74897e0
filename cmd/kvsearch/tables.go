package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kvsearch"
	"github.com/hupe1980/kvsearch/catalog"
	"github.com/hupe1980/kvsearch/config"
)

func newTablesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage table descriptors in the catalog",
	}

	open := func(cmd *cobra.Command) (*catalog.Catalog, error) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		return cfg.OpenCatalog(cmd.Context(), kvsearch.NoopLogger(), cfg.Controller())
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the tables of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := open(cmd)
			if err != nil {
				return err
			}
			names, err := cat.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <table>",
		Short: "Print a table descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := open(cmd)
			if err != nil {
				return err
			}
			d, err := cat.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, d)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <descriptor.json>",
		Short: "Validate a table descriptor and save it to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d catalog.Descriptor
			if err := readJSON(args[0], &d); err != nil {
				return err
			}
			cat, err := open(cmd)
			if err != nil {
				return err
			}
			if err := cat.Save(cmd.Context(), &d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s version %d\n", d.Name, d.Version)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop <table>",
		Short: "Delete a table descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := open(cmd)
			if err != nil {
				return err
			}
			return cat.Delete(cmd.Context(), args[0])
		},
	})
	return cmd
}
