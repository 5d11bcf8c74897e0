package main

import (
	"fmt"
	"os"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/schema"
	"github.com/hupe1980/kvsearch/search"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with index schema documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <schema.json>...",
		Short: "Check and compile schema documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := schema.NewCache(len(args))
			if err != nil {
				return err
			}
			var failed []string
			for _, path := range args {
				s, err := compileSchema(cache, path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed = append(failed, path)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", path, strings.Join(s.Fields(), ", "))
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d invalid schema documents", len(failed))
			}
			return nil
		},
	})
	return cmd
}

func newExplainCmd() *cobra.Command {
	var (
		schemaPath   string
		partitionKey []string
	)
	cmd := &cobra.Command{
		Use:   "explain <request.json>",
		Short: "Compile a search request against a schema and print its plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := schema.NewCache(1)
			if err != nil {
				return err
			}
			s, err := compileSchema(cache, schemaPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			req, err := search.ParseRequest(data)
			if err != nil {
				return err
			}
			plan, err := search.Compile(req, s, partition.Layout{PartitionKey: partitionKey})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), plan.Explain())
			return nil
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema document")
	cmd.Flags().StringSliceVar(&partitionKey, "partition-key", []string{"id"}, "partition key columns")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func compileSchema(cache *schema.Cache, path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cache.Get(schemaName(path), data)
}

// schemaName derives an index name from a file name.
func schemaName(path string) string {
	base := path[strings.LastIndexAny(path, `/\`)+1:]
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return gojson.Unmarshal(data, v)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
