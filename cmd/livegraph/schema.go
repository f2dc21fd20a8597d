package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	introspection "github.com/hanpama/livegraph/internal/introspection"
	schema "github.com/hanpama/livegraph/internal/schema"
)

func newPrintSchemaCommand() *cobra.Command {
	var out string
	var withIntrospection bool
	cmd := &cobra.Command{
		Use:   "print-schema <schema.graphql>",
		Short: "Validate a schema and print it in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := loadSchema(args[0])
			if err != nil {
				return err
			}
			if withIntrospection {
				sch = introspection.Wrap(nil, sch).Schema
			}
			sdl := schema.Render(sch)
			if out == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), sdl)
				return err
			}
			return os.WriteFile(out, []byte(sdl), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the schema to a file instead of stdout")
	cmd.Flags().BoolVar(&withIntrospection, "introspection", false, "include the introspection types")
	return cmd
}
