package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/graphql"
)

const introspectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    types {
      kind
      name
      description
      fields(includeDeprecated: true) {
        name
        args { name type { ...TypeRef } defaultValue }
        type { ...TypeRef }
      }
      inputFields { name type { ...TypeRef } defaultValue }
      possibleTypes { name }
      enumValues(includeDeprecated: true) { name }
    }
  }
}

fragment TypeRef on __Type {
  kind
  name
  ofType { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
}`

func newSchemaCmd(open opener) *cobra.Command {
	var (
		namesOnly bool
		sdl       bool
	)

	cmd := &cobra.Command{
		Use:   "schema [name]",
		Short: "Print the introspection of a schema",
		Long: `Build the named schema (default: "default") and print its introspection
result as JSON, or its type definitions with --sdl. With --names only the
configured schema names are printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := open(cmd)
			if err != nil {
				return err
			}
			defer service.Close()

			out := cmd.OutOrStdout()
			if namesOnly {
				for _, name := range service.Manager.SchemaNames() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			name := config.DefaultSchema
			if len(args) == 1 {
				name = args[0]
			}
			if sdl {
				text, err := service.Manager.SDL(contextOf(cmd), name)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(out, text)
				return err
			}

			res, err := service.Manager.Execute(contextOf(cmd), name, graphql.Request{Query: introspectionQuery})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&namesOnly, "names", false, "List the configured schema names")
	cmd.Flags().BoolVar(&sdl, "sdl", false, "Print the schema definition language instead of JSON")
	return cmd
}
