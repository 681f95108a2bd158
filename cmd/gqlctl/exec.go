package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/graphql"
)

func newExecCmd(open opener) *cobra.Command {
	var (
		schema    string
		varsFile  string
		operation string
	)

	cmd := &cobra.Command{
		Use:   "exec <query-file>",
		Short: "Run a GraphQL operation against a schema",
		Long: `Run the operation in query-file ("-" reads standard input) against a schema
and print the result. The command fails when the result carries errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			req := graphql.Request{Query: string(query), OperationName: operation}
			if varsFile != "" {
				data, err := os.ReadFile(varsFile)
				if err != nil {
					return fmt.Errorf("failed to read variables: %w", err)
				}
				if err := json.Unmarshal(data, &req.Variables); err != nil {
					return fmt.Errorf("failed to parse variables: %w", err)
				}
			}

			service, err := open(cmd)
			if err != nil {
				return err
			}
			defer service.Close()

			res, err := service.Manager.Execute(contextOf(cmd), schema, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("operation returned %d error(s)", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", config.DefaultSchema, "Schema to run the operation against")
	cmd.Flags().StringVar(&varsFile, "vars", "", "JSON file holding the operation variables")
	cmd.Flags().StringVar(&operation, "operation", "", "Operation name when the document holds several")
	return cmd
}

func readSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query: %w", err)
	}
	return data, nil
}
