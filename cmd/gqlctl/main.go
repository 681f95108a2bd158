package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devplatform/modelgraph/internal/app"
	"github.com/devplatform/modelgraph/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "gqlctl",
		Short: "Inspect and query modelgraph schemas",
		Long: `gqlctl builds the GraphQL schemas of the modelgraph service from the same
environment configuration as the server and runs operations against them directly.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")

	open := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := config.Process()
		if err != nil {
			return nil, err
		}
		return app.New(contextOf(cmd), cfg, newLogger(cmd.ErrOrStderr(), verbose))
	}

	rootCmd.AddCommand(newSchemaCmd(open))
	rootCmd.AddCommand(newExecCmd(open))
	return rootCmd
}

// opener wires the service for one command run
type opener func(cmd *cobra.Command) (*app.App, error)

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
