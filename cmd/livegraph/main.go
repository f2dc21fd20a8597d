package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "livegraph:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "livegraph",
		Short: "livegraph - live GraphQL over data-source entity streams",
		Long: `livegraph serves GraphQL queries and subscriptions over an entity store
that data-source runtime hosts keep up to date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newPrintSchemaCommand())
	cmd.AddCommand(newApplyCommand())
	cmd.AddCommand(newServeHostCommand())
	return cmd
}
