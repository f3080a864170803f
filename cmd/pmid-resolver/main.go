package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/pmid-resolver/pkg/pipeline"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pmid-resolver",
		Short: "Resolve article titles to PubMed IDs",
		Long: `pmid-resolver reads article titles from an XML or plain-text document,
searches PubMed for each title in rate-limited batches and writes the
matching PubMed IDs as XML, JSON or SQLite.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// No RunE - defaults to showing help when no subcommand is provided
	}

	root.PersistentFlags().String("config", "", "YAML config file (default $"+"PMID_RESOLVER_CONFIG)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().Bool("pretty", false, "Human-readable log output")

	root.AddCommand(newResolveCmd(), newTitlesCmd())
	return root
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case pipeline.IsInterrupted(err), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitError
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
