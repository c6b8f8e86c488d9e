package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/supportbot/internal/config"
	"github.com/kailas-cloud/supportbot/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootOptions are flags shared by every subcommand.
type rootOptions struct {
	env        string
	configPath string
}

func (o *rootOptions) load() (config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load(o.env)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "retriever",
		Short: "Documentation retrieval engine for the support bot",
		Long: `retriever answers support questions with documentation passages.

Each configured index is searched with dense (embedding) and sparse (BM25)
retrieval, results are fused with Reciprocal Rank Fusion and passed through
tag, language and re-rank post-processors.`,
		Version:      version.Version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("retriever version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "Config environment (loads config/<env>.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Explicit config file path (overrides --env)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "retriever %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
			return err
		},
	}
}
