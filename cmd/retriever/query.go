package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/options"
	logpkg "github.com/kailas-cloud/supportbot/internal/logger"
	"github.com/kailas-cloud/supportbot/internal/metrics"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	topK        int
	language    string
	includeTags []string
	excludeTags []string
	avoidQuery  bool
	logLevel    string
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve passages for a question and print them as JSON",
		Long: `Retrieve passages for a question and print them as JSON.

Examples:
  retriever query "how do I rotate an API key"
  retriever query "認証エラー" --language ja --top-k 5
  retriever query "webhooks" --include-tag api --avoid-query`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Passages go to stdout, logs to stderr.
			logger, err := logpkg.NewLogger(root.env, opts.logLevel)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			metrics.RegisterEmbeddingMetrics()
			metrics.RegisterRetrievalMetrics()

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args, " ")
			passages, err := a.engine.Retrieve(logpkg.ContextWithLogger(ctx, logger), text, options.Request{
				TopK:        opts.topK,
				Language:    opts.language,
				IncludeTags: opts.includeTags,
				ExcludeTags: opts.excludeTags,
				AvoidQuery:  opts.avoidQuery,
			})
			if err != nil {
				logger.Debug("query failed", zap.Error(err))
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(passages)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of passages (0 uses retriever.top_k)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Passage language (defaults to retriever.language)")
	cmd.Flags().StringSliceVar(&opts.includeTags, "include-tag", nil, "Prefer passages carrying this tag (repeatable)")
	cmd.Flags().StringSliceVar(&opts.excludeTags, "exclude-tag", nil, "Drop passages carrying this tag (repeatable)")
	cmd.Flags().BoolVar(&opts.avoidQuery, "avoid-query", false, "Suppress weakly related passages instead of filling top-k")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level for stderr output")

	return cmd
}
