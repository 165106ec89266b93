package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/knowledge"
	"github.com/bjornefisk/StudyTutor/internal/search"
	"github.com/bjornefisk/StudyTutor/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK       int
	multiQuery bool
	variations int
	noHybrid   bool
	rrfK       int
	format     string // "text", "json"
	wiki       bool
	fullText   bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve study material for a question",
		Long: `Retrieve the chunks of the corpus index most relevant to a question.

Dense similarity and BM25 keyword ranking are fused with Reciprocal Rank
Fusion. With --multi-query the question is also paraphrased and the
rankings of every variant are summed.

Examples:
  tutor search "What is photosynthesis?"
  tutor search PHOTOSYN_42 -n 5
  tutor search "how do leaves make sugar" --multi-query --variations 4
  tutor search "osmosis" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Maximum number of results (default: retrieval.top_k)")
	cmd.Flags().BoolVar(&opts.multiQuery, "multi-query", false, "Expand the question into paraphrases")
	cmd.Flags().IntVar(&opts.variations, "variations", 0, "Variants including the original question (default: retrieval.num_query_variations)")
	cmd.Flags().BoolVar(&opts.noHybrid, "no-hybrid", false, "Use dense similarity only")
	cmd.Flags().IntVar(&opts.rrfK, "rrf-k", 0, "RRF constant k (default: retrieval.rrf_k)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.wiki, "wiki", false, "Add a Wikipedia summary for encyclopedic questions")
	cmd.Flags().BoolVar(&opts.fullText, "full-text", false, "Print whole chunks instead of snippets")

	return cmd
}

// applyOverrides returns base with the flags the user set.
func (o searchOptions) applyOverrides(cmd *cobra.Command, base search.Options) search.Options {
	flags := cmd.Flags()
	if flags.Changed("top-k") {
		base.TopK = o.topK
	}
	if flags.Changed("multi-query") {
		base.UseMultiQuery = o.multiQuery
	}
	if flags.Changed("variations") {
		base.NumVariations = o.variations
	}
	if flags.Changed("no-hybrid") {
		base.UseHybrid = !o.noHybrid
	}
	if flags.Changed("rrf-k") {
		base.RRFK = o.rrfK
	}
	return base
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return tterrors.ValidationError(fmt.Sprintf("unknown format %q (use text or json)", opts.format), nil)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if opts.wiki {
		cfg.Knowledge.Enabled = true
	}
	logger, cleanup := setupLogging(cfg, false)
	defer cleanup()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if err := app.LoadIndex(ctx); err != nil {
		if !errors.Is(err, tterrors.ErrIndexMissing) {
			return err
		}
		logger.Warn("index not found", slog.String("dir", cfg.Index.Dir))
	}

	retrieveOpts := opts.applyOverrides(cmd, app.Options)
	if err := retrieveOpts.Validate(); err != nil {
		return err
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("top_k", retrieveOpts.TopK))

	var (
		results []search.Result
		article *knowledge.Article
	)
	if opts.wiki {
		ans, err := app.Engine.RetrieveWithKnowledge(ctx, query, retrieveOpts)
		if err != nil {
			return err
		}
		results, article = ans.Results, ans.Knowledge
	} else {
		results, err = app.Engine.Retrieve(ctx, query, retrieveOpts)
		if err != nil {
			return err
		}
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	out := cmd.OutOrStdout()
	renderer := ui.NewResultsRenderer(out, !ui.UseColor(out), opts.fullText)
	if opts.format == "json" {
		return renderer.RenderJSON(query, results, article)
	}
	return renderer.Render(query, results, article)
}
