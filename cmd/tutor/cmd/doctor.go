package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/preflight"
	"github.com/bjornefisk/StudyTutor/internal/store"
	"github.com/bjornefisk/StudyTutor/internal/ui"
)

func newDoctorCmd(g *globalOptions) *cobra.Command {
	var (
		format  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that retrieval can run",
		Long: `Run preflight checks against the configured index and backends:
  - the index bundle loads and is consistent
  - the embedding backend answers with the index's dimension
  - the lexical backend is available (otherwise retrieval is vector-only)
  - disk space and file descriptor limits

Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, g, format, verbose)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, g *globalOptions, format string, verbose bool) error {
	if format != "text" && format != "json" {
		return tterrors.ValidationError(fmt.Sprintf("unknown format %q (use text or json)", format), nil)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup := setupLogging(cfg, false)
	defer cleanup()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out := cmd.OutOrStdout()
	checker := preflight.New(
		preflight.WithOutput(out),
		preflight.WithVerbose(verbose),
		preflight.WithNoColor(!ui.UseColor(out)),
	)
	results := checker.RunAll(ctx, preflight.Target{
		IndexDir:       cfg.Index.Dir,
		Embedder:       app.Embedder(),
		LexicalBackend: strings.ToLower(cfg.Lexical.Backend),
		BM25:           store.BM25Config{K1: cfg.Lexical.K1, B: cfg.Lexical.B},
	})

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"status": checker.SummaryStatus(results),
			"checks": results,
		}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return tterrors.RetrievalUnavailable("preflight checks failed", nil).
			WithSuggestion("Fix the failed checks above and run 'tutor doctor' again")
	}
	return nil
}
