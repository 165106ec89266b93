package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/store"
	"github.com/bjornefisk/StudyTutor/internal/ui"
)

func newStatusCmd(g *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index readiness and retrieval mode",
		Long: `Load the corpus index and report:
  - whether retrieval is ready and in which mode (hybrid or vector-only)
  - the number of chunks and the vector and lexical backends
  - the embedding model and query expansion provider
  - the size of each bundle file`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, g, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, g *globalOptions, format string) error {
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

	if err := app.LoadIndex(ctx); err != nil && !errors.Is(err, tterrors.ErrIndexMissing) {
		return err
	}

	info := collectStatus(app)
	out := cmd.OutOrStdout()
	renderer := ui.NewStatusRenderer(out, !ui.UseColor(out))
	if format == "json" {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(app *App) ui.StatusInfo {
	info := ui.StatusInfo{Status: app.Engine.Status()}
	dir := app.Config.Index.Dir
	if info.IndexDir == "" {
		info.IndexDir = dir
	}

	info.MetadataSize = getFileSize(filepath.Join(dir, store.MetadataFile))
	info.VectorSize = getFileSize(filepath.Join(dir, store.VectorsFile))
	info.TokensSize = getFileSize(filepath.Join(dir, store.TokensFile))
	info.GraphSize = getFileSize(filepath.Join(dir, store.GraphFile))
	info.TotalSize = info.MetadataSize + info.VectorSize + info.TokensSize + info.GraphSize +
		getFileSize(filepath.Join(dir, store.ConfigFile))
	return info
}

// getFileSize returns the size of a file in bytes.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
