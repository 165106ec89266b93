package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bjornefisk/StudyTutor/internal/api"
	"github.com/bjornefisk/StudyTutor/internal/async"
	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/mcp"
	"github.com/bjornefisk/StudyTutor/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	httpAddr string
	mcp      bool
	watch    bool
}

func newServeCmd(g *globalOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval over HTTP or MCP",
		Long: `Load the corpus index in the background and serve retrieval until
interrupted. Queries arriving before the load finishes are answered
not-ready.

By default an HTTP API is served on server.http_addr. With --mcp the
Model Context Protocol is served on stdin/stdout instead; add --http to
serve both. With --watch the index is reloaded whenever the ingestion
pipeline rewrites it.

Examples:
  tutor serve
  tutor serve --http 127.0.0.1:9000 --watch
  tutor serve --mcp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "HTTP listen address (default: server.http_addr)")
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Serve MCP over stdio")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the index when it changes (default: index.watch)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts serveOptions) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	// MCP owns stdout; keep logs in the file only.
	logger, cleanup := setupLogging(cfg, opts.mcp)
	defer cleanup()

	httpAddr := cfg.Server.HTTPAddr
	if cmd.Flags().Changed("http") {
		httpAddr = opts.httpAddr
	} else if opts.mcp {
		httpAddr = ""
	}
	watch := cfg.Index.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.watch
	}
	if httpAddr == "" && !opts.mcp {
		return tterrors.ValidationError("nothing to serve: set --http or --mcp", nil)
	}

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	// Requests are answered not-ready until the load finishes.
	loader := async.NewLoader(app.LoadIndex, logger)
	loader.Start(ctx)
	defer loader.Stop()

	if watch {
		w, err := newIndexWatcher(app)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			select {
			case <-loader.Done():
			case <-ctx.Done():
				return nil
			}
			return w.Run(ctx)
		})
	}

	if httpAddr != "" {
		server := &http.Server{
			Addr: httpAddr,
			Handler: api.NewRouter(app.Engine, api.Config{
				Defaults: app.Options,
				Metrics:  app.Metrics,
				Loader:   loader,
				Logger:   logger,
			}).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       60 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("http listening", slog.String("addr", httpAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if opts.mcp {
		srv, err := mcp.NewServer(app.Engine, app.Options, logger)
		if err != nil {
			return err
		}
		srv.SetQueryStats(app.Metrics.Queries())
		eg.Go(func() error {
			// The client closing stdin ends the whole process.
			defer cancel()
			return srv.Serve(ctx, "stdio")
		})
	}

	return eg.Wait()
}

func newIndexWatcher(app *App) (*watcher.IndexWatcher, error) {
	dir := app.Config.Index.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	reloader := watcher.NewReloader(dir, app.Engine, watcher.StoreLoader(app.LoadOptions()), app.Logger)
	return watcher.New(dir, reloader, watcher.Options{
		DebounceWindow: app.Config.Index.WatchDebounce,
		Logger:         app.Logger,
	})
}
