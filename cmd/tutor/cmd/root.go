// Package cmd provides the CLI commands for the tutor binary.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bjornefisk/StudyTutor/internal/config"
	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/logging"
	"github.com/bjornefisk/StudyTutor/internal/profiling"
	"github.com/bjornefisk/StudyTutor/internal/search"
	"github.com/bjornefisk/StudyTutor/pkg/version"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	indexDir   string
	debug      bool

	profile  profiling.Options
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the tutor CLI.
func NewRootCmd() *cobra.Command {
	var g globalOptions

	cmd := &cobra.Command{
		Use:   "tutor",
		Short: "Hybrid retrieval over ingested course material",
		Long: `tutor retrieves study material from a corpus index built by the
ingestion pipeline. Dense vector similarity and BM25 keyword ranking are
fused with Reciprocal Rank Fusion, optionally over several paraphrases
of the question.

Configuration is read from .studytutor.yaml, a .env file and the
environment.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// A missing .env file is not an error.
			_ = godotenv.Load()
			if !g.profile.Enabled() {
				return nil
			}
			session, err := profiling.Start(g.profile)
			if err != nil {
				return err
			}
			g.profiler = session
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			err := g.profiler.Stop()
			g.profiler = nil
			return err
		},
	}
	cmd.SetVersionTemplate("tutor version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a config file (default: ./.studytutor.yaml)")
	cmd.PersistentFlags().StringVar(&g.indexDir, "index-dir", "", "Index bundle directory (overrides index.dir)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to "+logging.DefaultLogPath())
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newSearchCmd(&g))
	cmd.AddCommand(newStatusCmd(&g))
	cmd.AddCommand(newDoctorCmd(&g))
	cmd.AddCommand(newServeCmd(&g))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

// printError writes err for a terminal. Not-ready is reported as the
// single user-facing sentence.
func printError(w io.Writer, err error) {
	if errors.Is(err, tterrors.ErrNotReady) {
		_, _ = fmt.Fprintln(w, search.NotReadyMessage)
		return
	}
	_, _ = fmt.Fprint(w, tterrors.FormatForCLI(err))
}

// loadConfig resolves the configuration from the persistent flags.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, tterrors.ConfigError("failed to load configuration", err)
	}
	if g.indexDir != "" {
		cfg.Index.Dir = g.indexDir
	}
	if g.debug {
		cfg.Server.LogLevel = "debug"
	}
	return cfg, nil
}

// setupLogging installs the file logger. With stdioSafe nothing is written
// to stderr, which MCP stdio serving requires.
func setupLogging(cfg *config.Config, stdioSafe bool) (*slog.Logger, func()) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = false
	if stdioSafe {
		logCfg = logging.StdioSafeConfig(cfg.Server.LogLevel)
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return logging.Discard(), func() {}
	}
	slog.SetDefault(logger)
	return logger, cleanup
}
