package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bjornefisk/StudyTutor/configs"
	"github.com/bjornefisk/StudyTutor/internal/config"
	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/ui"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write an example " + config.FileName,
		Long: `Write the commented example configuration into dir (default: the
current directory). An existing file is kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return tterrors.ValidationError(fmt.Sprintf("%s already exists", path), nil).
			WithSuggestion("Use --force to overwrite it")
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.WriteFile(path, configs.ExampleConfig, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	ui.NewWriter(cmd.OutOrStdout()).Success(fmt.Sprintf("Wrote %s", path))
	return nil
}
