// Package initcmder provides the init command for initializing a local
// .thinkmate directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
	"github.com/vincenthz/ThinkMate/pkg/config"
)

const (
	dirName = ".thinkmate"
)

const initLongDesc string = `Initialize a new .thinkmate/ directory in the current working directory.

Creates a local .thinkmate/ directory that takes precedence over the default
~/.thinkmate/ directory for configuration, history and the resumed session.

With --preset, a config.toml pointing at a well known local model server
is written as well. Presets: ollama, llamacpp, lmstudio.

Examples:
  thinkmate init
  thinkmate init --preset lmstudio`

const initShortDesc string = "Initialize a local .thinkmate/ directory"

type initCommander struct {
	preset string
	force  bool
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Write a config.toml for a backend preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Overwrite an existing config.toml when --preset is given")

	return cmd
}

func (c *initCommander) run(out io.Writer) error {
	var cfg *config.Config
	if c.preset != "" {
		var err error
		cfg, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	case err == nil:
		return fmt.Errorf("%s exists and is not a directory", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .thinkmate directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .thinkmate directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}
	return c.writePreset(out, dir, cfg)
}

func (c *initCommander) writePreset(out io.Writer, dir string, cfg *config.Config) error {
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	_, err = os.Stat(cfger.GetTarget())
	switch {
	case err == nil && !c.force:
		return fmt.Errorf("%s already exists, use --force to overwrite it", cfger.GetTarget())
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Wrote %s preset: %s %s (%s)\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strings.ToLower(c.preset)),
		cfg.Backend.Provider,
		cliui.ValueStyle.Render(cfg.Backend.Target),
		cfg.Backend.Model,
	)
	return nil
}
