// Package initcmder provides the init command for initializing a local
// .adpchat directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TencentCloudADP/adp-chat-client/pkg/cliui"
	"github.com/TencentCloudADP/adp-chat-client/pkg/config"
)

const (
	dirName = ".adpchat"
)

const initLongDesc string = `Initialize a new .adpchat/ directory in the current working directory.

Creates a local .adpchat/ directory that takes precedence over the default
~/.adpchat/ directory for configuration and the saved chat conversation.

With --preset, a config.toml is written from a named preset:
  local   relay in front of the scripted upstream of "adpchat mock"
  kafka   publish finished turns to a Kafka broker on localhost:9092

An existing config.toml is replaced by the preset.

Examples:
  adpchat init
  adpchat init --preset local`

const initShortDesc string = "Initialize a local .adpchat/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Write config.toml from a preset (local, kafka)")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(w io.Writer, preset string) error {
	var cfg *config.Config
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
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
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .adpchat directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .adpchat directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}
	return writePreset(w, dir, preset, cfg)
}

func writePreset(w io.Writer, dir, preset string, cfg *config.Config) error {
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	return cliui.Step(w, fmt.Sprintf("Writing %s preset to %s", preset, cfger.GetTarget()), func() error {
		return cfger.SaveConfig(cfg)
	})
}
