package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"apyd/internal/common/fsutil"
	"apyd/internal/config"
	"apyd/internal/manager"
	"apyd/internal/modes"
	"apyd/internal/registry"
)

// defaultModesDirs are scanned when neither flags, environment nor the
// config file name any.
var defaultModesDirs = []string{"/usr/share/apertium", "/usr/local/share/apertium"}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	modesDirs  []string
	logLevel   string
	logPretty  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "apyd",
		Short: "Pooled translation pipelines over HTTP",
		Long: `apyd discovers installed modes (modes/*.mode files), keeps pools of
running pipelines per language pair and serves /translate, /analyze,
/generate and /tag.

Example:
  apyd serve --modes-dir /usr/share/apertium --max-pipes-per-pair 2`,
		SilenceUsage: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to config file (.yaml, .json or .toml)")
	pf.StringSliceVarP(&opts.modesDirs, "modes-dir", "d", nil, "Directory to scan for modes/*.mode (repeatable; env APYD_MODES_DIRS)")
	pf.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&opts.logPretty, "log-pretty", false, "Human-readable console logs")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPairsCmd(opts))
	cmd.AddCommand(newPathsCmd(opts))
	return cmd
}

// loadConfig merges the config file, APYD_MODES_DIRS and the persistent
// flags, in increasing precedence.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if dirs := splitCSV(os.Getenv("APYD_MODES_DIRS")); len(dirs) > 0 {
		cfg.ModesDirs = dirs
	}
	flags := cmd.Flags()
	if flags.Changed("modes-dir") {
		cfg.ModesDirs = opts.modesDirs
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-pretty") {
		cfg.LogPretty = opts.logPretty
	}
	if len(cfg.ModesDirs) == 0 {
		cfg.ModesDirs = defaultModesDirs
	}
	return cfg, cfg.Validate()
}

// scanRegistry resolves the configured directories and scans them.
func scanRegistry(cfg config.Config) (*registry.Registry, []string, error) {
	dirs, err := fsutil.AbsDirs(cfg.ModesDirs)
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.Scan(dirs...)
	if err != nil {
		return nil, dirs, err
	}
	return reg, dirs, nil
}

// buildManager scans the modes directories and constructs the pool manager.
// It refuses an installation with nothing in it.
func buildManager(cfg config.Config, log zerolog.Logger) (*manager.Manager, []string, error) {
	reg, dirs, err := scanRegistry(cfg)
	if err != nil {
		return nil, dirs, err
	}
	if reg.Empty() {
		return nil, dirs, manager.ErrEmptyServerConfiguration(dirs)
	}
	parser := modes.DefaultParser()
	if len(cfg.OneShotMarkers) > 0 {
		parser.OneShotMarkers = cfg.OneShotMarkers
	}
	if len(cfg.NoRawFlagCommands) > 0 {
		parser.NoRawFlagCommands = cfg.NoRawFlagCommands
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Registry:         reg,
		MaxPipesPerPair:  cfg.MaxPipesPerPair,
		MinPipesPerPair:  cfg.MinPipesPerPair,
		MaxUsersPerPipe:  cfg.MaxUsersPerPipe,
		MaxIdle:          cfg.MaxIdle(),
		RestartPipeAfter: cfg.RestartPipeAfter,
		Timeout:          cfg.Timeout(),
		Parser:           &parser,
		Logger:           log,
	})
	return mgr, dirs, nil
}

// splitCSV splits a comma-separated list, dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
