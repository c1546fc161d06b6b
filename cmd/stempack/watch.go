package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stempack/internal/config"
	"stempack/internal/watch"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Package once, then again whenever markers or data files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			trigger := func(ctx context.Context) error {
				_, err := packOnce(ctx, cfg, out)
				return err
			}
			if err := trigger(cmd.Context()); err != nil {
				log.Warn().Err(err).Msg("initial run failed")
			}

			watcher, err := watch.New(watch.Options{
				Dirs:     []string{cfg.MarkerDirectory, cfg.DataDirectory},
				Debounce: debounce,
				Ignore:   outputFilter(cfg),
				Logger:   log.Logger,
			})
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Close() }()

			log.Info().Str("markers", cfg.MarkerDirectory).Str("data", cfg.DataDirectory).Msg("watching for changes")
			return watcher.Run(cmd.Context(), trigger)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before rerunning")
	return cmd
}

// outputFilter ignores archives and report files the run itself writes, which
// matters when the output directory is also a watched directory.
func outputFilter(cfg config.Config) func(string) bool {
	outDir, _ := filepath.Abs(cfg.OutputDirectory)
	reportFile, _ := filepath.Abs(cfg.ReportFile)
	archiveSuffix := "." + strings.TrimPrefix(cfg.ArchiveExtension, ".")
	return func(path string) bool {
		abs, err := filepath.Abs(path)
		if err != nil {
			return false
		}
		if cfg.ReportFile != "" && abs == reportFile {
			return true
		}
		return filepath.Dir(abs) == outDir && strings.HasSuffix(abs, archiveSuffix)
	}
}
