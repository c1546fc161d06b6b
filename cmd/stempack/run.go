package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stempack/internal/config"
	fileutil "stempack/internal/file"
	"stempack/internal/pack"
	"stempack/internal/render"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Package every stem once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			_, err = packOnce(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}
}

// packOnce runs one packaging pass, prints the summary and writes the report file.
func packOnce(ctx context.Context, cfg config.Config, out io.Writer) (*pack.RunReport, error) {
	if timeout := cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opts := cfg.PackOptions()
	opts.Logger = &log.Logger
	opts.Hook = render.LogProgress(log.Logger)

	report, err := pack.Run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	_, _ = fmt.Fprint(out, render.Summary(report))

	if cfg.ReportFile != "" {
		if err := fileutil.WriteJSONAtomic(cfg.ReportFile, report); err != nil {
			return report, fmt.Errorf("write report: %w", err)
		}
		log.Info().Str("path", cfg.ReportFile).Msg("report written")
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d", ErrStemsFailed, report.Failed, report.Total)
	}
	return report, nil
}
