package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stempack/internal/config"
)

// ErrStemsFailed makes the process exit non-zero when at least one stem failed.
var ErrStemsFailed = errors.New("one or more stems failed")

type globalFlags struct {
	configPath string
	dataDir    string
	markerDir  string
	outputDir  string
	workers    int
	sequential bool
	logLevel   string
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("stempack failed")
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "stempack",
		Short: "Group data files by marker stem and package each group into an archive",
		Long: `stempack reads marker files from a marker directory, derives one stem per marker,
collects every data file named after that stem and writes one archive per stem.

Stems are packaged by a bounded pool of workers when parallelism is enabled.
One failing stem never aborts the others; the run report lists every outcome.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "config.yml", "path to the YAML config file")
	pf.StringVar(&flags.dataDir, "data", "", "data directory (overrides data_directory)")
	pf.StringVar(&flags.markerDir, "markers", "", "marker directory (overrides marker_directory)")
	pf.StringVar(&flags.outputDir, "out", "", "output directory (overrides output_directory)")
	pf.IntVarP(&flags.workers, "workers", "w", 0, "max workers, 0 = number of CPUs (overrides parallel.max_workers)")
	pf.BoolVar(&flags.sequential, "sequential", false, "disable parallel packaging")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (overrides log_level)")

	rootCmd.AddCommand(newRunCmd(flags), newWatchCmd(flags), newServeCmd(flags))
	return rootCmd
}

// loadConfig reads the config file and applies flags that were set explicitly.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	changed := cmd.Flags().Changed
	if changed("data") {
		cfg.DataDirectory = flags.dataDir
	}
	if changed("markers") {
		cfg.MarkerDirectory = flags.markerDir
	}
	if changed("out") {
		cfg.OutputDirectory = flags.outputDir
	}
	if changed("workers") {
		cfg.Parallel.MaxWorkers = config.Workers(flags.workers)
	}
	if changed("sequential") {
		cfg.Parallel.Enabled = !flags.sequential
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	zerolog.SetGlobalLevel(cfg.Level())
	return cfg, nil
}
