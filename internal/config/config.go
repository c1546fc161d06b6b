package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"stempack/internal/archive"
	"stempack/internal/pack"
	"stempack/internal/stem"
)

const (
	defaultPort              = 8080
	defaultStateDir          = "state"
	defaultMaxConcurrentRuns = 2
	autoWorkers              = "auto"
)

// Workers is a worker count that may be written as an integer or "auto" (0).
type Workers int

// UnmarshalYAML accepts an integer or the string "auto".
func (w *Workers) UnmarshalYAML(node *yaml.Node) error {
	value := strings.ToLower(strings.TrimSpace(node.Value))
	if value == "" || value == autoWorkers || value == "null" || value == "~" {
		*w = 0
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("max_workers: want integer or %q, got %q", autoWorkers, node.Value)
	}
	*w = Workers(n)
	return nil
}

// MarshalYAML writes 0 back as "auto".
func (w Workers) MarshalYAML() (any, error) {
	if w == 0 {
		return autoWorkers, nil
	}
	return int(w), nil
}

// Parallel mirrors the parallel section of the config file.
type Parallel struct {
	Enabled        bool    `yaml:"enabled"`
	MaxWorkers     Workers `yaml:"max_workers"`
	TimeoutSeconds *int    `yaml:"timeout_seconds"`
}

// Server configures the HTTP service.
type Server struct {
	Port              int    `yaml:"port"`
	StateDir          string `yaml:"state_dir"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs"`
}

// Config describes a packaging run plus the service settings around it.
type Config struct {
	DataDirectory     string   `yaml:"data_directory"`
	MarkerDirectory   string   `yaml:"marker_directory"`
	OutputDirectory   string   `yaml:"output_directory"`
	Extensions        []string `yaml:"extensions"`
	MarkerExtensions  []string `yaml:"marker_extensions"`
	Delimiters        []string `yaml:"delimiters"`
	Recursive         bool     `yaml:"recursive"`
	Layout            string   `yaml:"layout"`
	EmptyGroups       string   `yaml:"empty_groups"`
	Overwrite         bool     `yaml:"overwrite"`
	ArchiveExtension  string   `yaml:"archive_extension"`
	ReportFile        string   `yaml:"report_file"`
	RunTimeoutSeconds int      `yaml:"run_timeout_seconds"`
	LogLevel          string   `yaml:"log_level"`
	Parallel          Parallel `yaml:"parallel"`
	Server            Server   `yaml:"server"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDirectory:    "data",
		MarkerDirectory:  "markers",
		OutputDirectory:  "out",
		MarkerExtensions: []string{".yml", ".yaml"},
		Delimiters:       append([]string(nil), stem.DefaultDelimiters...),
		Layout:           string(archive.LayoutFlat),
		EmptyGroups:      string(archive.EmptySkip),
		Overwrite:        true,
		ArchiveExtension: archive.DefaultExtension,
		LogLevel:         zerolog.InfoLevel.String(),
		Parallel:         Parallel{Enabled: true},
		Server: Server{
			Port:              defaultPort,
			StateDir:          defaultStateDir,
			MaxConcurrentRuns: defaultMaxConcurrentRuns,
		},
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is chosen by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.StateDir == "" {
		c.Server.StateDir = defaultStateDir
	}
	if c.Layout == "" {
		c.Layout = string(archive.LayoutFlat)
	}
	if c.EmptyGroups == "" {
		c.EmptyGroups = string(archive.EmptySkip)
	}
	if c.ArchiveExtension == "" {
		c.ArchiveExtension = archive.DefaultExtension
	}
	c.Layout = strings.ToLower(strings.TrimSpace(c.Layout))
	c.EmptyGroups = strings.ToLower(strings.TrimSpace(c.EmptyGroups))
	c.Extensions = stem.NormalizeExtensions(c.Extensions)
	c.MarkerExtensions = stem.NormalizeExtensions(c.MarkerExtensions)
}

// Validate checks values that the YAML types cannot express. Directory existence and
// the extension list are checked by pack.Run so that CLI overrides are honored.
func (c Config) Validate() error {
	if c.Parallel.MaxWorkers < 0 {
		return fmt.Errorf("invalid max_workers: %d (must be >= 0 or auto)", c.Parallel.MaxWorkers)
	}
	if c.Parallel.TimeoutSeconds != nil && *c.Parallel.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid timeout_seconds: %d (must be >= 0)", *c.Parallel.TimeoutSeconds)
	}
	if c.RunTimeoutSeconds < 0 {
		return fmt.Errorf("invalid run_timeout_seconds: %d (must be >= 0)", c.RunTimeoutSeconds)
	}
	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("invalid max_concurrent_runs: %d (must be >= 1)", c.Server.MaxConcurrentRuns)
	}
	switch archive.Layout(c.Layout) {
	case archive.LayoutFlat, archive.LayoutNested:
	default:
		return fmt.Errorf("invalid layout: %q (want flat or nested)", c.Layout)
	}
	switch archive.EmptyPolicy(c.EmptyGroups) {
	case archive.EmptySkip, archive.EmptyArchive:
	default:
		return fmt.Errorf("invalid empty_groups: %q (want skip or archive)", c.EmptyGroups)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Level returns the configured zerolog level, defaulting to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// RunTimeout is the global deadline for one run; 0 means none.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// PackOptions resolves the typed options consumed by pack.Run.
func (c Config) PackOptions() pack.Options {
	var taskTimeout time.Duration
	if c.Parallel.TimeoutSeconds != nil {
		taskTimeout = time.Duration(*c.Parallel.TimeoutSeconds) * time.Second
	}
	return pack.Options{
		DataDir:          c.DataDirectory,
		MarkerDir:        c.MarkerDirectory,
		OutputDir:        c.OutputDirectory,
		Extensions:       c.Extensions,
		MarkerExtensions: c.MarkerExtensions,
		Delimiters:       c.Delimiters,
		Recursive:        c.Recursive,
		Layout:           archive.Layout(c.Layout),
		EmptyPolicy:      archive.EmptyPolicy(c.EmptyGroups),
		Overwrite:        c.Overwrite,
		ArchiveExtension: c.ArchiveExtension,
		Parallel: pack.ParallelOptions{
			Enabled:     c.Parallel.Enabled,
			MaxWorkers:  int(c.Parallel.MaxWorkers),
			TaskTimeout: taskTimeout,
		},
	}
}
