package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cloudspectre/internal/logging"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

// flagValues holds raw flag values. They are copied onto the config only when
// the flag was set on the command line, so file and env values survive.
type flagValues struct {
	configPath        string
	dryRun            bool
	untaggedThreshold string
	stoppedThreshold  string
	eksCleanup        bool
	eksSkipPattern    string
	openShiftCleanup  bool
	baseDomain        string
	volumeCleanup     bool
	regions           string
	excludeRegions    []string
	homeRegion        string
	profile           string
	apiRateLimit      int
	maxAttempts       int
	auditDSN          string
	outputDir         string
	format            string
	logLevel          string
	logFormat         string
	timeout           string
}

// registerConfigFlags adds the flags shared by commands that build a Config.
func registerConfigFlags(cmd *cobra.Command, f *flagValues) {
	defaults := config.DefaultConfig()
	flags := cmd.Flags()

	flags.StringVar(&f.configPath, "config", "", "Config file path (default: .cloudspectre.yaml in . or $HOME)")
	flags.BoolVar(&f.dryRun, "dry-run", defaults.DryRun, "Log decisions without changing anything")
	flags.StringVar(&f.homeRegion, "home-region", defaults.HomeRegion, "Region used for global calls and region discovery")
	flags.StringVar(&f.profile, "profile", "", "AWS shared config profile")
	flags.IntVar(&f.apiRateLimit, "api-rate-limit", defaults.APIRateLimit, "Mutating AWS calls per second")
	flags.IntVar(&f.maxAttempts, "max-attempts", defaults.MaxAttempts, "AWS SDK retry attempts per call")
	flags.StringVar(&f.baseDomain, "base-domain", defaults.OpenShiftBaseDomain, "Base DNS domain of footprint clusters")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "Log format: text or json")
	flags.StringVar(&f.timeout, "timeout", "", "Overall deadline (e.g. 30m, 1h)")
}

// loadConfig layers defaults, the config file, the environment and the
// explicitly set flags, then validates the result.
func loadConfig(cmd *cobra.Command, f *flagValues) (*config.Config, error) {
	cfg := config.DefaultConfig()

	var (
		fileCfg *config.FileConfig
		path    string
		err     error
	)
	if f.configPath != "" {
		path = f.configPath
		fileCfg, err = config.LoadFile(path)
	} else {
		fileCfg, path, err = config.AutoLoadFile()
	}
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if err := fileCfg.Apply(cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		slog.Debug("loaded config file", slog.String("path", path))
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, f, cfg); err != nil {
		return nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, f *flagValues, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
	if changed("untagged-threshold") {
		d, err := config.ParseDurationIn(f.untaggedThreshold, time.Minute)
		if err != nil {
			return fmt.Errorf("invalid --untagged-threshold duration: %w", err)
		}
		cfg.UntaggedThreshold = d
	}
	if changed("stopped-threshold") {
		d, err := config.ParseDurationIn(f.stoppedThreshold, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("invalid --stopped-threshold duration: %w", err)
		}
		cfg.StoppedThreshold = d
	}
	if changed("eks-cleanup") {
		cfg.EKSCleanupEnabled = f.eksCleanup
	}
	if changed("eks-skip-pattern") {
		cfg.EKSSkipPattern = f.eksSkipPattern
	}
	if changed("openshift-cleanup") {
		cfg.OpenShiftCleanupEnabled = f.openShiftCleanup
	}
	if changed("base-domain") {
		cfg.OpenShiftBaseDomain = f.baseDomain
	}
	if changed("volume-cleanup") {
		cfg.VolumeCleanupEnabled = f.volumeCleanup
	}
	if changed("regions") {
		cfg.TargetRegions = config.ParseRegionList(f.regions)
	}
	if changed("exclude-regions") {
		cfg.ExcludeRegions = append([]string(nil), f.excludeRegions...)
	}
	if changed("home-region") {
		cfg.HomeRegion = f.homeRegion
	}
	if changed("profile") {
		cfg.Profile = f.profile
	}
	if changed("api-rate-limit") {
		cfg.APIRateLimit = f.apiRateLimit
	}
	if changed("max-attempts") {
		cfg.MaxAttempts = f.maxAttempts
	}
	if changed("audit-dsn") {
		cfg.AuditDSN = f.auditDSN
	}
	if changed("output") {
		cfg.OutputDir = f.outputDir
	}
	if changed("format") {
		cfg.Format = f.format
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("timeout") {
		d, err := config.ParseDuration(f.timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout duration: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("invalid --timeout duration: must be >= 0")
		}
		cfg.Timeout = d
	}
	cfg.Verbose = verbose

	return nil
}

// setupLogging replaces the Init logger when a level or format was configured.
func setupLogging(cfg *config.Config) error {
	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	if level == "" && (cfg.LogFormat == "" || cfg.LogFormat == "text") {
		return nil
	}
	return logging.Setup(level, cfg.LogFormat)
}
