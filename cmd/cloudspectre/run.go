package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cloudspectre/internal/app"
	"github.com/ppiankov/cloudspectre/internal/reporter"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

type runOptions struct {
	flags         flagValues
	failOnActions bool

	cfg *config.Config
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	return newRunCmd(&runOptions{})
}

func newRunCmd(opts *runOptions) *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan all selected regions and reclaim expired resources",
		Long: `Scan every selected region, evaluate the tag policy for each instance
and unattached volume, and carry out the decided actions. Managed clusters
are removed through their CloudFormation stack. Footprint clusters get one
full teardown pass per run; resources that still have dependents are left
for the next run to finish.

Nothing is changed unless --dry-run=false is given.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f := opts.flags.format; cmd.Flags().Changed("format") && f != reporter.FormatText && f != reporter.FormatJSON {
				return fmt.Errorf("invalid --format value %q (must be text or json)", f)
			}
			cfg, err := loadConfig(cmd, &opts.flags)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	f := &opts.flags
	registerConfigFlags(cmd, f)
	flags := cmd.Flags()
	flags.StringVar(&f.untaggedThreshold, "untagged-threshold", "30m", "Age after which instances without a billing tag are terminated (bare integers are minutes)")
	flags.StringVar(&f.stoppedThreshold, "stopped-threshold", "30d", "Age after which stopped instances are terminated (bare integers are days)")
	flags.BoolVar(&f.eksCleanup, "eks-cleanup", defaults.EKSCleanupEnabled, "Delete expired managed clusters through their stack")
	flags.StringVar(&f.eksSkipPattern, "eks-skip-pattern", defaults.EKSSkipPattern, "Regex of managed cluster names never reclaimed as untagged")
	flags.BoolVar(&f.openShiftCleanup, "openshift-cleanup", defaults.OpenShiftCleanupEnabled, "Tear down expired footprint clusters")
	flags.BoolVar(&f.volumeCleanup, "volume-cleanup", defaults.VolumeCleanupEnabled, "Delete unattached volumes")
	flags.StringVar(&f.regions, "regions", "all", "Comma-separated regions to scan, or all")
	flags.StringSliceVar(&f.excludeRegions, "exclude-regions", nil, "Region glob patterns to skip (repeatable)")
	flags.StringVar(&f.auditDSN, "audit-dsn", "", "ClickHouse DSN for the action audit table")
	flags.StringVar(&f.outputDir, "output", "", "Directory for report files (stdout only when empty)")
	flags.StringVar(&f.format, "format", defaults.Format, "Report format: text or json")
	flags.BoolVar(&opts.failOnActions, "fail-on-actions", false, "Exit with code 6 when any action was decided")

	return cmd
}

func runScan(cmd *cobra.Command, opts *runOptions) error {
	cfg := opts.cfg

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if isFirstRun {
		app.PrintFirstRunNotice(cmd.ErrOrStderr(), cfg.DryRun)
	}

	comps, err := newComponents(ctx, cfg)
	if err != nil {
		return err
	}

	sink := openAuditSink(ctx, cfg)
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Warn("failed to close audit sink", slog.String("error", err.Error()))
		}
	}()

	sc, err := comps.newScanner(cfg, sink)
	if err != nil {
		return err
	}

	slog.Info("starting run",
		slog.Bool("dry_run", cfg.DryRun),
		slog.String("home_region", cfg.HomeRegion),
		slog.Bool("eks_cleanup", cfg.EKSCleanupEnabled),
		slog.Bool("openshift_cleanup", cfg.OpenShiftCleanupEnabled),
		slog.Bool("volume_cleanup", cfg.VolumeCleanupEnabled),
	)

	report, err := sc.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if err := reporter.New(cfg).Generate(report); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if opts.failOnActions && report.TotalActions > 0 {
		return &ActionsError{Count: report.TotalActions}
	}
	return nil
}
