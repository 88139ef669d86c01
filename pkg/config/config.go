package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultPersistentTags are billing tag values that are never reclaimed.
var DefaultPersistentTags = []string{
	"jenkins-cloud",
	"jenkins-fb",
	"jenkins-pg",
	"jenkins-ps3",
	"jenkins-ps57",
	"jenkins-ps80",
	"jenkins-psmdb",
	"jenkins-pxb",
	"jenkins-pxc",
	"jenkins-rel",
	"pmm-dev",
}

// Config holds all runtime configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	// Policy settings
	DryRun            bool
	UntaggedThreshold time.Duration
	StoppedThreshold  time.Duration
	PersistentTags    []string

	// Feature toggles
	EKSCleanupEnabled       bool
	EKSSkipPattern          string
	OpenShiftCleanupEnabled bool
	OpenShiftBaseDomain     string
	VolumeCleanupEnabled    bool

	// Region selection
	TargetRegions  []string
	ExcludeRegions []string

	// AWS settings
	HomeRegion   string
	Profile      string
	APIRateLimit int
	MaxAttempts  int

	// Audit sink
	AuditDSN string

	// Output settings
	OutputDir string
	Format    string

	// Operational flags
	LogLevel  string
	LogFormat string
	Timeout   time.Duration
	Verbose   bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DryRun:                  true,
		UntaggedThreshold:       30 * time.Minute,
		StoppedThreshold:        30 * 24 * time.Hour,
		PersistentTags:          append([]string(nil), DefaultPersistentTags...),
		EKSCleanupEnabled:       true,
		EKSSkipPattern:          "pe-.*",
		OpenShiftCleanupEnabled: true,
		OpenShiftBaseDomain:     "cd.percona.com",
		VolumeCleanupEnabled:    true,
		TargetRegions:           []string{},
		ExcludeRegions:          []string{},
		HomeRegion:              "us-east-2",
		APIRateLimit:            10,
		MaxAttempts:             5,
		Format:                  "text",
		LogFormat:               "text",
	}
}

// Validate rejects configurations no component can run with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.UntaggedThreshold < 0 {
		return fmt.Errorf("untagged threshold must be >= 0, got %s", c.UntaggedThreshold)
	}
	if c.StoppedThreshold < 0 {
		return fmt.Errorf("stopped threshold must be >= 0, got %s", c.StoppedThreshold)
	}
	if _, err := c.SkipPattern(); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	if c.APIRateLimit <= 0 {
		return fmt.Errorf("api rate limit must be > 0, got %d", c.APIRateLimit)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0, got %d", c.MaxAttempts)
	}
	if strings.TrimSpace(c.HomeRegion) == "" {
		return fmt.Errorf("home region is required")
	}
	for _, pattern := range c.ExcludeRegions {
		if !validPattern(pattern) {
			return fmt.Errorf("invalid exclude region pattern %q", pattern)
		}
	}
	return nil
}

// SkipPattern compiles the managed-cluster skip pattern anchored at the start
// of the cluster name. An empty pattern returns nil.
func (c *Config) SkipPattern() (*regexp.Regexp, error) {
	pattern := strings.TrimSpace(c.EKSSkipPattern)
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid eks skip pattern %q: %w", pattern, err)
	}
	return re, nil
}

// StoppedThresholdDays returns the long-stopped threshold in days.
func (c *Config) StoppedThresholdDays() float64 {
	return c.StoppedThreshold.Hours() / 24
}
