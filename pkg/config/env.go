package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	timeMinute = time.Minute
	timeDay    = 24 * time.Hour
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays the scheduler environment variables onto cfg.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	if c == nil {
		return nil
	}

	boolVars := []struct {
		key    string
		target *bool
	}{
		{"DRY_RUN", &c.DryRun},
		{"EKS_CLEANUP_ENABLED", &c.EKSCleanupEnabled},
		{"OPENSHIFT_CLEANUP_ENABLED", &c.OpenShiftCleanupEnabled},
		{"VOLUME_CLEANUP_ENABLED", &c.VolumeCleanupEnabled},
	}
	for _, v := range boolVars {
		raw, ok := lookupTrimmed(lookup, v.key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: must be true or false", v.key, raw)
		}
		*v.target = b
	}

	if raw, ok := lookupTrimmed(lookup, "UNTAGGED_THRESHOLD_MINUTES"); ok {
		d, err := ParseDurationIn(raw, timeMinute)
		if err != nil {
			return fmt.Errorf("invalid UNTAGGED_THRESHOLD_MINUTES %q: %w", raw, err)
		}
		c.UntaggedThreshold = d
	}
	if raw, ok := lookupTrimmed(lookup, "STOPPED_THRESHOLD_DAYS"); ok {
		d, err := ParseDurationIn(raw, timeDay)
		if err != nil {
			return fmt.Errorf("invalid STOPPED_THRESHOLD_DAYS %q: %w", raw, err)
		}
		c.StoppedThreshold = d
	}
	if raw, ok := lookup("EKS_SKIP_PATTERN"); ok {
		c.EKSSkipPattern = strings.TrimSpace(raw)
	}
	if raw, ok := lookupTrimmed(lookup, "OPENSHIFT_BASE_DOMAIN"); ok {
		c.OpenShiftBaseDomain = raw
	}
	if raw, ok := lookupTrimmed(lookup, "TARGET_REGIONS"); ok {
		c.TargetRegions = ParseRegionList(raw)
	}
	if raw, ok := lookupTrimmed(lookup, "AWS_REGION"); ok {
		c.HomeRegion = raw
	}
	if raw, ok := lookupTrimmed(lookup, "AUDIT_CLICKHOUSE_DSN"); ok {
		c.AuditDSN = raw
	}
	if raw, ok := lookupTrimmed(lookup, "LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(raw)
	}

	return nil
}

func lookupTrimmed(lookup LookupFunc, key string) (string, bool) {
	raw, ok := lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
