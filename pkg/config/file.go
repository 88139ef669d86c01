package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFileYAML is the canonical config filename.
	DefaultConfigFileYAML = ".cloudspectre.yaml"
	// DefaultConfigFileYML is a compatible alternate config filename.
	DefaultConfigFileYML = ".cloudspectre.yml"
)

// FileConfig represents values loaded from a .cloudspectre.yaml file.
// Pointer fields distinguish "unset" from the zero value.
type FileConfig struct {
	DryRun                  *bool    `yaml:"dry_run"`
	UntaggedThreshold       string   `yaml:"untagged_threshold"`
	StoppedThreshold        string   `yaml:"stopped_threshold"`
	PersistentTags          []string `yaml:"persistent_tags"`
	EKSCleanupEnabled       *bool    `yaml:"eks_cleanup_enabled"`
	EKSSkipPattern          *string  `yaml:"eks_skip_pattern"`
	OpenShiftCleanupEnabled *bool    `yaml:"openshift_cleanup_enabled"`
	OpenShiftBaseDomain     string   `yaml:"openshift_base_domain"`
	VolumeCleanupEnabled    *bool    `yaml:"volume_cleanup_enabled"`
	TargetRegions           []string `yaml:"target_regions"`
	ExcludeRegions          []string `yaml:"exclude_regions"`
	HomeRegion              string   `yaml:"home_region"`
	Profile                 string   `yaml:"profile"`
	APIRateLimit            *int     `yaml:"api_rate_limit"`
	MaxAttempts             *int     `yaml:"max_attempts"`
	AuditDSN                string   `yaml:"audit_dsn"`
	OutputDir               string   `yaml:"output_dir"`
	Format                  string   `yaml:"format"`
}

// Normalize trims and removes empty items from list fields.
func (fc *FileConfig) Normalize() {
	if fc == nil {
		return
	}
	fc.PersistentTags = normalizeList(fc.PersistentTags)
	fc.TargetRegions = normalizeList(fc.TargetRegions)
	fc.ExcludeRegions = normalizeList(fc.ExcludeRegions)
	fc.UntaggedThreshold = strings.TrimSpace(fc.UntaggedThreshold)
	fc.StoppedThreshold = strings.TrimSpace(fc.StoppedThreshold)
	fc.OpenShiftBaseDomain = strings.TrimSpace(fc.OpenShiftBaseDomain)
	fc.HomeRegion = strings.TrimSpace(fc.HomeRegion)
	fc.Profile = strings.TrimSpace(fc.Profile)
	fc.AuditDSN = strings.TrimSpace(fc.AuditDSN)
	fc.OutputDir = strings.TrimSpace(fc.OutputDir)
	fc.Format = strings.TrimSpace(fc.Format)
}

// Apply copies the values set in fc onto cfg.
func (fc *FileConfig) Apply(cfg *Config) error {
	if fc == nil || cfg == nil {
		return nil
	}

	if fc.DryRun != nil {
		cfg.DryRun = *fc.DryRun
	}
	if fc.UntaggedThreshold != "" {
		d, err := ParseDurationIn(fc.UntaggedThreshold, timeMinute)
		if err != nil {
			return fmt.Errorf("invalid untagged_threshold: %w", err)
		}
		cfg.UntaggedThreshold = d
	}
	if fc.StoppedThreshold != "" {
		d, err := ParseDurationIn(fc.StoppedThreshold, timeDay)
		if err != nil {
			return fmt.Errorf("invalid stopped_threshold: %w", err)
		}
		cfg.StoppedThreshold = d
	}
	if len(fc.PersistentTags) > 0 {
		cfg.PersistentTags = append([]string(nil), fc.PersistentTags...)
	}
	if fc.EKSCleanupEnabled != nil {
		cfg.EKSCleanupEnabled = *fc.EKSCleanupEnabled
	}
	if fc.EKSSkipPattern != nil {
		cfg.EKSSkipPattern = strings.TrimSpace(*fc.EKSSkipPattern)
	}
	if fc.OpenShiftCleanupEnabled != nil {
		cfg.OpenShiftCleanupEnabled = *fc.OpenShiftCleanupEnabled
	}
	if fc.OpenShiftBaseDomain != "" {
		cfg.OpenShiftBaseDomain = fc.OpenShiftBaseDomain
	}
	if fc.VolumeCleanupEnabled != nil {
		cfg.VolumeCleanupEnabled = *fc.VolumeCleanupEnabled
	}
	if len(fc.TargetRegions) > 0 {
		cfg.TargetRegions = append([]string(nil), fc.TargetRegions...)
	}
	if len(fc.ExcludeRegions) > 0 {
		cfg.ExcludeRegions = append([]string(nil), fc.ExcludeRegions...)
	}
	if fc.HomeRegion != "" {
		cfg.HomeRegion = fc.HomeRegion
	}
	if fc.Profile != "" {
		cfg.Profile = fc.Profile
	}
	if fc.APIRateLimit != nil {
		cfg.APIRateLimit = *fc.APIRateLimit
	}
	if fc.MaxAttempts != nil {
		cfg.MaxAttempts = *fc.MaxAttempts
	}
	if fc.AuditDSN != "" {
		cfg.AuditDSN = fc.AuditDSN
	}
	if fc.OutputDir != "" {
		cfg.OutputDir = fc.OutputDir
	}
	if fc.Format != "" {
		cfg.Format = fc.Format
	}

	cfg.Normalize()
	return nil
}

// AutoLoadFile discovers and loads the first available config file.
func AutoLoadFile() (*FileConfig, string, error) {
	candidates := []string{
		DefaultConfigFileYAML,
		DefaultConfigFileYML,
	}

	if homeDir, err := os.UserHomeDir(); err == nil && strings.TrimSpace(homeDir) != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, DefaultConfigFileYAML),
			filepath.Join(homeDir, DefaultConfigFileYML),
		)
	}

	return LoadFirstExistingFile(candidates)
}

// LoadFirstExistingFile loads the first config file that exists in paths.
func LoadFirstExistingFile(paths []string) (*FileConfig, string, error) {
	for _, path := range paths {
		candidate := strings.TrimSpace(path)
		if candidate == "" {
			continue
		}

		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("failed to access config file %q: %w", candidate, err)
		}
		if info.IsDir() {
			return nil, "", fmt.Errorf("config path %q is a directory, expected a file", candidate)
		}

		cfg, err := LoadFile(candidate)
		if err != nil {
			return nil, "", err
		}
		return cfg, candidate, nil
	}

	return nil, "", nil
}

// LoadFile loads config values from a specific YAML file path.
func LoadFile(path string) (*FileConfig, error) {
	filename := strings.TrimSpace(path)
	if filename == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", filename, err)
	}

	cfg := &FileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", filename, err)
	}

	cfg.Normalize()
	return cfg, nil
}

func normalizeList(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	normalized := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
