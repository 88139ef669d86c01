package config

import (
	"path"
	"strings"
)

// Normalize trims region lists and removes empty values.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.TargetRegions = normalizePatterns(c.TargetRegions)
	c.ExcludeRegions = normalizePatterns(c.ExcludeRegions)
	c.PersistentTags = normalizeList(c.PersistentTags)
	if len(c.TargetRegions) == 1 && c.TargetRegions[0] == "all" {
		c.TargetRegions = []string{}
	}
}

// ParseRegionList splits a comma separated region list. "all" or "" selects every region.
func ParseRegionList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		return []string{}
	}
	return normalizePatterns(strings.Split(trimmed, ","))
}

// RegionSelected reports whether region passes the target list and exclude patterns.
func (c *Config) RegionSelected(region string) bool {
	if c == nil {
		return true
	}
	value := normalizePattern(region)
	if value == "" {
		return false
	}

	if len(c.TargetRegions) > 0 {
		found := false
		for _, target := range c.TargetRegions {
			if normalizePattern(target) == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, pattern := range c.ExcludeRegions {
		if patternMatches(pattern, value) {
			return false
		}
	}
	return true
}

// FilterRegions returns the selected regions, keeping input order.
func (c *Config) FilterRegions(all []string) []string {
	selected := make([]string, 0, len(all))
	for _, region := range all {
		if c.RegionSelected(region) {
			selected = append(selected, region)
		}
	}
	return selected
}

func normalizePatterns(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	normalized := make([]string, 0, len(values))
	for _, pattern := range values {
		p := normalizePattern(pattern)
		if p == "" {
			continue
		}
		normalized = append(normalized, p)
	}
	return normalized
}

func normalizePattern(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func validPattern(pattern string) bool {
	_, err := path.Match(normalizePattern(pattern), "")
	return err == nil
}

func patternMatches(pattern, value string) bool {
	normalizedPattern := normalizePattern(pattern)
	normalizedValue := normalizePattern(value)
	if normalizedPattern == "" || normalizedValue == "" {
		return false
	}

	// Invalid glob patterns are treated as exact matches.
	matched, err := path.Match(normalizedPattern, normalizedValue)
	if err == nil {
		return matched
	}
	return normalizedPattern == normalizedValue
}
