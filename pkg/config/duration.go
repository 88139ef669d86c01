package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

// ParseDuration parses a duration string with support for days (d) and weeks (w).
// Examples: "30d", "2w", "168h", "30m", "1.5h".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return time.ParseDuration(s)
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", matches[1])
	}
	return scaleDuration(value, unitDuration(matches[2]))
}

// ParseDurationIn parses s like ParseDuration, but a bare integer is read in
// the given unit. It keeps integer env values such as
// UNTAGGED_THRESHOLD_MINUTES=30 working.
func ParseDurationIn(s string, unit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return scaleDuration(n, unit)
	}
	return ParseDuration(s)
}

// scaleDuration returns n units, rejecting values a time.Duration cannot hold.
func scaleDuration(n int, unit time.Duration) (time.Duration, error) {
	limit := int64(math.MaxInt64 / unit)
	if int64(n) > limit || int64(n) < -limit {
		return 0, fmt.Errorf("duration %d x %s out of range", n, unit)
	}
	return time.Duration(n) * unit, nil
}

func unitDuration(unit string) time.Duration {
	switch unit {
	case "s":
		return time.Second
	case "m":
		return time.Minute
	case "h":
		return time.Hour
	case "d":
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}
