package tags

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// BillingKind classifies the billing tag value.
type BillingKind int

const (
	BillingAbsent BillingKind = iota
	BillingCategory
	BillingTimestamp
)

func (k BillingKind) String() string {
	switch k {
	case BillingCategory:
		return "category"
	case BillingTimestamp:
		return "timestamp"
	default:
		return "absent"
	}
}

// Billing is the classified billing tag.
type Billing struct {
	Value  string
	Kind   BillingKind
	Expiry time.Time
}

// ClassifyBilling classifies the billing tag of s.
// Integers are Unix expiry timestamps, any other non-empty value is a category.
func ClassifyBilling(s Set) Billing {
	value := s.BillingTag()
	if value == "" {
		return Billing{Kind: BillingAbsent}
	}
	if ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		// Out of range timestamps lie beyond any real expiry; they keep
		// granting ownership as categories do.
		if !unixInRange(float64(ts)) {
			return Billing{Value: value, Kind: BillingCategory}
		}
		return Billing{Value: value, Kind: BillingTimestamp, Expiry: time.Unix(ts, 0).UTC()}
	}
	return Billing{Value: value, Kind: BillingCategory}
}

// Valid reports whether the billing tag grants ownership at now.
func (b Billing) Valid(now time.Time) bool {
	switch b.Kind {
	case BillingCategory:
		return true
	case BillingTimestamp:
		return b.Expiry.After(now)
	default:
		return false
	}
}

// HasValidBilling is shorthand for ClassifyBilling(s).Valid(now).
func HasValidBilling(s Set, now time.Time) bool {
	return ClassifyBilling(s).Valid(now)
}

// maxTTLHours is the largest TTL a time.Duration can hold.
const maxTTLHours = float64(math.MaxInt64 / int64(time.Hour))

// maxUnixSeconds bounds parsed timestamps so time.Time arithmetic cannot wrap.
const maxUnixSeconds = 1 << 62

func unixInRange(sec float64) bool {
	return sec > -maxUnixSeconds && sec < maxUnixSeconds
}

// TTL is the parsed creation-time / delete-cluster-after-hours pair.
type TTL struct {
	Created time.Time
	Hours   float64
}

// Expiry returns the instant the TTL runs out.
func (t TTL) Expiry() time.Time {
	return t.Created.Add(time.Duration(t.Hours * float64(time.Hour)))
}

// ParseTTL reads the TTL pair. ok is false when either tag is missing or empty;
// err is set when a tag is present but cannot be parsed.
func (s Set) ParseTTL() (ttl TTL, ok bool, err error) {
	created := strings.TrimSpace(s[KeyCreationTime])
	hours := strings.TrimSpace(s[KeyTTLHours])
	if created == "" || hours == "" {
		return TTL{}, false, nil
	}

	createdAt, err := ParseTimestamp(created)
	if err != nil {
		return TTL{}, false, fmt.Errorf("invalid %s %q: %w", KeyCreationTime, created, err)
	}

	h, err := strconv.ParseFloat(hours, 64)
	if err != nil || math.IsNaN(h) || math.IsInf(h, 0) {
		return TTL{}, false, fmt.Errorf("invalid %s %q", KeyTTLHours, hours)
	}
	if h <= -maxTTLHours || h >= maxTTLHours {
		return TTL{}, false, fmt.Errorf("invalid %s %q: out of range", KeyTTLHours, hours)
	}

	return TTL{Created: createdAt, Hours: h}, true, nil
}

// StopAfterDays reads the stop-after-days tag. ok is false when absent.
func (s Set) StopAfterDays() (days int, ok bool, err error) {
	raw, present := s[KeyStopAfterDays]
	raw = strings.TrimSpace(raw)
	if !present || raw == "" {
		return 0, false, nil
	}
	days, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s %q", KeyStopAfterDays, raw)
	}
	return days, true, nil
}

// ParseTimestamp accepts an integer or fractional Unix timestamp, or RFC 3339.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if sec, err := strconv.ParseInt(value, 10, 64); err == nil {
		if !unixInRange(float64(sec)) {
			return time.Time{}, fmt.Errorf("timestamp out of range")
		}
		return time.Unix(sec, 0).UTC(), nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if !unixInRange(f) {
			return time.Time{}, fmt.Errorf("timestamp out of range")
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
