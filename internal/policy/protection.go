// Package policy decides, per instance or volume, whether it is protected and
// otherwise which reclamation action applies.
package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/ppiankov/cloudspectre/internal/tags"
)

// Name fallbacks used in log lines and actions.
const (
	unnamedInstance = "<UNNAMED>"
	untaggedVolume  = "<UNTAGGED>"
	doNotRemove     = "do not remove"
)

// Decision is the outcome of a protection check.
type Decision struct {
	Protected bool
	Reason    string
}

// Protector evaluates the protection rules. It has no side effects besides logging.
type Protector struct {
	persistent sets.Set[string]
}

// NewProtector creates a protector with the given persistent billing tag values.
func NewProtector(persistentTags []string) *Protector {
	return &Protector{persistent: sets.New(persistentTags...)}
}

// IsPersistent reports whether value is on the persistent allow-list.
func (p *Protector) IsPersistent(value string) bool {
	return value != "" && p.persistent.Has(value)
}

// Instance checks instance protection. A persistent billing tag always
// protects; any other valid billing tag protects only while no TTL or stop
// policy tag asks for reclamation. id is used for logging only.
func (p *Protector) Instance(set tags.Set, id string, now time.Time) Decision {
	billing := set.BillingTag()

	if p.IsPersistent(billing) {
		return p.protect("instance", set.Name(unnamedInstance), id, billing,
			fmt.Sprintf("Persistent billing tag '%s'", billing))
	}

	if tags.HasValidBilling(set, now) && !set.HasTTL() && !set.HasStopPolicy() {
		return p.protect("instance", set.Name(unnamedInstance), id, billing,
			fmt.Sprintf("Valid billing tag '%s'", billing))
	}

	return Decision{}
}

// Volume checks volume protection: the do-not-remove Name marker, the keep
// tag, then the billing tag. TTL tags do not lift volume protection.
func (p *Protector) Volume(set tags.Set, id string, now time.Time) Decision {
	name := set.Name(untaggedVolume)
	billing := set.BillingTag()

	if strings.Contains(strings.ToLower(name), doNotRemove) {
		return p.protect("volume", name, id, billing, "Name contains 'do not remove'")
	}
	if set.Has(tags.KeyKeep) {
		return p.protect("volume", name, id, billing, "Has PerconaKeep tag")
	}
	if p.IsPersistent(billing) {
		return p.protect("volume", name, id, billing,
			fmt.Sprintf("Persistent billing tag '%s'", billing))
	}
	if tags.HasValidBilling(set, now) {
		return p.protect("volume", name, id, billing,
			fmt.Sprintf("Valid billing tag '%s'", billing))
	}
	return Decision{}
}

func (p *Protector) protect(kind, name, id, billing, reason string) Decision {
	if id != "" {
		slog.Debug(kind+" protected",
			slog.String("resource_id", id),
			slog.String("name", name),
			slog.String("protection_reason", reason),
			slog.String("billing_tag", billing),
		)
	}
	return Decision{Protected: true, Reason: reason}
}
