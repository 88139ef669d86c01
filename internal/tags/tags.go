// Package tags models a resource's key/value tag set and the well-known keys
// the reclamation policies read from it.
package tags

import (
	"sort"
	"strings"
)

// Well-known tag keys.
const (
	KeyName            = "Name"
	KeyOwner           = "owner"
	KeyBilling         = "iit-billing-tag"
	KeyCreationTime    = "creation-time"
	KeyTTLHours        = "delete-cluster-after-hours"
	KeyStopAfterDays   = "stop-after-days"
	KeyKeep            = "PerconaKeep"
	KeyCirrusCI        = "CIRRUS_CI"
	KeyEKSClusterName  = "aws:eks:cluster-name"
	KeyEKSClusterAlias = "eks:eks-cluster-name"

	// ClusterOwnershipPrefix is the ownership tag key prefix; the suffix is the cluster infra id.
	ClusterOwnershipPrefix = "kubernetes.io/cluster/"
)

// Set is an unordered key/value tag set. Keys are matched exactly.
type Set map[string]string

// FromPairs builds a Set from alternating key/value arguments.
func FromPairs(kv ...string) Set {
	s := make(Set, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		s[kv[i]] = kv[i+1]
	}
	return s
}

// Get returns the value for key and whether it is present.
func (s Set) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// Has reports whether key is present, regardless of value.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Value returns the value for key, or fallback when the key is absent.
func (s Set) Value(key, fallback string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return fallback
}

// Name returns the Name tag or fallback.
func (s Set) Name(fallback string) string {
	return s.Value(KeyName, fallback)
}

// BillingTag returns the raw billing tag value ("" when absent).
func (s Set) BillingTag() string {
	return s[KeyBilling]
}

// HasTTL reports whether the TTL hours tag is present.
func (s Set) HasTTL() bool {
	return s.Has(KeyTTLHours)
}

// HasStopPolicy reports whether the stop-after-days tag is present.
func (s Set) HasStopPolicy() bool {
	return s.Has(KeyStopAfterDays)
}

// KeysWithPrefix returns the keys starting with prefix in sorted order.
func (s Set) KeysWithPrefix(prefix string) []string {
	var keys []string
	for k := range s {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SuffixOf returns the last path segment of the first key with prefix.
func (s Set) SuffixOf(prefix string) string {
	keys := s.KeysWithPrefix(prefix)
	if len(keys) == 0 {
		return ""
	}
	return LastSegment(keys[0])
}

// ClusterName returns the cluster this resource belongs to: the suffix of the
// first ownership key, else the EKS cluster-name tag.
func (s Set) ClusterName() string {
	if name := s.SuffixOf(ClusterOwnershipPrefix); name != "" {
		return name
	}
	return s[KeyEKSClusterName]
}

// EKSClusterName returns the managed cluster name from EKS-specific tags,
// falling back to the ownership key.
func (s Set) EKSClusterName() string {
	if v := s[KeyEKSClusterName]; v != "" {
		return v
	}
	if v := s[KeyEKSClusterAlias]; v != "" {
		return v
	}
	return s.SuffixOf(ClusterOwnershipPrefix)
}

// Clone returns a copy that can be modified without touching s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// LastSegment returns the part of key after the final "/".
func LastSegment(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
