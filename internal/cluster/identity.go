// Package cluster works out which cluster, if any, an instance belongs to and
// maps cluster names to the infra id that tags the cluster's network footprint.
package cluster

import (
	"strings"

	"github.com/ppiankov/cloudspectre/internal/tags"
)

// Tag keys and values that identify cluster-style deployments.
const (
	KeyRedHatClusterType = "red-hat-clustertype"
	KeyRedHatManaged     = "red-hat-managed"
	CAPAPrefix           = "sigs.k8s.io/cluster-api-provider-aws/cluster/"
	OpenShiftKeyPrefix   = "openshift-"
	OpenShiftBilling     = "openshift"
)

// Family is the kind of cluster a resource belongs to.
type Family int

const (
	FamilyNone Family = iota
	// FamilyManaged clusters have a provider-managed control plane (EKS).
	FamilyManaged
	// FamilyNetworkFootprint clusters own a whole VPC worth of resources.
	FamilyNetworkFootprint
)

func (f Family) String() string {
	switch f {
	case FamilyManaged:
		return "managed"
	case FamilyNetworkFootprint:
		return "network-footprint"
	default:
		return "none"
	}
}

// Identity is the outcome of classifying a tag set.
type Identity struct {
	Family      Family
	ClusterName string
	InfraID     string
	// NeedsVerification marks a footprint guess derived from the Name tag
	// alone. It is trusted only once an infra id is found for it.
	NeedsVerification bool
	// Source names the heuristic that matched.
	Source string
}

// IsFootprint reports whether the identity is a verified footprint cluster.
func (id Identity) IsFootprint() bool {
	return id.Family == FamilyNetworkFootprint && !id.NeedsVerification
}

// Classify runs the tag-only heuristics in priority order.
func Classify(set tags.Set) Identity {
	ownedInfra := set.SuffixOf(tags.ClusterOwnershipPrefix)

	if set[KeyRedHatClusterType] == "rosa" && ownedInfra != "" {
		return footprintFromInfra(ownedInfra, "rosa")
	}
	if set[KeyRedHatManaged] == "true" && ownedInfra != "" {
		return footprintFromInfra(ownedInfra, "red-hat-managed")
	}
	if infra := set.SuffixOf(CAPAPrefix); infra != "" {
		return footprintFromInfra(infra, "cluster-api")
	}

	if name := set.ClusterName(); name != "" {
		if set.BillingTag() == OpenShiftBilling || len(set.KeysWithPrefix(OpenShiftKeyPrefix)) > 0 {
			return Identity{Family: FamilyNetworkFootprint, ClusterName: name, Source: "openshift-tags"}
		}
		return Identity{Family: FamilyManaged, ClusterName: name, Source: "cluster-tag"}
	}

	if name := ClusterFromInstanceName(set.Name("")); name != "" {
		return Identity{
			Family:            FamilyNetworkFootprint,
			ClusterName:       name,
			NeedsVerification: true,
			Source:            "name-pattern",
		}
	}

	return Identity{Family: FamilyNone}
}

func footprintFromInfra(infraID, source string) Identity {
	return Identity{
		Family:      FamilyNetworkFootprint,
		ClusterName: NameFromInfraID(infraID),
		InfraID:     infraID,
		Source:      source,
	}
}

// ClusterFromInstanceName extracts <cluster> from names shaped like
// <cluster>-<rand>-master-<n>. Only names containing "-master-" or
// "openshift" are considered.
func ClusterFromInstanceName(name string) string {
	if !strings.Contains(name, "-master-") && !strings.Contains(strings.ToLower(name), "openshift") {
		return ""
	}
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return ""
	}
	for i, part := range parts {
		if part == "master" && i > 0 {
			return strings.Join(parts[:i-1], "-")
		}
	}
	return ""
}

// NameFromInfraID drops the random suffix of an infra id:
// jvp-rosa1-qmdkk becomes jvp-rosa1.
func NameFromInfraID(infraID string) string {
	i := strings.LastIndex(infraID, "-")
	if i <= 0 {
		return infraID
	}
	return infraID[:i]
}
