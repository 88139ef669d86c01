package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/ppiankov/cloudspectre/internal/tags"
)

// Instance states the policies care about.
const (
	StateRunning   = "running"
	StateStopped   = "stopped"
	StateAvailable = "available"
)

// Instance is the scanner's view of an EC2 instance.
type Instance struct {
	ID               string
	State            string
	LaunchTime       time.Time
	AvailabilityZone string
	Tags             tags.Set
}

// Volume is the scanner's view of an EBS volume.
type Volume struct {
	ID         string
	State      string
	CreateTime time.Time
	SizeGiB    int32
	VolumeType string
	Tags       tags.Set
}

// ActionKind is the reclamation action decided for a resource.
type ActionKind string

const (
	ActionTerminate                 ActionKind = "TERMINATE"
	ActionStop                      ActionKind = "STOP"
	ActionDeleteVolume              ActionKind = "DELETE_VOLUME"
	ActionTerminateCluster          ActionKind = "TERMINATE_CLUSTER"
	ActionTerminateOpenShiftCluster ActionKind = "TERMINATE_OPENSHIFT_CLUSTER"
)

// ResourceType is the kind of resource an action targets.
type ResourceType string

const (
	ResourceInstance ResourceType = "instance"
	ResourceVolume   ResourceType = "volume"
)

// CleanupAction is a single reclamation decision. It is a value: WithRegion
// returns a modified copy and the original is never changed.
type CleanupAction struct {
	InstanceID   string       `json:"instance_id"`
	VolumeID     string       `json:"volume_id,omitempty"`
	ResourceType ResourceType `json:"resource_type"`
	Region       string       `json:"region"`
	Name         string       `json:"name"`
	Action       ActionKind   `json:"action"`
	Reason       string       `json:"reason"`
	DaysOverdue  float64      `json:"days_overdue"`
	BillingTag   string       `json:"billing_tag"`
	ClusterName  string       `json:"cluster_name,omitempty"`
	Owner        string       `json:"owner,omitempty"`
	Rule         string       `json:"rule,omitempty"`
}

// WithRegion returns a copy of a with Region set.
func (a CleanupAction) WithRegion(region string) CleanupAction {
	a.Region = region
	return a
}

// TargetID returns the id of the resource the action acts on.
func (a CleanupAction) TargetID() string {
	if a.ResourceType == ResourceVolume {
		return a.VolumeID
	}
	return a.InstanceID
}

// MarshalJSON rounds days_overdue to two decimals.
func (a CleanupAction) MarshalJSON() ([]byte, error) {
	type plain CleanupAction
	p := plain(a)
	p.DaysOverdue = math.Round(a.DaysOverdue*100) / 100
	return json.Marshal(p)
}
