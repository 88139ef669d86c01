package models

import "time"

// Report is the complete output of one run.
type Report struct {
	Tool         string             `json:"tool"`
	Version      string             `json:"version"`
	Timestamp    string             `json:"timestamp"`
	Metadata     Metadata           `json:"metadata"`
	DryRun       bool               `json:"dry_run"`
	TotalActions int                `json:"total_actions"`
	ByAction     map[ActionKind]int `json:"by_action"`
	Actions      []CleanupAction    `json:"actions"`
	Regions      []RegionSummary    `json:"regions"`
	VolumeAges   *VolumeAgeStats    `json:"volume_ages,omitempty"`
}

// Metadata contains run info.
type Metadata struct {
	GeneratedAt    time.Time `json:"generated_at"`
	Duration       string    `json:"duration"`
	RegionsScanned int       `json:"regions_scanned"`
	Version        string    `json:"version"`
}

// RegionSummary holds per-region scan statistics.
type RegionSummary struct {
	Region             string         `json:"region"`
	InstancesScanned   int            `json:"instances_scanned"`
	InstancesProtected int            `json:"instances_protected"`
	VolumesScanned     int            `json:"volumes_scanned"`
	VolumesProtected   int            `json:"volumes_protected"`
	ProtectionReasons  map[string]int `json:"protection_reasons,omitempty"`
	Actions            int            `json:"actions"`
	Succeeded          int            `json:"succeeded"`
	Failed             int            `json:"failed"`
	Error              string         `json:"error,omitempty"`
}

// VolumeAgeStats summarizes the age in days of volumes selected for deletion.
type VolumeAgeStats struct {
	Min float64 `json:"min_days"`
	Max float64 `json:"max_days"`
	Avg float64 `json:"avg_days"`
}

// Summarize fills the aggregate fields of r from its actions.
func (r *Report) Summarize() {
	r.TotalActions = len(r.Actions)
	r.ByAction = make(map[ActionKind]int)
	r.VolumeAges = nil

	var ages []float64
	for _, a := range r.Actions {
		r.ByAction[a.Action]++
		if a.Action == ActionDeleteVolume {
			ages = append(ages, a.DaysOverdue)
		}
	}
	if len(ages) == 0 {
		return
	}

	stats := &VolumeAgeStats{Min: ages[0], Max: ages[0]}
	var sum float64
	for _, age := range ages {
		if age < stats.Min {
			stats.Min = age
		}
		if age > stats.Max {
			stats.Max = age
		}
		sum += age
	}
	stats.Avg = sum / float64(len(ages))
	r.VolumeAges = stats
}
