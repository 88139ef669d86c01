package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

// TextFile is the text report file name inside the output directory.
const TextFile = "report.txt"

const (
	textANSIReset = "\x1b[0m"
	textANSIBold  = "\x1b[1m"
)

// WriteText writes a human-readable report to stdout and, when configured,
// to report.txt.
func WriteText(report *models.Report, cfg *config.Config) error {
	return writeText(report, cfg, os.Stdout)
}

func writeText(report *models.Report, cfg *config.Config, out io.Writer) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if out == nil {
		return fmt.Errorf("writer is nil")
	}

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		plain := renderTextReport(report, false)
		if err := os.WriteFile(filepath.Join(cfg.OutputDir, TextFile), []byte(plain), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", TextFile, err)
		}
	}

	if _, err := io.WriteString(out, renderTextReport(report, supportsANSI(out))); err != nil {
		return fmt.Errorf("failed to write text report to output: %w", err)
	}
	return nil
}

func runMode(dryRun bool) string {
	if dryRun {
		return "DRY-RUN"
	}
	return "LIVE"
}

func renderTextReport(report *models.Report, useANSI bool) string {
	var b strings.Builder

	generatedAt := strings.TrimSpace(report.Timestamp)
	if generatedAt == "" {
		if !report.Metadata.GeneratedAt.IsZero() {
			generatedAt = report.Metadata.GeneratedAt.UTC().Format(time.RFC3339)
		} else {
			generatedAt = "unknown"
		}
	}

	writeTextSectionHeader(&b, "Cloudspectre Cleanup Report", useANSI)
	fmt.Fprintf(&b, "Mode: %s\n", runMode(report.DryRun))
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt)
	if report.Metadata.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", report.Metadata.Duration)
	}
	fmt.Fprintf(&b, "Regions scanned: %d\n", len(report.Regions))
	b.WriteString("\n")

	writeTextSectionHeader(&b, "Summary", useANSI)
	fmt.Fprintf(&b, "Total actions: %d\n", report.TotalActions)
	for _, kind := range sortedActionKinds(report.ByAction) {
		fmt.Fprintf(&b, "  %s: %d\n", kind, report.ByAction[kind])
	}
	if ages := report.VolumeAges; ages != nil {
		fmt.Fprintf(&b, "Volume ages: %.1f-%.1f days (avg: %.1f days)\n", ages.Min, ages.Max, ages.Avg)
	}
	b.WriteString("\n")

	writeTextSectionHeader(&b, "Regions", useANSI)
	if len(report.Regions) == 0 {
		b.WriteString("No regions scanned.\n")
	} else {
		b.WriteString("REGION           INSTANCES PROTECTED VOLUMES PROTECTED ACTIONS OK    FAILED\n")
		b.WriteString("--------------------------------------------------------------------------------\n")
		for _, r := range report.Regions {
			fmt.Fprintf(&b, "%-16s %-9d %-9d %-7d %-9d %-7d %-5d %d\n",
				truncateTextValue(r.Region, 16),
				r.InstancesScanned, r.InstancesProtected,
				r.VolumesScanned, r.VolumesProtected,
				r.Actions, r.Succeeded, r.Failed,
			)
		}
		for _, r := range report.Regions {
			if r.Error != "" {
				fmt.Fprintf(&b, "! %s: %s\n", r.Region, r.Error)
			}
		}
	}
	b.WriteString("\n")

	writeTextSectionHeader(&b, "Actions", useANSI)
	if len(report.Actions) == 0 {
		b.WriteString("No actions decided.\n")
		return b.String()
	}
	b.WriteString("ACTION                       RESOURCE              REGION         DAYS    BILLING\n")
	b.WriteString("--------------------------------------------------------------------------------\n")
	for _, a := range report.Actions {
		fmt.Fprintf(&b, "%-28s %-21s %-14s %-7.2f %s\n",
			truncateTextValue(string(a.Action), 28),
			truncateTextValue(a.TargetID(), 21),
			truncateTextValue(a.Region, 14),
			a.DaysOverdue,
			a.BillingTag,
		)
	}
	b.WriteString("\n")

	writeTextSectionHeader(&b, "Details", useANSI)
	for _, a := range report.Actions {
		if a.ResourceType == models.ResourceVolume {
			fmt.Fprintf(&b, "Volume: %s\n", a.VolumeID)
		} else {
			fmt.Fprintf(&b, "Instance: %s\n", a.InstanceID)
		}
		fmt.Fprintf(&b, "  Name: %s\n", a.Name)
		fmt.Fprintf(&b, "  Action: %s\n", a.Action)
		fmt.Fprintf(&b, "  Days Overdue: %.2f\n", a.DaysOverdue)
		fmt.Fprintf(&b, "  Reason: %s\n", a.Reason)
		fmt.Fprintf(&b, "  Billing Tag: %s\n", a.BillingTag)
		if a.Owner != "" {
			fmt.Fprintf(&b, "  Owner: %s\n", a.Owner)
		}
		if a.ClusterName != "" {
			fmt.Fprintf(&b, "  Cluster: %s\n", a.ClusterName)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeTextSectionHeader(b *strings.Builder, title string, useANSI bool) {
	header := title
	if useANSI {
		header = textANSIBold + title + textANSIReset
	}
	fmt.Fprintf(b, "%s\n", header)
	fmt.Fprintf(b, "%s\n", strings.Repeat("-", len(title)))
}

func supportsANSI(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}

	info, err := file.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}

func sortedActionKinds(counts map[models.ActionKind]int) []models.ActionKind {
	kinds := make([]models.ActionKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func truncateTextValue(value string, width int) string {
	if width <= 0 || len(value) <= width {
		return value
	}
	if width <= 3 {
		return value[:width]
	}
	return value[:width-3] + "..."
}
