package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

// JSONFile is the report file name inside the output directory.
const JSONFile = "report.json"

// WriteJSON writes report to stdout and, when configured, to report.json.
func WriteJSON(report *models.Report, cfg *config.Config) error {
	return writeJSON(report, cfg, os.Stdout)
}

func writeJSON(report *models.Report, cfg *config.Config, out io.Writer) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	data = append(data, '\n')

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		outputPath := filepath.Join(cfg.OutputDir, JSONFile)
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", JSONFile, err)
		}
		slog.Info("report written", slog.String("path", outputPath))
	}

	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON report to output: %w", err)
	}
	return nil
}
