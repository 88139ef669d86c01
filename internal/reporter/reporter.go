// Package reporter renders the run summary as JSON or text.
package reporter

import (
	"io"
	"os"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Reporter writes a run report.
type Reporter interface {
	Generate(report *models.Report) error
}

type reporter struct {
	config *config.Config
	out    io.Writer
}

// New creates a reporter writing to stdout, and to cfg.OutputDir when set.
func New(cfg *config.Config) Reporter {
	return &reporter{config: cfg, out: os.Stdout}
}

// Generate renders report in the configured format.
func (r *reporter) Generate(report *models.Report) error {
	if r.config.Format == FormatJSON {
		return writeJSON(report, r.config, r.out)
	}
	return writeText(report, r.config, r.out)
}
