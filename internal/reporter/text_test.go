package reporter

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

func TestWriteTextProducesReadableOutput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()

	var out bytes.Buffer
	if err := writeText(sampleReport(), cfg, &out); err != nil {
		t.Fatalf("writeText failed: %v", err)
	}

	textOutput := out.String()
	assertContains(t, textOutput, "Mode: DRY-RUN")
	assertContains(t, textOutput, "Total actions: 3")
	assertContains(t, textOutput, "  TERMINATE: 1")
	assertContains(t, textOutput, "  TERMINATE_OPENSHIFT_CLUSTER: 1")
	assertContains(t, textOutput, "Volume ages: 7.0-7.0 days (avg: 7.0 days)")
	assertContains(t, textOutput, "! eu-west-1: describe instances: throttled")
	assertContains(t, textOutput, "Instance: i-0abc")
	assertContains(t, textOutput, "  Days Overdue: 0.04")
	assertContains(t, textOutput, "  Owner: alice")
	assertContains(t, textOutput, "  Cluster: demo")
	assertContains(t, textOutput, "Volume: vol-1")

	if strings.Contains(textOutput, "\x1b[") {
		t.Fatalf("expected no ANSI escape sequences for non-TTY output, got %q", textOutput)
	}

	fileOutput, err := os.ReadFile(filepath.Join(cfg.OutputDir, TextFile))
	if err != nil {
		t.Fatalf("failed to read %s: %v", TextFile, err)
	}
	if string(fileOutput) != textOutput {
		t.Fatalf("stdout and %s differ\nstdout:\n%s\nfile:\n%s", TextFile, textOutput, string(fileOutput))
	}
}

func TestWriteTextWithoutOutputDir(t *testing.T) {
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	t.Chdir(dir)

	var out bytes.Buffer
	if err := writeText(&models.Report{}, cfg, &out); err != nil {
		t.Fatalf("writeText failed: %v", err)
	}
	assertContains(t, out.String(), "No actions decided.")
	assertContains(t, out.String(), "Mode: LIVE")

	if _, err := os.Stat(filepath.Join(dir, TextFile)); !os.IsNotExist(err) {
		t.Fatalf("expected no report file without an output dir, got err=%v", err)
	}
}

func TestWriteTextInputValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	report := &models.Report{}
	var out bytes.Buffer

	err := writeText(nil, cfg, &out)
	if err == nil || !strings.Contains(err.Error(), "report is nil") {
		t.Fatalf("expected nil report error, got %v", err)
	}

	err = writeText(report, nil, &out)
	if err == nil || !strings.Contains(err.Error(), "config is nil") {
		t.Fatalf("expected nil config error, got %v", err)
	}

	err = writeText(report, cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "writer is nil") {
		t.Fatalf("expected nil writer error, got %v", err)
	}
}

func TestReporterGenerateFormats(t *testing.T) {
	cases := []struct {
		format  string
		present string
		absent  string
	}{
		{format: FormatText, present: TextFile, absent: JSONFile},
		{format: FormatJSON, present: JSONFile, absent: TextFile},
	}

	for _, tc := range cases {
		t.Run(tc.format, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.OutputDir = t.TempDir()
			cfg.Format = tc.format

			var out bytes.Buffer
			rep := &reporter{config: cfg, out: &out}
			if err := rep.Generate(sampleReport()); err != nil {
				t.Fatalf("Generate failed for %s format: %v", tc.format, err)
			}
			if out.Len() == 0 {
				t.Fatal("expected output on the writer")
			}
			if _, err := os.Stat(filepath.Join(cfg.OutputDir, tc.present)); err != nil {
				t.Fatalf("expected %s output: %v", tc.present, err)
			}
			if _, err := os.Stat(filepath.Join(cfg.OutputDir, tc.absent)); !os.IsNotExist(err) {
				t.Fatalf("expected %s to be absent, got err=%v", tc.absent, err)
			}
		})
	}
}

func TestNewWritesToStdout(t *testing.T) {
	cfg := config.DefaultConfig()

	oldStdout := os.Stdout
	readPipe, writePipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create stdout pipe: %v", err)
	}
	os.Stdout = writePipe
	t.Cleanup(func() {
		os.Stdout = oldStdout
		_ = readPipe.Close()
	})

	rep := New(cfg)
	if err := rep.Generate(&models.Report{}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := writePipe.Close(); err != nil {
		t.Fatalf("failed to close write pipe: %v", err)
	}
	data, err := io.ReadAll(readPipe)
	if err != nil {
		t.Fatalf("failed to read generated output: %v", err)
	}
	assertContains(t, string(data), "Cloudspectre Cleanup Report")
}

func assertContains(t *testing.T, output string, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}
