package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsFirstRunCreatesMarker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), appName)

	if !isFirstRunIn(dir) {
		t.Fatalf("expected first run when marker is missing")
	}
	if isFirstRunIn(dir) {
		t.Fatalf("expected marker to suppress the second first run")
	}
}

func TestPrintFirstRunNotice(t *testing.T) {
	cases := []struct {
		name   string
		dryRun bool
		want   string
	}{
		{name: "dry_run", dryRun: true, want: "--dry-run=false"},
		{name: "live", dryRun: false, want: "LIVE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			PrintFirstRunNotice(&buf, tc.dryRun)
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("expected notice to contain %q, got %q", tc.want, buf.String())
			}
		})
	}
}
