package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cloudspectre/internal/app"
	"github.com/ppiankov/cloudspectre/internal/awsapi"
	"github.com/ppiankov/cloudspectre/internal/logging"
)

var (
	version    = "0.1.0"
	verbose    bool
	isFirstRun bool
)

// Exit codes for structured error reporting.
const (
	ExitSuccess    = 0
	ExitInternal   = 1
	ExitInvalidArg = 2
	ExitNotFound   = 3
	ExitIncomplete = 4
	ExitNetwork    = 5
	ExitActions    = 6
)

// ActionsError indicates the run completed and decided actions.
type ActionsError struct {
	Count int
}

func (e *ActionsError) Error() string {
	return fmt.Sprintf("%d cleanup actions decided", e.Count)
}

// IncompleteError indicates a teardown pass left resources behind.
type IncompleteError struct {
	InfraID string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("teardown of %s incomplete, run again later", e.InfraID)
}

func main() {
	logging.Init(false)
	isFirstRun = app.IsFirstRun()

	root := &cobra.Command{
		Use:   "cloudspectre",
		Short: "Tag-driven AWS resource reaper",
		Long: `cloudspectre scans an AWS account region by region, decides from
resource tags which instances, volumes and clusters are expired or
abandoned, and stops, terminates or tears them down.

Runs are dry-run unless --dry-run=false is given. Schedule "cloudspectre run"
periodically; cluster teardown converges over repeated runs.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(verbose)
		},
	}

	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.AddCommand(NewRunCmd())
	root.AddCommand(NewTeardownCmd())
	root.AddCommand(NewVersionCmd())

	if err := root.Execute(); err != nil {
		exitCode := classifyError(err)
		var ae *ActionsError
		var ie *IncompleteError
		switch {
		case errors.As(err, &ae):
			slog.Info("cleanup actions decided", slog.Int("count", ae.Count))
		case errors.As(err, &ie):
			slog.Warn("teardown incomplete", slog.String("infra_id", ie.InfraID))
		default:
			slog.Error("command failed", slog.String("error", err.Error()))
		}
		os.Exit(exitCode)
	}
}

func classifyError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ae *ActionsError
	if errors.As(err, &ae) {
		return ExitActions
	}
	var ie *IncompleteError
	if errors.As(err, &ie) {
		return ExitIncomplete
	}

	if errors.Is(err, os.ErrNotExist) {
		return ExitNotFound
	}
	if awsapi.IsCredentialError(err) || awsapi.IsNetworkError(err) {
		return ExitNetwork
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "no such file") {
		return ExitNotFound
	}

	if strings.Contains(msg, "dial") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "network is unreachable") {
		return ExitNetwork
	}

	if strings.Contains(msg, "required") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "must be") ||
		strings.Contains(msg, "expected") {
		return ExitInvalidArg
	}

	return ExitInternal
}
