// Package libreoffice shells out to a headless LibreOffice instance and
// classifies what came back. The office suite is an opaque collaborator
// reached only through its command-line contract: exit code 0 plus a
// matching file in the output directory means success, anything else is a
// failure.
package libreoffice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redlabs-sc/document-converter-service/internal/staging"
	"go.uber.org/zap"
)

// maxStderrBytes bounds the diagnostic text carried in a failure outcome.
const maxStderrBytes = 4096

// killGracePeriod is how long Wait lingers after the process group is
// killed before abandoning stray pipe readers.
const killGracePeriod = 5 * time.Second

type Status int

const (
	StatusSuccess Status = iota
	StatusToolFailure
	StatusTimeout
	StatusNoOutput
	StatusIOFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusToolFailure:
		return "tool_failure"
	case StatusTimeout:
		return "timeout"
	case StatusNoOutput:
		return "no_output"
	case StatusIOFailure:
		return "io_failure"
	default:
		return "unknown"
	}
}

// Outcome is the immutable result of one external-tool invocation.
type Outcome struct {
	Status       Status
	ArtifactPath string
	Detail       string
}

type Invoker struct {
	binary       string
	outputFormat string
	timeout      time.Duration
	staging      *staging.Manager
	logger       *zap.Logger
}

func NewInvoker(binary, outputFormat string, timeout time.Duration, st *staging.Manager, logger *zap.Logger) *Invoker {
	return &Invoker{
		binary:       binary,
		outputFormat: outputFormat,
		timeout:      timeout,
		staging:      st,
		logger:       logger.With(zap.String("component", "libreoffice")),
	}
}

// ResolveBinary returns the configured soffice path, or probes the common
// install locations when none is configured.
func ResolveBinary(configured string) string {
	if configured != "" {
		return configured
	}
	candidates := []string{
		"/usr/bin/libreoffice",
		"/usr/bin/soffice",
		"/opt/homebrew/bin/soffice",
		"/Applications/LibreOffice.app/Contents/MacOS/soffice",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	// Fall back to PATH lookup
	return "soffice"
}

// Run executes the conversion for a staged job under the invoker's
// wall-clock timeout. On expiry the whole process group is killed so
// LibreOffice's helper processes die with it.
func (inv *Invoker) Run(ctx context.Context, job *staging.Job) Outcome {
	absInput, err := filepath.Abs(job.InputPath)
	if err != nil {
		return Outcome{Status: StatusIOFailure, Detail: fmt.Sprintf("resolve input path: %v", err)}
	}
	absOutDir, err := filepath.Abs(job.OutputDir)
	if err != nil {
		return Outcome{Status: StatusIOFailure, Detail: fmt.Sprintf("resolve output directory: %v", err)}
	}

	// Per-job user profile so concurrent instances don't fight over the
	// default profile lock. Lives next to the output directory and is
	// removed after the run; the janitor catches anything left behind.
	profileDir := absOutDir + "_profile"
	defer os.RemoveAll(profileDir)

	runCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	args := []string{
		"-env:UserInstallation=file://" + profileDir,
		"--headless",
		"--invisible",
		"--nodefault",
		"--nolockcheck",
		"--nologo",
		"--norestore",
		"--convert-to", inv.outputFormat,
		"--outdir", absOutDir,
		absInput,
	}

	cmd := exec.CommandContext(runCtx, inv.binary, args...)

	// Force headless graphics operation: no X display, software rendering
	cmd.Env = append(os.Environ(), "DISPLAY=", "SAL_USE_VCLPLUGIN=svp")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Own process group, killed wholesale on timeout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGracePeriod

	inv.logger.Debug("Executing conversion",
		zap.String("job_id", job.ID),
		zap.String("binary", inv.binary),
		zap.Strings("args", args))

	startTime := time.Now()
	err = cmd.Run()
	duration := time.Since(startTime)

	if runCtx.Err() == context.DeadlineExceeded {
		inv.logger.Warn("Conversion timed out",
			zap.String("job_id", job.ID),
			zap.Duration("timeout", inv.timeout))
		return Outcome{Status: StatusTimeout, Detail: "Conversion timeout"}
	}

	if err != nil {
		detail := truncate(strings.TrimSpace(stderr.String()), maxStderrBytes)
		if detail == "" {
			detail = err.Error()
		}
		inv.logger.Error("Conversion failed",
			zap.String("job_id", job.ID),
			zap.Duration("duration", duration),
			zap.String("stderr", detail))
		return Outcome{Status: StatusToolFailure, Detail: detail}
	}

	artifact, err := inv.staging.LocateOutput(job.OutputDir, inv.outputFormat)
	if errors.Is(err, staging.ErrNoOutput) {
		// The tool can report success while producing nothing
		inv.logger.Warn("Tool exited 0 but produced no artifact",
			zap.String("job_id", job.ID),
			zap.Duration("duration", duration))
		return Outcome{Status: StatusNoOutput, Detail: "No output file generated"}
	}
	if err != nil {
		return Outcome{Status: StatusIOFailure, Detail: err.Error()}
	}

	inv.logger.Info("Conversion completed",
		zap.String("job_id", job.ID),
		zap.String("artifact", artifact),
		zap.Duration("duration", duration))

	return Outcome{Status: StatusSuccess, ArtifactPath: artifact}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
