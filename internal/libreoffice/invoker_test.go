package libreoffice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redlabs-sc/document-converter-service/internal/staging"
	"github.com/redlabs-sc/document-converter-service/tests/testutil"
	"go.uber.org/zap"
)

func stageTestJob(t *testing.T) (*staging.Manager, *staging.Job) {
	t.Helper()
	m, err := staging.NewManager(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	job, err := m.Stage([]byte("hello"), "txt")
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	return m, job
}

func TestRunSuccess(t *testing.T) {
	m, job := stageTestJob(t)
	binary := testutil.WriteFakeSoffice(t, testutil.SofficeOK)
	inv := NewInvoker(binary, "pdf", 10*time.Second, m, zap.NewNop())

	outcome := inv.Run(context.Background(), job)

	if outcome.Status != StatusSuccess {
		t.Fatalf("Run() status = %s (detail: %q), expected success", outcome.Status, outcome.Detail)
	}
	if !strings.HasSuffix(outcome.ArtifactPath, ".pdf") {
		t.Errorf("ArtifactPath = %s, expected a .pdf path", outcome.ArtifactPath)
	}
}

func TestRunToolFailureCarriesStderr(t *testing.T) {
	m, job := stageTestJob(t)
	binary := testutil.WriteFakeSoffice(t, testutil.SofficeDiskFull)
	inv := NewInvoker(binary, "pdf", 10*time.Second, m, zap.NewNop())

	outcome := inv.Run(context.Background(), job)

	if outcome.Status != StatusToolFailure {
		t.Fatalf("Run() status = %s, expected tool_failure", outcome.Status)
	}
	if !strings.Contains(outcome.Detail, "disk full") {
		t.Errorf("Detail = %q, expected to contain %q", outcome.Detail, "disk full")
	}
	if outcome.ArtifactPath != "" {
		t.Errorf("ArtifactPath = %q on failure, expected empty", outcome.ArtifactPath)
	}
}

func TestRunNoOutput(t *testing.T) {
	m, job := stageTestJob(t)
	binary := testutil.WriteFakeSoffice(t, testutil.SofficeSilent)
	inv := NewInvoker(binary, "pdf", 10*time.Second, m, zap.NewNop())

	outcome := inv.Run(context.Background(), job)

	if outcome.Status != StatusNoOutput {
		t.Fatalf("Run() status = %s, expected no_output", outcome.Status)
	}
	if outcome.Detail != "No output file generated" {
		t.Errorf("Detail = %q, expected %q", outcome.Detail, "No output file generated")
	}
}

func TestRunTimeout(t *testing.T) {
	m, job := stageTestJob(t)
	binary := testutil.WriteFakeSoffice(t, testutil.SofficeHang)

	timeout := 200 * time.Millisecond
	inv := NewInvoker(binary, "pdf", timeout, m, zap.NewNop())

	startTime := time.Now()
	outcome := inv.Run(context.Background(), job)
	elapsed := time.Since(startTime)

	if outcome.Status != StatusTimeout {
		t.Fatalf("Run() status = %s, expected timeout", outcome.Status)
	}
	if outcome.Status == StatusSuccess {
		t.Error("Timed-out conversion reported success")
	}
	// Must return within a bounded margin of the configured timeout,
	// not wait for the tool to finish on its own
	if elapsed > timeout+2*time.Second {
		t.Errorf("Run() took %v, expected to return close to the %v timeout", elapsed, timeout)
	}
}

func TestRunMissingBinary(t *testing.T) {
	m, job := stageTestJob(t)
	inv := NewInvoker("/nonexistent/soffice", "pdf", time.Second, m, zap.NewNop())

	outcome := inv.Run(context.Background(), job)

	if outcome.Status != StatusToolFailure {
		t.Fatalf("Run() status = %s, expected tool_failure", outcome.Status)
	}
	if outcome.Detail == "" {
		t.Error("Detail is empty for a missing binary")
	}
}

func TestResolveBinaryPrefersConfigured(t *testing.T) {
	if got := ResolveBinary("/custom/soffice"); got != "/custom/soffice" {
		t.Errorf("ResolveBinary() = %s, expected configured path", got)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusSuccess, "success"},
		{StatusToolFailure, "tool_failure"},
		{StatusTimeout, "timeout"},
		{StatusNoOutput, "no_output"},
		{StatusIOFailure, "io_failure"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("Status(%d).String() = %q, expected %q", tt.status, got, tt.expected)
		}
	}
}
