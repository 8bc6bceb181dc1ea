// Package staging owns the per-job filesystem layout: one input file and one
// output directory per conversion, both named after a collision-free job id,
// all under a single configured root.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoOutput is returned by LocateOutput when the external tool exited
// cleanly but produced no artifact. Callers must treat this as a failure
// distinct from a tool-reported error.
var ErrNoOutput = errors.New("no output file generated")

// Job is the staged filesystem state of one in-flight conversion.
type Job struct {
	ID        string
	InputPath string
	OutputDir string
}

type Manager struct {
	root   string
	logger *zap.Logger
}

func NewManager(root string, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Manager{
		root:   root,
		logger: logger.With(zap.String("component", "staging")),
	}, nil
}

// Root returns the staging root directory.
func (m *Manager) Root() string {
	return m.root
}

// Stage writes the payload to a fresh input file and creates the matching
// output directory. On any failure it removes whatever it already created.
func (m *Manager) Stage(content []byte, ext string) (*Job, error) {
	id := uuid.NewString()

	job := &Job{
		ID:        id,
		InputPath: filepath.Join(m.root, fmt.Sprintf("%s_input.%s", id, ext)),
		OutputDir: filepath.Join(m.root, id),
	}

	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if err := os.WriteFile(job.InputPath, content, 0644); err != nil {
		if rmErr := os.Remove(job.OutputDir); rmErr != nil {
			m.logger.Warn("Failed to remove output directory after staging error",
				zap.String("job_id", id),
				zap.Error(rmErr))
		}
		return nil, fmt.Errorf("write input file: %w", err)
	}

	m.logger.Debug("Staged input",
		zap.String("job_id", id),
		zap.String("input_path", job.InputPath),
		zap.Int("size", len(content)))

	return job, nil
}

// LocateOutput scans the output directory for the artifact the external tool
// should have produced. The tool derives the artifact name from the input
// file, so the directory is scanned by extension rather than exact name.
func (m *Manager) LocateOutput(outputDir, format string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, "*."+format))
	if err != nil {
		return "", fmt.Errorf("scan output directory: %w", err)
	}
	if len(matches) == 0 {
		return "", ErrNoOutput
	}
	if len(matches) > 1 {
		m.logger.Warn("Multiple output files found, using first",
			zap.String("output_dir", outputDir),
			zap.Int("count", len(matches)))
	}
	return matches[0], nil
}

// ReleaseInput deletes the staged input file. It runs on every code path
// after the external tool finishes; deletion failure is logged, never
// escalated, so cleanup can't mask the conversion result.
func (m *Manager) ReleaseInput(inputPath string) {
	if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to cleanup input file",
			zap.String("path", inputPath),
			zap.Error(err))
	}
}

// ReleaseOutput deletes the artifact and its containing directory. The
// directory is only removed when empty; leftovers are left for the janitor.
func (m *Manager) ReleaseOutput(artifactPath string) {
	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to cleanup output file",
			zap.String("path", artifactPath),
			zap.Error(err))
	}

	dir := filepath.Dir(artifactPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("Failed to read output directory",
				zap.String("path", dir),
				zap.Error(err))
		}
		return
	}

	if len(entries) > 0 {
		m.logger.Warn("Output directory not empty, leaving for janitor",
			zap.String("path", dir),
			zap.Int("leftover_files", len(entries)))
		return
	}

	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to cleanup output directory",
			zap.String("path", dir),
			zap.Error(err))
	}
}
