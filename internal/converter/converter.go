// Package converter orchestrates one conversion end to end: validate the
// input format, stage the payload, run the external tool under the pool
// bound, and map whatever happened into a uniform result. Staged input is
// released on every path; the caller releases the artifact after streaming.
package converter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redlabs-sc/document-converter-service/config"
	"github.com/redlabs-sc/document-converter-service/internal/history"
	"github.com/redlabs-sc/document-converter-service/internal/libreoffice"
	"github.com/redlabs-sc/document-converter-service/internal/metrics"
	"github.com/redlabs-sc/document-converter-service/internal/pool"
	"github.com/redlabs-sc/document-converter-service/internal/staging"
	"go.uber.org/zap"
)

// ErrTooManyFiles rejects a batch wholesale before any item is attempted.
var ErrTooManyFiles = errors.New("too many files")

// Result is the uniform outcome returned to callers. ArtifactPath is set
// only on success; the caller owns releasing it after streaming.
type Result struct {
	Success      bool
	Message      string
	ArtifactPath string
}

// File is one independent input within a batch.
type File struct {
	Filename string
	Content  []byte
}

// BatchItem pairs a batch input with its result.
type BatchItem struct {
	Filename string
	Result   Result
}

// HistoryRecorder persists finished conversion attempts.
type HistoryRecorder interface {
	Record(ctx context.Context, rec history.Record) error
}

// FailureNotifier alerts operators about tool failures and timeouts.
type FailureNotifier interface {
	ConversionFailed(filename, message string)
}

type Service struct {
	cfg      *config.Config
	staging  *staging.Manager
	invoker  *libreoffice.Invoker
	pool     *pool.Pool
	recorder HistoryRecorder
	notifier FailureNotifier
	logger   *zap.Logger
}

func NewService(cfg *config.Config, st *staging.Manager, inv *libreoffice.Invoker, p *pool.Pool, logger *zap.Logger) *Service {
	return &Service{
		cfg:     cfg,
		staging: st,
		invoker: inv,
		pool:    p,
		logger:  logger.With(zap.String("component", "converter")),
	}
}

// WithHistory attaches the optional audit recorder.
func (s *Service) WithHistory(rec HistoryRecorder) *Service {
	s.recorder = rec
	return s
}

// WithNotifier attaches the optional failure notifier.
func (s *Service) WithNotifier(n FailureNotifier) *Service {
	s.notifier = n
	return s
}

// Convert runs one conversion. Format and filename problems fail fast with
// no filesystem side effects; everything after staging guarantees the input
// file is released, whatever the outcome.
func (s *Service) Convert(ctx context.Context, content []byte, filename string) Result {
	startTime := time.Now()
	ext := fileExtension(filename)

	if !s.cfg.SupportsFormat(ext) {
		return s.finish(ctx, filename, ext, startTime, "unsupported_format", false, Result{
			Success: false,
			Message: fmt.Sprintf("Unsupported input format: %s", ext),
		})
	}

	job, err := s.staging.Stage(content, ext)
	if err != nil {
		s.logger.Error("Staging failed",
			zap.String("filename", filename),
			zap.Error(err))
		return s.finish(ctx, filename, ext, startTime, "staging_failure", false, Result{
			Success: false,
			Message: fmt.Sprintf("Conversion failed: %v", err),
		})
	}
	// Unconditional: runs on success, failure, timeout and panic alike
	defer s.staging.ReleaseInput(job.InputPath)

	s.logger.Info("Conversion queued",
		zap.String("job_id", job.ID),
		zap.String("filename", filename),
		zap.String("input_format", ext),
		zap.Int("size", len(content)))

	var outcome libreoffice.Outcome
	if err := s.pool.Submit(ctx, func() {
		outcome = s.invoker.Run(ctx, job)
	}); err != nil {
		return s.finish(ctx, filename, ext, startTime, "io_failure", true, Result{
			Success: false,
			Message: fmt.Sprintf("Conversion failed: %v", err),
		})
	}

	return s.finish(ctx, filename, ext, startTime, outcome.Status.String(),
		outcome.Status == libreoffice.StatusToolFailure || outcome.Status == libreoffice.StatusTimeout,
		mapOutcome(outcome))
}

// ConvertBatch runs independent conversions for each file under the same
// pool bound. The batch is rejected wholesale when it exceeds twice the
// worker count; otherwise one item's failure never aborts its siblings.
func (s *Service) ConvertBatch(ctx context.Context, files []File) ([]BatchItem, error) {
	if limit := s.cfg.MaxBatchFiles(); len(files) > limit {
		return nil, fmt.Errorf("%w: got %d, maximum %d", ErrTooManyFiles, len(files), limit)
	}

	items := make([]BatchItem, len(files))
	var wg sync.WaitGroup

	for i, f := range files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Batch item panicked",
						zap.String("filename", f.Filename),
						zap.Any("panic", r))
					items[i] = BatchItem{
						Filename: f.Filename,
						Result:   Result{Success: false, Message: "Internal server error"},
					}
				}
			}()
			items[i] = BatchItem{
				Filename: f.Filename,
				Result:   s.Convert(ctx, f.Content, f.Filename),
			}
		}(i, f)
	}
	wg.Wait()

	return items, nil
}

// Workers exposes the configured pool size for the health endpoint.
func (s *Service) Workers() int {
	return s.pool.Workers()
}

// ReleaseArtifact removes a produced artifact and its directory once the
// caller has finished streaming it.
func (s *Service) ReleaseArtifact(artifactPath string) {
	s.staging.ReleaseOutput(artifactPath)
}

func (s *Service) finish(ctx context.Context, filename, ext string, startTime time.Time, status string, alert bool, res Result) Result {
	duration := time.Since(startTime)
	metrics.ObserveConversion(status, duration)

	if !res.Success {
		s.logger.Warn("Conversion failed",
			zap.String("filename", filename),
			zap.String("status", status),
			zap.String("message", res.Message),
			zap.Duration("duration", duration))
	}

	if s.recorder != nil {
		rec := history.Record{
			Filename:     filename,
			InputFormat:  ext,
			OutputFormat: s.cfg.OutputFormat,
			Success:      res.Success,
			Message:      res.Message,
			Duration:     duration,
		}
		if err := s.recorder.Record(ctx, rec); err != nil {
			s.logger.Warn("Failed to record conversion history", zap.Error(err))
		}
	}

	if alert && s.notifier != nil {
		go s.notifier.ConversionFailed(filename, res.Message)
	}

	return res
}

func mapOutcome(outcome libreoffice.Outcome) Result {
	switch outcome.Status {
	case libreoffice.StatusSuccess:
		return Result{Success: true, Message: "Conversion successful", ArtifactPath: outcome.ArtifactPath}
	case libreoffice.StatusToolFailure:
		return Result{Success: false, Message: fmt.Sprintf("LibreOffice error: %s", outcome.Detail)}
	case libreoffice.StatusTimeout:
		return Result{Success: false, Message: "Conversion timeout"}
	case libreoffice.StatusNoOutput:
		return Result{Success: false, Message: "No output file generated"}
	default:
		return Result{Success: false, Message: fmt.Sprintf("Conversion failed: %s", outcome.Detail)}
	}
}

func fileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
