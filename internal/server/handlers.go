package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/redlabs-sc/document-converter-service/internal/converter"
	"github.com/redlabs-sc/document-converter-service/internal/metrics"
	"go.uber.org/zap"
)

// multipartOverhead covers boundaries and part headers on top of the
// configured payload limit.
const multipartOverhead = 1 << 20

type batchResult struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Document Converter API",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"workers": s.svc.Workers(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"input_formats": s.cfg.InputFormats,
		"output_format": s.cfg.OutputFormat,
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxFileSizeBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No filename provided")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
			return
		}
		s.logger.Error("Error reading upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if int64(len(content)) > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
		return
	}
	metrics.ObserveUpload(int64(len(content)))

	// Client disconnection must not interrupt an in-flight subprocess;
	// the conversion runs to completion or timeout regardless.
	res := s.svc.Convert(context.WithoutCancel(r.Context()), content, header.Filename)

	if !res.Success {
		writeError(w, http.StatusBadRequest, res.Message)
		return
	}

	artifact, err := os.Open(res.ArtifactPath)
	if err != nil {
		s.logger.Error("Error opening artifact",
			zap.String("path", res.ArtifactPath),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Conversion failed - no output file")
		return
	}
	// Release only after the artifact has been fully streamed
	defer s.svc.ReleaseArtifact(res.ArtifactPath)
	defer artifact.Close()

	stem := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	outputName := fmt.Sprintf("%s.%s", stem, s.cfg.OutputFormat)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outputName))

	if _, err := io.Copy(w, artifact); err != nil {
		s.logger.Warn("Error streaming artifact",
			zap.String("path", res.ArtifactPath),
			zap.Error(err))
	}
}

func (s *Server) handleConvertBatch(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxFileSizeBytes()
	batchLimit := int64(s.cfg.MaxBatchFiles())
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*batchLimit+multipartOverhead)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	}
	if len(headers) > s.cfg.MaxBatchFiles() {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Too many files. Maximum: %d", s.cfg.MaxBatchFiles()))
		return
	}

	results := make([]batchResult, 0, len(headers))
	files := make([]converter.File, 0, len(headers))

	for _, header := range headers {
		if header.Filename == "" {
			results = append(results, batchResult{
				Filename: "unknown",
				Success:  false,
				Message:  "No filename provided",
			})
			continue
		}
		if header.Size > maxBytes {
			results = append(results, batchResult{
				Filename: header.Filename,
				Success:  false,
				Message:  s.tooLargeMessage(),
			})
			continue
		}

		f, err := header.Open()
		if err != nil {
			results = append(results, batchResult{
				Filename: header.Filename,
				Success:  false,
				Message:  "Conversion failed: unreadable upload",
			})
			continue
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			results = append(results, batchResult{
				Filename: header.Filename,
				Success:  false,
				Message:  "Conversion failed: unreadable upload",
			})
			continue
		}

		metrics.ObserveUpload(int64(len(content)))
		files = append(files, converter.File{Filename: header.Filename, Content: content})
	}

	items, err := s.svc.ConvertBatch(context.WithoutCancel(r.Context()), files)
	if err != nil {
		if errors.Is(err, converter.ErrTooManyFiles) {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Too many files. Maximum: %d", s.cfg.MaxBatchFiles()))
			return
		}
		s.logger.Error("Batch conversion error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	for _, item := range items {
		// The batch endpoint returns statuses, not bytes, so artifacts
		// are released right away
		if item.Result.ArtifactPath != "" {
			s.svc.ReleaseArtifact(item.Result.ArtifactPath)
		}
		results = append(results, batchResult{
			Filename: item.Filename,
			Success:  item.Result.Success,
			Message:  item.Result.Message,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("File too large. Maximum size: %dMB", s.cfg.MaxFileSizeMB)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
