package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/redlabs-sc/document-converter-service/config"
	"github.com/redlabs-sc/document-converter-service/internal/converter"
	"github.com/redlabs-sc/document-converter-service/internal/libreoffice"
	"github.com/redlabs-sc/document-converter-service/internal/pool"
	"github.com/redlabs-sc/document-converter-service/internal/staging"
	"github.com/redlabs-sc/document-converter-service/tests/testutil"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, script string, workers int) (*Server, string) {
	t.Helper()

	cfg := &config.Config{
		InputFormats:      []string{"txt", "docx"},
		OutputFormat:      "pdf",
		ConvertWorkers:    workers,
		MaxFileSizeMB:     1,
		ConvertTimeoutSec: 10,
		Host:              "127.0.0.1",
		Port:              0,
	}

	root := t.TempDir()
	st, err := staging.NewManager(root, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	binary := testutil.WriteFakeSoffice(t, script)
	inv := libreoffice.NewInvoker(binary, cfg.OutputFormat, cfg.ConvertTimeout(), st, zap.NewNop())

	p := pool.New(cfg.ConvertWorkers, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	p.Start(ctx)

	svc := converter.NewService(cfg, st, inv, p, zap.NewNop())
	return New(cfg, svc, zap.NewNop()), root
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile() error: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	return body, w.FormDataContentType()
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("Response is not JSON: %v (body: %s)", err, rec.Body.String())
	}
	return m
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testutil.SofficeOK, 3)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, expected 200", rec.Code)
	}
	m := decodeJSON(t, rec)
	if m["status"] != "healthy" {
		t.Errorf("status = %v, expected healthy", m["status"])
	}
	if m["workers"] != float64(3) {
		t.Errorf("workers = %v, expected 3", m["workers"])
	}
}

func TestFormatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testutil.SofficeOK, 2)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /formats = %d, expected 200", rec.Code)
	}
	m := decodeJSON(t, rec)
	if m["output_format"] != "pdf" {
		t.Errorf("output_format = %v, expected pdf", m["output_format"])
	}
	formats, ok := m["input_formats"].([]interface{})
	if !ok || len(formats) != 2 {
		t.Errorf("input_formats = %v, expected two entries", m["input_formats"])
	}
}

func TestConvertSuccessStreamsAttachment(t *testing.T) {
	srv, root := newTestServer(t, testutil.SofficeOK, 2)

	body, contentType := multipartBody(t, "file", map[string][]byte{"report.txt": []byte("hello")})
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /convert = %d, expected 200 (body: %s)", rec.Code, rec.Body.String())
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "report.pdf") {
		t.Errorf("Content-Disposition = %q, expected attachment report.pdf", disposition)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("Response body does not look like a PDF: %q", rec.Body.String())
	}

	// All staged state must be gone once the response has been written
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Staging root has %d leftover entries after streaming", len(entries))
	}
}

func TestConvertUnsupportedFormat(t *testing.T) {
	srv, _ := newTestServer(t, testutil.SofficeOK, 2)

	body, contentType := multipartBody(t, "file", map[string][]byte{"virus.exe": []byte("MZ")})
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /convert = %d, expected 400", rec.Code)
	}
	m := decodeJSON(t, rec)
	if detail, _ := m["detail"].(string); !strings.Contains(detail, "Unsupported input format") {
		t.Errorf("detail = %v, expected unsupported-format message", m["detail"])
	}
}

func TestConvertMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, testutil.SofficeOK, 2)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	w.WriteField("file", "not an upload")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /convert without a file part = %d, expected 400", rec.Code)
	}
}

func TestConvertPayloadTooLarge(t *testing.T) {
	srv, root := newTestServer(t, testutil.SofficeOK, 2)

	// 1MB limit in the test config; this payload is over it but under the
	// multipart reader slack, so the explicit size check must catch it
	payload := bytes.Repeat([]byte("a"), int(1.5*1024*1024))
	body, contentType := multipartBody(t, "file", map[string][]byte{"big.txt": payload})
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("POST /convert oversize = %d, expected 413", rec.Code)
	}

	// Rejected before the orchestrator: nothing staged
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Oversize upload staged %d entries, expected 0", len(entries))
	}
}

func TestConvertToolFailureReturnsDetail(t *testing.T) {
	srv, _ := newTestServer(t, testutil.SofficeDiskFull, 2)

	body, contentType := multipartBody(t, "file", map[string][]byte{"report.txt": []byte("hello")})
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /convert = %d, expected 400", rec.Code)
	}
	m := decodeJSON(t, rec)
	if detail, _ := m["detail"].(string); !strings.Contains(detail, "disk full") {
		t.Errorf("detail = %v, expected to contain stderr text", m["detail"])
	}
}

func TestBatchTooManyFiles(t *testing.T) {
	const workers = 2
	srv, root := newTestServer(t, testutil.SofficeOK, workers)

	files := make(map[string][]byte)
	for i := 0; i < workers*2+1; i++ {
		files[strings.Repeat("a", i+1)+".txt"] = []byte("hello")
	}
	body, contentType := multipartBody(t, "files", files)
	req := httptest.NewRequest(http.MethodPost, "/convert/batch", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /convert/batch oversize = %d, expected 400", rec.Code)
	}
	m := decodeJSON(t, rec)
	if detail, _ := m["detail"].(string); !strings.Contains(detail, "Too many files") {
		t.Errorf("detail = %v, expected too-many-files message", m["detail"])
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Rejected batch staged %d entries, expected 0", len(entries))
	}
}

func TestBatchMixedResults(t *testing.T) {
	srv, root := newTestServer(t, testutil.SofficeOK, 2)

	body, contentType := multipartBody(t, "files", map[string][]byte{
		"good.txt":  []byte("hello"),
		"virus.exe": []byte("MZ"),
	})
	req := httptest.NewRequest(http.MethodPost, "/convert/batch", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /convert/batch = %d, expected 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []struct {
			Filename string `json:"filename"`
			Success  bool   `json:"success"`
			Message  string `json:"message"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Got %d results, expected 2", len(resp.Results))
	}

	byName := make(map[string]bool)
	for _, r := range resp.Results {
		byName[r.Filename] = r.Success
	}
	if !byName["good.txt"] {
		t.Error("good.txt did not convert successfully")
	}
	if byName["virus.exe"] {
		t.Error("virus.exe converted despite unsupported format")
	}

	// Batch artifacts are released server-side
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Batch left %d staged entries behind", len(entries))
	}
}

func TestRootBanner(t *testing.T) {
	srv, _ := newTestServer(t, testutil.SofficeOK, 2)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d, expected 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Document Converter API") {
		t.Errorf("Banner body = %q", rec.Body.String())
	}
}
