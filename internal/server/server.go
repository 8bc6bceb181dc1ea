// Package server is the HTTP surface over the conversion pipeline:
// multipart uploads in, converted artifacts (or JSON errors) out.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redlabs-sc/document-converter-service/config"
	"github.com/redlabs-sc/document-converter-service/internal/converter"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Server struct {
	cfg    *config.Config
	svc    *converter.Service
	logger *zap.Logger
	http   *http.Server
}

func New(cfg *config.Config, svc *converter.Service, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger.With(zap.String("component", "server")),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/formats", s.handleFormats).Methods(http.MethodGet)
	r.HandleFunc("/convert", s.handleConvert).Methods(http.MethodPost)
	r.HandleFunc("/convert/batch", s.handleConvertBatch).Methods(http.MethodPost)

	handler := cors.AllowAll().Handler(s.recoverMiddleware(r))

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: handler,
	}

	return s
}

// Handler exposes the full middleware chain for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// recoverMiddleware turns unanticipated panics into a generic 500 so no
// stack traces or internal paths ever reach the client.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
