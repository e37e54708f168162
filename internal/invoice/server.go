package invoice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
)

// Config holds the HTTP transport settings
type Config struct {
	// RequestTimeout bounds one formatting request. Zero means no limit.
	RequestTimeout time.Duration
	// MaxUploadBytes bounds request bodies
	MaxUploadBytes int64
	// CORSOrigins lists the allowed origins. Empty allows any origin.
	CORSOrigins []string
}

const defaultMaxUploadBytes = 50 << 20

// Server handles HTTP requests for invoice formatting
type Server struct {
	service *Service
	config  Config
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, config Config) *Server {
	return NewServerWithMux(service, config, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, config Config, mux *http.ServeMux) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		service: service,
		config:  config,
		mux:     mux,
	}
	s.registerRoutes()

	s.handler = cors.New(cors.Options{
		AllowedOrigins: config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{headerID, headerShapeWarnings},
		MaxAge:         3600,
	}).Handler(s.mux)

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /format-invoice-info", s.handleFormatInvoice)
	s.mux.HandleFunc("POST /extract-text", s.handleExtractText)

	s.mux.HandleFunc("GET /api/extractions/{id}", s.handleGetExtraction)
	s.mux.HandleFunc("GET /api/extractions", s.handleListExtractions)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// requestContext applies the configured request timeout
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}
