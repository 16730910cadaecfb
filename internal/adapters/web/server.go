package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/spear-it/spearhead/internal/adapters/reporting"
	"github.com/spear-it/spearhead/internal/core/ports"
)

// Server exposes the admin HTTP API and the websocket event stream.
type Server struct {
	Addr        string
	Repo        ports.Repository
	AuthService ports.AuthService
	WSManager   *WSManager
	PDFExporter *reporting.PDFExporter
	srv         *http.Server
}

// NewServer creates a new admin API server.
func NewServer(addr string, repo ports.Repository, authService ports.AuthService, pdfExporter *reporting.PDFExporter) *Server {
	return &Server{
		Addr:        addr,
		Repo:        repo,
		AuthService: authService,
		WSManager:   NewWSManager(),
		PDFExporter: pdfExporter,
	}
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	handler := SetupRoutes(s)

	// Instrument with OpenTelemetry
	instrumentedHandler := otelhttp.NewHandler(handler, "spearhead-admin")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown implementation
	go func() {
		<-ctx.Done()
		log.Println("Admin API shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin API shutdown error: %v", err)
		}
	}()

	log.Printf("Admin API listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
