package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/snipvault/internal/ops"
)

// NewServer creates and configures the HTTP server for the snipvault JSON API.
func NewServer(v *ops.Vault, bind string, port int) *http.Server {
	h := &Handlers{vault: v, log: v.Log}

	mux := http.NewServeMux()

	// Routes the original front end calls
	mux.HandleFunc("POST /upload-pdf", h.HandleUploadDocument)
	mux.HandleFunc("POST /save-edited-pdf", h.HandleSaveEdited)
	mux.HandleFunc("GET /get-pdfs", h.HandleListDocuments)
	mux.HandleFunc("GET /uploads/{path...}", h.HandleServeFile)
	mux.HandleFunc("POST /start-snip", h.HandleAcquireCapture)
	mux.HandleFunc("GET /get-folders", h.HandleListFolders)
	mux.HandleFunc("POST /upload-folder", h.HandleUploadFolder)

	mux.HandleFunc("GET /api/folders", h.HandleListFolders)
	mux.HandleFunc("POST /api/folders", h.HandleCreateFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", h.HandleDeleteFolder)

	mux.HandleFunc("GET /api/captures", h.HandleListCaptures)
	mux.HandleFunc("POST /api/captures", h.HandleAcquireCapture)
	mux.HandleFunc("GET /api/captures/{id}", h.HandleGetCapture)
	mux.HandleFunc("DELETE /api/captures/{id}", h.HandleDeleteCapture)

	mux.HandleFunc("GET /api/derived", h.HandleListDerived)
	mux.HandleFunc("POST /api/derived", h.HandleCreateDerived)
	mux.HandleFunc("GET /api/derived/{id}", h.HandleGetDerived)
	mux.HandleFunc("GET /api/derived/{id}/rendered", h.HandleFetchRendered)

	mux.HandleFunc("GET /api/annotations", h.HandleListAnnotations)
	mux.HandleFunc("POST /api/annotations", h.HandleAppendAnnotation)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("snipvault API listening", slog.String("addr", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		// Capture requests may be polling; give them their full deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
