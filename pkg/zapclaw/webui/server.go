// Package webui implements the ZapClaw admin surface: a small JSON API plus
// a static dashboard, protected by optional basic auth.
package webui

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AssistantAPI defines the interface the admin UI uses to reach the
// assistant. This avoids a direct dependency on the bot package.
type AssistantAPI interface {
	// Settings returns the current system prompt and temperature.
	Settings() (prompt string, temperature float64, err error)

	// UpdateSettings replaces the system prompt and temperature.
	UpdateSettings(prompt string, temperature float64) error

	// TestCompletion runs one completion without touching history.
	TestCompletion(ctx context.Context, message string) (string, error)

	// Diagnostics returns runtime configuration for display.
	Diagnostics() map[string]any
}

// TransportStatus exposes the WhatsApp pairing state to the admin UI.
type TransportStatus interface {
	// IsConnected reports whether the transport is linked and online.
	IsConnected() bool

	// LatestQR returns the pending QR code string, or "" when none.
	LatestQR() string
}

// SettingsInfo is the settings payload exchanged with the UI.
type SettingsInfo struct {
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
}

// Config holds web UI configuration.
type Config struct {
	// Addr is the listen address (e.g. ":3000").
	Addr string

	// AdminUser and AdminPass enable basic auth when both are set.
	// AdminPass may be a bcrypt hash (starts with "$2").
	AdminUser string
	AdminPass string

	// StaticDir serves the dashboard files under /admin/ when set.
	StaticDir string
}

// Server is the admin HTTP server.
type Server struct {
	cfg       Config
	api       AssistantAPI
	transport TransportStatus
	logger    *slog.Logger
	httpSrv   *http.Server
}

// New creates the admin server.
func New(cfg Config, api AssistantAPI, transport TransportStatus, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		api:       api,
		transport: transport,
		logger:    logger.With("component", "webui"),
	}
}

// Handler builds the route table. Exposed separately so tests can drive it
// with httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/settings", s.authMiddleware(s.handleSettings))
	mux.HandleFunc("/api/diagnostics", s.authMiddleware(s.handleDiagnostics))
	mux.HandleFunc("/api/test", s.authMiddleware(s.handleTest))

	mux.HandleFunc("/admin/qr.png", s.authMiddleware(s.handleQRPNG))
	mux.HandleFunc("/admin/status", s.authMiddleware(s.handleStatus))

	if s.cfg.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(s.cfg.StaticDir))
		mux.Handle("/admin/", s.authMiddleware(
			http.StripPrefix("/admin/", fileServer).ServeHTTP))
	}

	return mux
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// authMiddleware enforces basic auth when credentials are configured.
// Plaintext passwords compare in constant time; values starting with "$2"
// are treated as bcrypt hashes.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.AdminUser == "" || s.cfg.AdminPass == "" {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !s.checkCredentials(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="zapclaw admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) checkCredentials(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AdminUser)) == 1

	var passOK bool
	if strings.HasPrefix(s.cfg.AdminPass, "$2") {
		passOK = bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPass), []byte(pass)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.AdminPass)) == 1
	}

	return userOK && passOK
}
