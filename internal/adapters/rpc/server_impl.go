package rpc

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"xmr-escrow/go-backend/internal/platform/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	DefaultRPCAddr         = "127.0.0.1:8080"
	rpcTokenHeader         = "X-Escrow-RPC-Token"
	defaultShutdownTimeout = 5 * time.Second
)

type Server struct {
	httpServer      *http.Server
	router          chi.Router
	service         EscrowService
	logger          *slog.Logger
	initErr         error
	rpcToken        string
	requireRPC      bool
	allowedOrigins  map[string]struct{}
	clientLimiter   *ratelimiter.MapLimiter
	releaseLimiter  *ratelimiter.MapLimiter
	idempotency     *rpcIdempotencyCache
	observer        RequestObserver
	shutdownTimeout time.Duration
}

// NewServerWithService builds the HTTP surface. A token is mandatory unless
// ESCROW_REQUIRE_RPC_TOKEN=false in a non-production ESCROW_ENV.
func NewServerWithService(opts Options, svc EscrowService, logger *slog.Logger) *Server {
	requireRPC := requiresRPCToken()
	rpcToken, err := resolveRPCToken(opts.Token)
	if err != nil {
		return &Server{initErr: err}
	}
	if requireRPC && rpcToken == "" {
		return &Server{
			initErr: errors.New("ESCROW_RPC_TOKEN is required unless ESCROW_REQUIRE_RPC_TOKEN=false or ESCROW_ENV is test/development/local"),
		}
	}
	opts.Token = rpcToken
	return newServerWithService(opts, svc, logger, requireRPC)
}

func newServerWithService(opts Options, svc EscrowService, logger *slog.Logger, requireRPC bool) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultRPCAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	shutdownTimeout := opts.ShutdownGracePeriod
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins[o] = struct{}{}
		}
	}

	s := &Server{
		service:         svc,
		logger:          logger,
		rpcToken:        opts.Token,
		requireRPC:      requireRPC,
		allowedOrigins:  origins,
		clientLimiter:   ratelimiter.New(opts.RequestsPerSecond, opts.RequestBurst, 10*time.Minute),
		releaseLimiter:  ratelimiter.New(opts.ReleasesPerMinute/60, opts.ReleaseBurst, time.Hour),
		idempotency:     newRPCIdempotencyCache(opts.IdempotencyTTL),
		observer:        opts.Observer,
		shutdownTimeout: shutdownTimeout,
	}
	if s.rpcToken == "" && !s.requireRPC {
		logger.Warn("ESCROW_RPC_TOKEN is not set; RPC auth disabled", "component", "rpc")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.HandleFunc("/healthz", s.handleHealth)
	r.HandleFunc("/rpc", s.handleRPC)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}
	s.router = r
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.logger.Info("rpc server listening", "component", "rpc", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.handleHealth(w, r)
}

func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	s.handleRPC(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !s.isAllowedOrigin(origin) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+rpcTokenHeader+", "+rpcIdempotencyHeader)
	return true
}

func (s *Server) isAllowedOrigin(raw string) bool {
	if _, ok := s.allowedOrigins[strings.TrimRight(raw, "/")]; ok {
		return true
	}
	return isLoopbackOrigin(raw)
}

func (s *Server) authorizeRPC(w http.ResponseWriter, r *http.Request) bool {
	if s.rpcToken == "" && !s.requireRPC {
		return true
	}
	token := s.extractRPCToken(r)
	if token == "" || !constantTimeEqual(token, s.rpcToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) extractRPCToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(rpcTokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

func requiresRPCToken() bool {
	if v, ok := parseBoolEnv("ESCROW_REQUIRE_RPC_TOKEN"); ok {
		if !v && !isNonProdEnv() {
			// Fail-closed in production-like environments.
			return true
		}
		return v
	}
	return !isNonProdEnv()
}

func isNonProdEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ESCROW_ENV"))) {
	case "test", "testing", "dev", "development", "local":
		return true
	default:
		return false
	}
}

func isLoopbackOrigin(raw string) bool {
	if raw == "null" {
		allowNull, _ := parseBoolEnv("ESCROW_ALLOW_NULL_ORIGIN")
		return allowNull
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func parseBoolEnv(name string) (bool, bool) {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// resolveRPCToken turns "auto" into a fresh random token, optionally written
// to ESCROW_RPC_TOKEN_FILE for the frontend to pick up.
func resolveRPCToken(configured string) (string, error) {
	token := strings.TrimSpace(configured)
	rotate := strings.EqualFold(token, "auto")
	if !rotate {
		if v, ok := parseBoolEnv("ESCROW_RPC_TOKEN_ROTATE_ON_START"); ok && v {
			rotate = true
		}
	}
	if !rotate {
		return token, nil
	}
	generated, err := generateRPCToken()
	if err != nil {
		return "", err
	}
	if err := persistRPCToken(generated); err != nil {
		return "", err
	}
	return generated, nil
}

func generateRPCToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "rpc_" + hex.EncodeToString(buf), nil
}

func persistRPCToken(token string) error {
	pathValue := strings.TrimSpace(os.Getenv("ESCROW_RPC_TOKEN_FILE"))
	if pathValue == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(pathValue), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pathValue, []byte(token), 0o600)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
