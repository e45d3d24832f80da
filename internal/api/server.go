package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matrixise/chain-reader/internal/blockchain"
)

const defaultRequestTimeout = 30 * time.Second

// Reader is the subset of blockchain.Reader served over HTTP
type Reader interface {
	FetchAccountState(ctx context.Context, address string, assets []string) (blockchain.AccountState, error)
	FetchTokenMetadata(ctx context.Context, assets []string) (map[string]blockchain.TokenMetadata, error)
}

// Config holds router configuration
type Config struct {
	// DefaultAssets are used when a request has no assets parameter
	DefaultAssets  []string
	RequestTimeout time.Duration
	Health         http.HandlerFunc
	Logger         *slog.Logger
}

type server struct {
	reader        Reader
	defaultAssets []string
	logger        *slog.Logger
}

// NewRouter returns the HTTP API backed by reader
func NewRouter(reader Reader, cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	s := &server{
		reader:        reader,
		defaultAssets: cfg.DefaultAssets,
		logger:        cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/accounts/{address}", s.handleAccount)
		r.Get("/tokens", s.handleTokens)
	})

	return r
}

func (s *server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	assets := s.assets(r, true)

	state, err := s.reader.FetchAccountState(r.Context(), address, assets)
	if err != nil {
		s.writeReaderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *server) handleTokens(w http.ResponseWriter, r *http.Request) {
	assets := s.assets(r, false)

	metadata, err := s.reader.FetchTokenMetadata(r.Context(), assets)
	if err != nil {
		s.writeReaderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metadata)
}

// assets reads the comma-separated assets query parameter, falling back to the
// configured tokens. The ether entry is only added for account requests.
func (s *server) assets(r *http.Request, withEther bool) []string {
	if raw := r.URL.Query().Get("assets"); raw != "" {
		return splitAssets(raw)
	}

	assets := make([]string, 0, len(s.defaultAssets)+1)
	assets = append(assets, s.defaultAssets...)
	if withEther {
		assets = append(assets, blockchain.EtherKey)
	}
	return assets
}

func splitAssets(raw string) []string {
	parts := strings.Split(raw, ",")
	assets := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			assets = append(assets, p)
		}
	}
	return assets
}

// statusFor maps a reader error to an HTTP status
func statusFor(err error) int {
	var (
		encodingErr *blockchain.EncodingError
		revertErr   *blockchain.RevertError
	)
	switch {
	case errors.As(err, &encodingErr):
		return http.StatusBadRequest
	case errors.As(err, &revertErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (s *server) writeReaderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Reader request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
	})
}

// requestLogger logs every request through slog
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Microsecond),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
