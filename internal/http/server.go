// Package http exposes the ledger over a JSON API. Read endpoints serve
// from the owner's live session snapshot; write endpoints go through the
// balance ledger and invalidate that owner's cached summaries.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"gastos/internal/cache"
	"gastos/internal/log"
	"gastos/internal/session"
)

const (
	summaryCacheSize = 256
	summaryCacheTTL  = 30 * time.Second
	cleanupInterval  = 5 * time.Minute
)

type Server struct {
	httpServer *http.Server
	sessions   *session.Manager
	logger     *log.Logger

	summaryCache *cache.LRUCache[[]byte]
	started      time.Time
	stopCleanup  chan struct{}
	cleanupDone  chan struct{}
}

func NewServer(addr string, sessions *session.Manager, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		sessions:     sessions,
		logger:       logger.WithComponent(log.ComponentHTTP),
		summaryCache: cache.NewLRUCache[[]byte](summaryCacheSize, summaryCacheTTL),
		started:      time.Now(),
		stopCleanup:  make(chan struct{}),
		cleanupDone:  make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withRequestLog(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("GET /api/{owner}/balance", s.handleGetBalance)
	mux.HandleFunc("POST /api/{owner}/deposits", s.handleCreateDeposit)
	mux.HandleFunc("GET /api/{owner}/deposits", s.handleListDeposits)
	mux.HandleFunc("POST /api/{owner}/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/{owner}/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/{owner}/categories", s.handleCategoryBreakdown)
	mux.HandleFunc("GET /api/{owner}/chart", s.handleChart)

	go s.cacheCleanup()
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", log.FieldPath, s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the listener and the cache cleanup routine.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) cacheCleanup() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.summaryCache.CleanExpired(); removed > 0 {
				s.logger.Debug("Summary cache pruned", "removed", removed)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.InfoContext(r.Context(), "Request handled",
			log.FieldRequestID, requestID,
			log.FieldClientIP, r.RemoteAddr,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
