// Package server hosts dispatch item cost forms over HTTP. Each form is a session holding its own
// conversion engine; clients drive it field by field and submit it once.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ArionMiles/dispatchcost/internal/metrics"
	"github.com/ArionMiles/dispatchcost/pkg/form"
)

const shutdownTimeout = 10 * time.Second

// DefaultSessionTTL is how long a form may sit untouched before it is discarded.
const DefaultSessionTTL = 30 * time.Minute

// Config holds configuration for the Server.
type Config struct {
	// AllowedOrigins is the CORS allow list. An empty list allows every origin.
	AllowedOrigins []string
	// SessionTTL is the idle time after which a form is discarded. Defaults to DefaultSessionTTL.
	SessionTTL time.Duration
}

// Server owns the open form sessions and the HTTP router serving them.
type Server struct {
	deps   form.Deps
	logger *slog.Logger
	router *gin.Engine
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session *form.Session
	touched time.Time
}

// New creates a Server.
func New(deps form.Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	s := &Server{
		deps:     deps,
		logger:   logger.With("component", "server"),
		ttl:      cfg.SessionTTL,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
	s.router = s.routes(cfg.AllowedOrigins)
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.expireSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "session_ttl", s.ttl)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "open_sessions", s.sessionCount())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) routes(origins []string) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())
	r.Use(cors.New(corsConfig(origins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	registerCurrencyRoutes(api)
	s.registerFormRoutes(api)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	return cfg
}

func (s *Server) addSession(sess *form.Session) string {
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = &entry{session: sess, touched: s.now()}
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	return id
}

// session returns the session with id and marks it as used.
func (s *Server) session(id string) (*form.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.touched = s.now()
	return e.session, true
}

func (s *Server) removeSession(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Dec()
	}
	return ok
}

// expireSessions discards idle sessions until ctx is canceled.
func (s *Server) expireSessions(ctx context.Context) {
	ticker := time.NewTicker(max(min(s.ttl/2, time.Minute), time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.expireIdle(); n > 0 {
				s.logger.Info("discarded idle forms", "count", n, "open_sessions", s.sessionCount())
			}
		}
	}
}

// expireIdle removes every session untouched for longer than the TTL and returns how many it removed.
func (s *Server) expireIdle() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	removed := 0
	for id, e := range s.sessions {
		if e.touched.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	metrics.ActiveSessions.Sub(float64(removed))
	return removed
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// requestLogger logs every request with its outcome and latency.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("request completed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
