// Package server exposes sessions over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"legalrag/internal/corpus"
	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/session"
)

type Server struct {
	sessions *session.Manager
	corpus   corpus.Source
	engine   *gin.Engine
	log      zerolog.Logger
}

type createSessionRequest struct {
	Task  string `json:"task"`
	Model string `json:"model"`
}

type sessionResponse struct {
	ID    string        `json:"id"`
	State session.State `json:"state"`
}

type turnRequest struct {
	Question string `json:"question" binding:"required"`
}

type turnResponse struct {
	Answer   string                `json:"answer"`
	Path     session.Path          `json:"path"`
	Hits     []domain.SearchHit    `json:"hits"`
	Analysis *domain.QueryAnalysis `json:"analysis,omitempty"`
	Degraded bool                  `json:"degraded,omitempty"`
	Model    string                `json:"model,omitempty"`
	State    session.State         `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the router. gatherer may be nil to omit /metrics.
func New(sessions *session.Manager, src corpus.Source, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		sessions: sessions,
		corpus:   src,
		engine:   gin.New(),
		log:      logger.Component(log, "http"),
	}
	s.engine.Use(gin.Recovery(), s.accessLog())

	s.engine.GET("/healthz", s.health)
	if gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	v1 := s.engine.Group("/v1")
	v1.POST("/sessions", s.createSession)
	v1.POST("/sessions/:id/turns", s.turn)
	v1.DELETE("/sessions/:id", s.deleteSession)
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "corpus": s.corpus.Current().Stats()})
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	// an empty body selects the defaults
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	id, st, err := s.sessions.Create(req.Task, req.Model)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{ID: id, State: st})
}

func (s *Server) turn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	answer, st, trace, err := s.sessions.Turn(c.Request.Context(), c.Param("id"), req.Question)
	if errors.Is(err, session.ErrUnknownSession) {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	hits := trace.Hits
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	c.JSON(http.StatusOK, turnResponse{
		Answer:   answer,
		Path:     trace.Path,
		Hits:     hits,
		Analysis: trace.Analysis,
		Degraded: trace.Degraded,
		Model:    trace.Model,
		State:    st,
	})
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.sessions.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, errorResponse{Error: session.ErrUnknownSession.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
