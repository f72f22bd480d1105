// Package api serves the signal ledger and daily settlement reports over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// NewRouter sets up the API routes over ledger.
func NewRouter(ledger model.SignalLedger, log zerolog.Logger, opts ...Option) *echo.Echo {
	h := newHandler(ledger, log, opts...)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverer(log), requestLogging(log))

	g := e.Group("/api/v1")
	g.GET("/health", h.health)
	g.GET("/signals", h.signals)
	g.GET("/report", h.report)
	if h.hub != nil {
		g.GET("/stream", h.hub.serveWS)
	}
	return e
}

// Server runs the API router.
type Server struct {
	addr string
	echo *echo.Echo
	log  zerolog.Logger
}

// NewServer wraps a router built by NewRouter.
func NewServer(addr string, e *echo.Echo, log zerolog.Logger) *Server {
	e.Server.ReadHeaderTimeout = 5 * time.Second
	return &Server{addr: addr, echo: e, log: log}
}

// Start launches the server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("api listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("api server error")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func requestLogging(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("http request")
			return err
		}
	}
}

func recoverer(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panic")
					err = dataResponse(c, http.StatusInternalServerError, nil)
				}
			}()
			return next(c)
		}
	}
}
