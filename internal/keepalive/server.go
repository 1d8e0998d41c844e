// Package keepalive serves the tiny HTTP endpoint hosting platforms poll to
// keep the process awake.
package keepalive

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr  = ":8080"
	aliveMessage = "I'm alive"
)

// Jobs reports the names of background jobs currently running.
type Jobs interface {
	List() []string
}

type Server struct {
	Jobs Jobs // optional
	Log  *zerolog.Logger
}

// Handler returns the gin engine serving /, HEAD / and /healthz.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, aliveMessage)
	})
	r.HEAD("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if s.Jobs != nil {
			body["jobs"] = s.Jobs.List()
		}
		c.JSON(http.StatusOK, body)
	})
	return r
}

// Run listens on addr until ctx is cancelled. A listen failure is logged
// and returned; it never stops the bot.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger().Error().Err(err).Str("addr", addr).Msg("Keep-alive server failed to listen")
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.logger()
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down keep-alive server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Keep-alive server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Keep-alive server exited")
		return err
	}
	return nil
}

func (s *Server) logger() *zerolog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return &log.Logger
}
