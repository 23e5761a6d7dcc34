// Package daemon provides the HTTP server for the pairing agent. It
// owns exactly one response per request: everything that happens after
// the pairing code is written back is invisible to the HTTP caller by
// design and observable only through logs and the audit ledger.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/audit"
	"github.com/pairforge/agent/internal/common"
	"github.com/pairforge/agent/internal/config"
	"github.com/pairforge/agent/internal/session"
)

// PairingService is the slice of the lifecycle controller the HTTP
// boundary needs.
type PairingService interface {
	Start(ctx context.Context, rawNumber string) (*session.Pairing, error)
}

// Server represents the web service that accepts pairing requests
type Server struct {
	Config        *config.Config
	Pairing       PairingService
	Audit         *audit.Store // optional
	StartTime     time.Time
	TotalRequests int64

	server        *http.Server
	shutdownHooks []func()
}

func NewServer(cfg *config.Config, pairing PairingService, auditStore *audit.Store) *Server {
	return &Server{
		Config:    cfg,
		Pairing:   pairing,
		Audit:     auditStore,
		StartTime: time.Now().UTC(),
	}
}

func (s *Server) GetConfig() *config.Config {
	return s.Config
}

// OnShutdown registers fn to run when the server stops. Used to tear
// down subsystems whose lifetime is tied to the daemon, like the
// session directory janitor.
func (s *Server) OnShutdown(fn func()) {
	s.shutdownHooks = append(s.shutdownHooks, fn)
}

func (s *Server) Start() error {

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.CustomRecovery(
		func(c *gin.Context, err any) {

			if foundError, ok := err.(error); ok {
				logrus.WithError(foundError).Error("Recovered from panic")
			} else {
				logrus.Errorf("Recovered from panic: %v", err)
			}

			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		},
	))
	router.Use(s.requestCounterMiddleware())

	allowedOrigins := s.Config.Server.CORS.AllowedOrigins

	corsConfig := cors.Config{
		AllowHeaders: []string{
			"Origin",
			"Content-Length",
			"Content-Type",
			"Accept",
			"X-Requested-With",
		},
		AllowCredentials: false,
	}

	if slices.Contains(allowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}

	router.Use(cors.New(corsConfig))

	s.setupRoutes(router)

	addr := s.Config.GetListenAddr()

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.Config.Server.Limits.ReadTimeout,
		WriteTimeout: s.Config.Server.Limits.WriteTimeout,
		IdleTimeout:  s.Config.Server.Limits.IdleTimeout,
	}

	s.server = server

	// Channel to capture startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	// Wait a moment to see if the server fails to start
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("failed to start server: %v", err)
		}
		return nil
	case <-time.After(100 * time.Millisecond):
		logrus.WithFields(logrus.Fields{
			"addr": addr,
		}).Infoln("Web service started")
		return nil
	}
}

func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warnln("Server shutdown")
		}
	}

	for _, fn := range s.shutdownHooks {
		fn()
	}

	logrus.Infoln("Server exiting")
}

// requestCounterMiddleware increments the request counter
func (s *Server) requestCounterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		atomic.AddInt64(&s.TotalRequests, 1)
		c.Next()
	}
}

func (s *Server) setupRoutes(router *gin.Engine) {

	router.GET("/pair", s.getPair)

	if s.Config.Server.Health.Enabled {
		router.GET(s.Config.Server.Health.Path, s.healthHandler)
	}

	if s.Config.Server.Ready.Enabled {
		router.GET(s.Config.Server.Ready.Path, s.readyHandler)
	}

	router.GET("/logs", s.getLogs)
	router.GET("/attempts", s.getAttempts)
}

// healthHandler reports process liveness
//
//	@Summary	Health check
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/health [get]
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  common.GetVersion(),
		"uptime":   time.Since(s.StartTime).Round(time.Second).String(),
		"requests": atomic.LoadInt64(&s.TotalRequests),
	})
}

func (s *Server) readyHandler(c *gin.Context) {

	if s.Pairing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// getLogs returns the recent in-memory log events
func (s *Server) getLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events": s.Config.GetLogger().GetRecentEvents(100),
	})
}

// getAttempts returns recent pairing attempt summaries from the ledger
func (s *Server) getAttempts(c *gin.Context) {

	if s.Audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit ledger is not enabled"})
		return
	}

	attempts, err := s.Audit.Recent(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
