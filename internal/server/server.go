// Package server exposes reconciliation runs and column preferences over HTTP.
//
// Routes:
//
//	GET  /health
//	POST /api/v1/reconcile?format=json|xlsx&layout=multi|single
//	GET  /api/v1/preferences
//	GET  /api/v1/preferences/:file
//	PUT  /api/v1/preferences/:file
//	DELETE /api/v1/preferences/:file
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/preferences"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Config holds HTTP server settings
type Config struct {
	Address string `json:"address" mapstructure:"address" yaml:"address"`
	// RateLimit is the sustained number of requests per second; Burst the bucket size.
	RateLimit       float64       `json:"rate_limit" mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst           int           `json:"burst" mapstructure:"burst" yaml:"burst"`
	MaxUploadMB     int64         `json:"max_upload_mb" mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultConfig returns server settings suitable for a single-team deployment
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		RateLimit:       10,
		Burst:           30,
		MaxUploadMB:     32,
		ReadTimeout:     time.Minute,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate validates the server settings
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %v", c.RateLimit)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("burst must be positive, got %d", c.Burst)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadMB)
	}
	return nil
}

// Server wires the reconciliation service and the preference store to a gin router
type Server struct {
	config      *Config
	service     *reconciler.Service
	prefs       preferences.Store
	readOptions *parsers.ReadOptions
	router      *gin.Engine
	logger      logger.Logger
}

// New builds a server. prefs may be nil, in which case preference routes
// answer 503 and uploads are never pre-filled.
func New(config *Config, service *reconciler.Service, prefs preferences.Store, readOptions *parsers.ReadOptions) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if service == nil {
		service = reconciler.NewService()
	}
	if readOptions == nil {
		readOptions = parsers.DefaultReadOptions()
	}

	s := &Server{
		config:      config,
		service:     service,
		prefs:       prefs,
		readOptions: readOptions,
		logger:      logger.GetGlobalLogger().WithComponent("server"),
	}
	s.router = s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = s.config.MaxUploadMB << 20

	router.Use(recovery(s.logger))
	router.Use(requestLogger(s.logger))
	router.Use(rateLimit(rate.NewLimiter(rate.Limit(s.config.RateLimit), s.config.Burst), s.logger))

	router.GET("/health", s.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/reconcile", s.reconcile)

		prefs := v1.Group("/preferences")
		{
			prefs.GET("", s.listPreferences)
			prefs.GET("/:file", s.getPreference)
			prefs.PUT("/:file", s.putPreference)
			prefs.DELETE("/:file", s.deletePreference)
		}
	}

	return router
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.config.Address).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
