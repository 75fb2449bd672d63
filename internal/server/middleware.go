package server

import (
	"net/http"
	"time"

	"ledger-reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := log.WithFields(logger.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Info("Request processed")
	}
}

func recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).Error("Panic recovered")
				errorResponse(c, http.StatusInternalServerError, "internal_error", "An unexpected error occurred", "")
				c.Abort()
			}
		}()
		c.Next()
	}
}

func rateLimit(limiter *rate.Limiter, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.WithField("path", c.Request.URL.Path).Warn("Rate limit exceeded")
			errorResponse(c, http.StatusTooManyRequests, "rate_limited", http.StatusText(http.StatusTooManyRequests), "")
			c.Abort()
			return
		}
		c.Next()
	}
}
