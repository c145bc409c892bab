package rest

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const (
	// TokenHeader is an alternative to the Authorization header for the API token.
	TokenHeader = "X-Api-Token"
	// RequestIDHeader carries the request ID in responses.
	RequestIDHeader = "X-Request-ID"
)

// TokenAuth rejects requests that do not carry the configured API token,
// either as "Authorization: Bearer <token>" or in the X-Api-Token header.
func TokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(TokenHeader)
		if got == "" {
			scheme, value, ok := strings.Cut(c.GetHeader("Authorization"), " ")
			if ok && strings.EqualFold(scheme, "bearer") {
				got = value
			}
		}

		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API token required"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API token"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request with its status and duration, and
// tags it with a request ID.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}

		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		level := zerolog.DebugLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zerolog.InfoLevel
		}
		zlog.WithLevel(level).Msgf("%s %s: status=%d duration=%s request_id=%s",
			c.Request.Method, c.Request.URL.Path, status, time.Since(start), id)

		for _, err := range c.Errors {
			zlog.WithLevel(level).Msgf("request error: request_id=%s error=%v", id, err.Err)
		}
	}
}
