package server

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"numrelay-go/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// RequestID tags every request, honoring an inbound X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// AccessLog records one line per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.WithReq(c, log.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": logging.DurationMS(time.Since(start)),
			"user_agent": c.Request.UserAgent(),
		}).Info("http_request")
	}
}

// Recovery converts panics into 500 responses with a logged stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logging.WithReq(c, log.Fields{
					"error": err,
					"stack": string(debug.Stack()),
				}).Error("Panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"code":    "internal_error",
						"message": "internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}

// AuthConfig holds management key material. When a bcrypt hash is present
// it wins; the plain key is only compared when no hash is configured.
type AuthConfig struct {
	Key     string
	KeyHash string
}

// Enabled reports whether any key material is configured.
func (a AuthConfig) Enabled() bool { return a.Key != "" || a.KeyHash != "" }

func (a AuthConfig) validate(provided string) bool {
	if provided == "" {
		return false
	}
	if a.KeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.KeyHash), []byte(provided)) == nil
	}
	return provided == a.Key
}

// Auth guards the management surface with a bearer key. Supports
// Authorization: Bearer, x-api-key, and a ?key= query parameter for the
// websocket log stream.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled() {
			c.Next()
			return
		}

		var provided string
		if h := c.GetHeader("Authorization"); h != "" {
			if strings.HasPrefix(strings.ToLower(h), "bearer ") {
				provided = strings.TrimSpace(h[7:])
			} else {
				provided = h
			}
		}
		if provided == "" {
			provided = c.GetHeader("x-api-key")
		}
		if provided == "" {
			provided = c.Query("key")
		}

		if !cfg.validate(provided) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "invalid or missing management key",
				},
			})
			return
		}
		c.Next()
	}
}
