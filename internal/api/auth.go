package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ──────────────────────────────────────────────────────────────────
// Bearer Token Identity Middleware
//
// Labeled session submission requires: Authorization: Bearer <token>.
// Each configured token maps to exactly one subject identity; the
// resolved identity becomes the training label, so clients can never
// pick an arbitrary label for the data they submit.
// ──────────────────────────────────────────────────────────────────

const subjectKey = "authSubject"

// IdentityMiddleware validates bearer tokens against the configured
// token-to-subject map and stores the resolved subject in the context.
// With no identities configured, PROFILER_DEV_SUBJECT can stand in for
// local development; otherwise every request is rejected.
func IdentityMiddleware(identities map[string]string) gin.HandlerFunc {
	if len(identities) == 0 {
		if os.Getenv("GIN_MODE") == "release" {
			log.Warn().Msg("no auth identities configured in release mode, labeled submission is disabled")
		}
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			if dev := os.Getenv("PROFILER_DEV_SUBJECT"); dev != "" && len(identities) == 0 {
				c.Set(subjectKey, dev)
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <token>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format"})
			c.Abort()
			return
		}

		// Constant-time scan over all tokens to prevent timing-based
		// token enumeration.
		subject := ""
		for token, id := range identities {
			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) == 1 {
				subject = id
			}
		}
		if subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(subjectKey, subject)
		c.Next()
	}
}

// authSubject returns the identity resolved by IdentityMiddleware.
func authSubject(c *gin.Context) string {
	if v, ok := c.Get(subjectKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
