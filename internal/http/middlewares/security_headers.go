package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// swagger UI loads its bundle from unpkg and bootstraps inline
	docsCSP = "default-src 'self'; base-uri 'none'; frame-ancestors 'none'; object-src 'none'; connect-src 'self'; img-src 'self' data: https:; font-src 'self' https://unpkg.com data:; style-src 'self' 'unsafe-inline' https://unpkg.com; script-src 'self' 'unsafe-inline' https://unpkg.com"
	// uploaded photos are served as-is; never let one run as a document
	uploadsCSP = "default-src 'none'; img-src 'self'; sandbox"
)

// SecurityHeaders sets browser hardening headers. hsts should only be on
// when the API is served over TLS.
func SecurityHeaders(uploadsPrefix string, hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-XSS-Protection", "0")

		if hsts {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		path := c.Request.URL.Path
		switch {
		case strings.HasPrefix(path, "/docs"):
			h.Set("Content-Security-Policy", docsCSP)
		case uploadsPrefix != "" && strings.HasPrefix(path, uploadsPrefix):
			h.Set("Content-Security-Policy", uploadsCSP)
		default:
			h.Set("Content-Security-Policy", apiCSP)
		}
		c.Next()
	}
}
