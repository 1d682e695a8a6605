package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET,POST,PUT,OPTIONS"
	// Last-Event-ID lets EventSource clients resume the issue stream
	corsHeaders = "Authorization,Content-Type,If-None-Match,Last-Event-ID,X-Request-Id"
	corsExpose  = "ETag,Retry-After,X-Request-Id"
	corsMaxAge  = 10 * time.Minute
)

// CORSMiddleware echoes allowed origins. "*" in the list admits any origin
// but still echoes it, since credentials are allowed.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false

	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			wildcard = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	maxAge := strconv.Itoa(int(corsMaxAge.Seconds()))

	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")
		ctx.Writer.Header().Add("Vary", "Origin")

		_, ok := allowed[origin]
		permitted := origin != "" && (ok || wildcard)

		if permitted {
			ctx.Header("Access-Control-Allow-Origin", origin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Expose-Headers", corsExpose)
		}

		// a preflight names the method it wants to use
		if ctx.Request.Method == http.MethodOptions && ctx.GetHeader("Access-Control-Request-Method") != "" {
			if permitted {
				ctx.Header("Access-Control-Allow-Methods", corsMethods)
				ctx.Header("Access-Control-Allow-Headers", corsHeaders)
				ctx.Header("Access-Control-Max-Age", maxAge)
			}
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		ctx.Next()
	}
}
