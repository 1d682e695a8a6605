package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/geocoder89/civichub/internal/domain/issue"
	"github.com/gin-gonic/gin"
)

// issuesETag fingerprints a listing from what can change on an issue, so
// clients polling the board can skip unchanged pages without hashing the
// full body.
func issuesETag(filter issue.ListFilter, items []issue.Issue) string {
	h := sha256.New()

	if filter.Status != nil {
		h.Write([]byte(*filter.Status))
	}
	h.Write([]byte{'|'})

	for _, is := range items {
		h.Write([]byte(is.ID))
		h.Write([]byte(is.Status))
		if is.Category != nil {
			h.Write([]byte(*is.Category))
		}
		h.Write([]byte(strconv.FormatInt(is.UpdatedAt.UnixNano(), 10)))
		h.Write([]byte{'|'})
	}

	return `W/"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// respondWithETag answers 304 when the client already holds etag.
func respondWithETag(ctx *gin.Context, status int, etag string, payload interface{}) {
	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "no-cache")

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(status, payload)
}

func ifNoneMatchMatches(headerValue, currentETag string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || currentETag == "" {
		return false
	}
	if headerValue == "*" {
		return true
	}

	current := strings.TrimPrefix(currentETag, "W/")
	for _, part := range strings.Split(headerValue, ",") {
		if strings.TrimPrefix(strings.TrimSpace(part), "W/") == current {
			return true
		}
	}
	return false
}
