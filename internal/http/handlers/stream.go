package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/geocoder89/civichub/internal/realtime"
	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	hub       *realtime.Hub
	heartbeat time.Duration
}

func NewStreamHandler(hub *realtime.Hub, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{hub: hub, heartbeat: heartbeat}
}

// GET /api/issues/stream
//
// Server-Sent Events: every lifecycle event is written as
// "event: <name>" with the issue JSON as data.
func (h *StreamHandler) Stream(ctx *gin.Context) {
	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	// nginx: do not buffer the stream
	ctx.Header("X-Accel-Buffering", "no")

	ctx.Status(http.StatusOK)
	_, _ = io.WriteString(ctx.Writer, ": connected\n\n")
	ctx.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	done := ctx.Request.Context().Done()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case ev, ok := <-sub.C:
			if !ok {
				// dropped for falling behind, or the hub closed
				return false
			}
			ctx.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}
