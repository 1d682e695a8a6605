package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/utils"
	"github.com/gin-gonic/gin"
)

type AdminJobsRepo interface {
	List(ctx context.Context, status *string, limit int) ([]job.Job, error)
	GetByID(ctx context.Context, id string) (job.Job, error)
	Retry(ctx context.Context, id string) error
}

// AdminJobsHandler lets admins inspect background work (classification
// retries, point awards) and requeue failures.
type AdminJobsHandler struct {
	repo AdminJobsRepo
}

func NewAdminJobsHandler(repo AdminJobsRepo) *AdminJobsHandler {
	return &AdminJobsHandler{repo: repo}
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// GET /api/admin/jobs?status=failed&limit=50
func (h *AdminJobsHandler) List(ctx *gin.Context) {
	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondError(ctx, http.StatusBadRequest, "invalid_query", "limit must be between 1 and 100", nil)
		return
	}

	var statusPtr *string
	if s := ctx.Query("status"); s != "" {
		switch job.Status(s) {
		case job.StatusPending, job.StatusProcessing, job.StatusDone, job.StatusFailed:
		default:
			RespondError(ctx, http.StatusBadRequest, "invalid_query", "status must be one of pending, processing, done, failed", nil)
			return
		}
		statusPtr = &s
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, err := h.repo.List(cctx, statusPtr, limit)
	if err != nil {
		RespondAppError(ctx, err, "Could not list jobs")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"limit": limit,
		"count": len(items),
		"items": items,
	})
}

// GET /api/admin/jobs/:id
func (h *AdminJobsHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	j, err := h.repo.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "Job not found")
			return
		}
		RespondAppError(ctx, err, "Could not fetch job")
		return
	}

	ctx.JSON(http.StatusOK, j)
}

// POST /api/admin/jobs/:id/retry
func (h *AdminJobsHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Retry(cctx, id); err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondConflict(ctx, "job_not_retryable", "Job does not exist or has not failed")
			return
		}
		RespondAppError(ctx, err, "Could not retry job")
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"id": id, "status": job.StatusPending})
}
