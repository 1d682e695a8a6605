package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/civichub/internal/domain/issue"
	"github.com/geocoder89/civichub/internal/http/middlewares"
	"github.com/geocoder89/civichub/internal/service"
	"github.com/gin-gonic/gin"
)

type IssuesAPI interface {
	Submit(ctx context.Context, in service.SubmitIssueInput, image []byte, submitterID string) (issue.Issue, error)
	ChangeStatus(ctx context.Context, issueID, newStatus, actorRole string) (issue.Issue, error)
	ListAll(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error)
}

type IssuesHandler struct {
	svc            IssuesAPI
	maxUploadBytes int64
}

func NewIssuesHandler(svc IssuesAPI, maxUploadBytes int64) *IssuesHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &IssuesHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// CreateIssueRequest is the JSON form of a submission. Required fields are
// checked by the service so blank-after-trim values fail the same way.
type CreateIssueRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Category    *string `json:"category"`
	CreatedBy   string  `json:"createdBy"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,issue_status"`
}

// POST /api/issues (multipart/form-data or application/json)
func (h *IssuesHandler) CreateIssue(ctx *gin.Context) {
	var (
		req   CreateIssueRequest
		image []byte
	)

	if strings.HasPrefix(ctx.ContentType(), "multipart/form-data") {
		var ok bool
		req, image, ok = h.readMultipart(ctx)
		if !ok {
			return
		}
	} else if !BindJSON(ctx, &req) {
		return
	}

	// attribution always comes from the token, never from the body
	submitter, _ := middlewares.UserIDFromContext(ctx)
	if req.CreatedBy != "" && req.CreatedBy != submitter {
		slog.Default().InfoContext(ctx.Request.Context(), "issue.created_by_ignored",
			"request_id", requestIDFrom(ctx),
			"claimed", req.CreatedBy,
		)
	}

	// leaves room for the upload and classifier deadlines
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 20*time.Second)
	defer cancel()

	created, err := h.svc.Submit(cctx, service.SubmitIssueInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Category:    req.Category,
	}, image, submitter)
	if err != nil {
		RespondAppError(ctx, err, "Could not create issue")
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

func (h *IssuesHandler) readMultipart(ctx *gin.Context) (CreateIssueRequest, []byte, bool) {
	// form fields plus the image, with a little headroom for boundaries
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, h.maxUploadBytes+(1<<20))

	if err := ctx.Request.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "Upload exceeds the size limit", nil)
			return CreateIssueRequest{}, nil, false
		}
		RespondBadRequest(ctx, "Invalid multipart body", gin.H{"reason": err.Error()})
		return CreateIssueRequest{}, nil, false
	}

	req := CreateIssueRequest{
		Title:       ctx.PostForm("title"),
		Description: ctx.PostForm("description"),
		Location:    ctx.PostForm("location"),
		CreatedBy:   ctx.PostForm("createdBy"),
	}
	if c, ok := ctx.GetPostForm("category"); ok {
		req.Category = &c
	}

	fh, err := ctx.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil, true
		}
		RespondBadRequest(ctx, "Invalid image upload", gin.H{"reason": err.Error()})
		return CreateIssueRequest{}, nil, false
	}

	image, err := readUpload(fh, h.maxUploadBytes)
	if err != nil {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error(), nil)
		return CreateIssueRequest{}, nil, false
	}

	return req, image, true
}

var errUploadTooLarge = errors.New("image exceeds the size limit")

func readUpload(fh *multipart.FileHeader, max int64) ([]byte, error) {
	if fh.Size > max {
		return nil, errUploadTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errUploadTooLarge
	}
	return data, nil
}

// GET /api/issues?status=
func (h *IssuesHandler) ListIssues(ctx *gin.Context) {
	var filter issue.ListFilter

	if raw := strings.TrimSpace(ctx.Query("status")); raw != "" {
		s := issue.Status(raw)
		if !s.IsValid() {
			RespondError(ctx, http.StatusBadRequest, "invalid_query", "status must be one of pending, in_progress, resolved", nil)
			return
		}
		filter.Status = &s
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := h.svc.ListAll(cctx, filter)
	if err != nil {
		RespondAppError(ctx, err, "Could not list issues")
		return
	}

	if items == nil {
		items = []issue.Issue{}
	}

	respondWithETag(ctx, http.StatusOK, issuesETag(filter, items), items)
}

// PUT /api/issues/:id/status
func (h *IssuesHandler) UpdateStatus(ctx *gin.Context) {
	var req UpdateStatusRequest

	if !BindJSON(ctx, &req) {
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	updated, err := h.svc.ChangeStatus(cctx, ctx.Param("id"), req.Status, role)
	if err != nil {
		RespondAppError(ctx, err, "Could not update issue")
		return
	}

	ctx.JSON(http.StatusOK, updated)
}
