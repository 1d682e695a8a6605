package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/geocoder89/civichub/internal/apperr"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message, nil)
}

// StatusForKind is the single place error kinds become HTTP statuses.
func StatusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict, apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpload, apperr.KindClassifier:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondAppError renders any error from the service layer. Errors outside
// the taxonomy are logged and hidden behind a generic 500.
func RespondAppError(ctx *gin.Context, err error, fallbackMessage string) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		_ = ctx.Error(err)
		slog.Default().ErrorContext(ctx.Request.Context(), "request failed",
			"err", err,
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
		)
		RespondInternal(ctx, fallbackMessage)
		return
	}

	if e.Kind == apperr.KindUpload || e.Kind == apperr.KindClassifier {
		_ = ctx.Error(err)
	}

	var details interface{}
	if len(e.Fields) > 0 {
		details = gin.H{"fields": fieldErrors(e.Fields)}
	}

	RespondError(ctx, StatusForKind(e.Kind), e.Code, e.Message, details)
}

// fieldErrors renders a field map in the same shape binding errors use.
func fieldErrors(fields map[string]string) []FieldError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FieldError, 0, len(names))
	for _, name := range names {
		rule := "invalid"
		if fields[name] == "is required" {
			rule = "required"
		}
		out = append(out, FieldError{Field: name, Rule: rule, Message: fields[name]})
	}
	return out
}
