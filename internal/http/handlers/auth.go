package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/civichub/internal/apperr"
	"github.com/geocoder89/civichub/internal/domain/user"
	"github.com/geocoder89/civichub/internal/http/middlewares"
	"github.com/geocoder89/civichub/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthAPI interface {
	Register(ctx context.Context, in service.RegisterInput) (user.User, error)
	Login(ctx context.Context, in service.LoginInput) (string, user.User, error)
	Me(ctx context.Context, userID string) (user.User, error)
}

type AuthHandler struct {
	svc AuthAPI
}

func NewAuthHandler(svc AuthAPI) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// POST /api/register
func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.svc.Register(cctx, service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondAppError(ctx, err, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    u,
	})
}

// POST /api/login
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	token, u, err := h.svc.Login(cctx, service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		// bad credentials are a 400 on this endpoint; 401 is kept for bad tokens
		if errors.Is(err, apperr.ErrAuthentication) {
			RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Email or password is incorrect.", nil)
			return
		}
		RespondAppError(ctx, err, "Could not log in")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  u,
	})
}

// GET /api/me
func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.svc.Me(cctx, userID)
	if err != nil {
		RespondAppError(ctx, err, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, u)
}
