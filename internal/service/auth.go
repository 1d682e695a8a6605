package service

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/civichub/internal/apperr"
	"github.com/geocoder89/civichub/internal/domain/user"
	"github.com/geocoder89/civichub/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type TokenSigner interface {
	GenerateAccessToken(userID, email, role string) (string, error)
}

var ErrInvalidCredentials = apperr.Authentication("invalid_credentials", "Email or password is incorrect.")

type AuthService struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenSigner
}

func NewAuthService(users UserStore, hasher PasswordHasher, tokens TokenSigner) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register always creates a plain user; admins come from the seed.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (user.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = user.NormalizeEmail(in.Email)

	fields := map[string]string{}
	if in.Username == "" {
		fields["username"] = "is required"
	}
	if in.Email == "" {
		fields["email"] = "is required"
	}
	if in.Password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return user.User{}, apperr.Validation("invalid_request", "Missing required fields", fields)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return user.User{}, apperr.Validation("invalid_request", "Password is too long", map[string]string{
				"password": "must be at most 72 bytes",
			})
		}
		return user.User{}, err
	}

	return s.users.Create(ctx, user.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         user.RoleUser,
	})
}

type LoginInput struct {
	Email    string
	Password string
}

// Login answers unknown email and wrong password the same way.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, user.User, error) {
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", user.User{}, ErrInvalidCredentials
		}
		return "", user.User{}, err
	}

	if !s.hasher.Verify(in.Password, u.PasswordHash) {
		return "", user.User{}, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return "", user.User{}, err
	}

	return token, u, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (user.User, error) {
	return s.users.GetByID(ctx, userID)
}
