package services

import (
	"context"
	"errors"
	"strings"

	"github.com/tundeabiodun/lms-backend/internal/auth"
	"github.com/tundeabiodun/lms-backend/internal/models"
	repo "github.com/tundeabiodun/lms-backend/internal/repository"
)

// UserService is the auth boundary; everything past register/login treats
// the user as an external fact carried in the request context.
type UserService struct {
	users repo.Users
	tm    *auth.TokenManager
}

func NewUserService(users repo.Users, tm *auth.TokenManager) *UserService {
	return &UserService{users: users, tm: tm}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (models.User, error) {
	u := models.User{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Role:     "student",
	}
	if err := u.Validate(); err != nil {
		return models.User{}, err
	}
	if _, err := s.users.GetByEmail(ctx, u.Email); err == nil {
		return models.User{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	return s.users.Create(ctx, u.Username, u.Email, hash, u.Role)
}

func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", errors.New("invalid credentials")
	}
	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		return "", errors.New("invalid credentials")
	}
	return s.tm.Generate(u.ID, u.Role)
}
