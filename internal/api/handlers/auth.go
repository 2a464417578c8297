package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tundeabiodun/lms-backend/internal/api/httpx"
	"github.com/tundeabiodun/lms-backend/internal/api/validate"
	"github.com/tundeabiodun/lms-backend/internal/services"
)

type AuthHandler struct {
	users *services.UserService
}

func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

type registerReq struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			httpx.WriteError(w, http.StatusConflict, "email_taken", "email already registered", nil)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not register", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", err)
		return
	}

	token, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}
