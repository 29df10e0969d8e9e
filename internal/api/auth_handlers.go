package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/KuldeepJha5176/chat-application/internal/auth"
	"github.com/KuldeepJha5176/chat-application/internal/store"
)

type signupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type signinRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type authResponse struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    userDigest `json:"user"`
}

type userDigest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"profilePicture"`
}

func digestOf(u store.User) userDigest {
	return userDigest{ID: u.ID, Username: u.Username, Email: u.Email, Avatar: u.Avatar}
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := a.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.logger.Error("failed to hash password", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	user, err := a.stores.Profiles.Create(r.Context(), store.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Avatar:       fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=random", req.Username),
		LastSeen:     time.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Username or Email already exists")
			return
		}
		a.logger.Error("failed to create user", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	token, err := auth.Mint(a.authCfg.JWTSecret, user.ID, a.authCfg.TokenTTL)
	if err != nil {
		a.logger.Error("failed to mint token", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User created successfully",
		Token:   token,
		User:    digestOf(user),
	})
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := a.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := a.stores.Profiles.FindByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		a.logger.Error("failed to look up user", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	token, err := auth.Mint(a.authCfg.JWTSecret, user.ID, a.authCfg.TokenTTL)
	if err != nil {
		a.logger.Error("failed to mint token", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message: "Signed in successfully",
		Token:   token,
		User:    digestOf(user),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.stores.Profiles.FindByID(r.Context(), identity(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		a.logger.Error("failed to load current user", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]userDigest{"user": digestOf(user)})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Tokens are stateless; the durable presence flag is the only
	// server-side state to reset.
	if err := a.stores.Profiles.SetOnline(r.Context(), identity(r), false); err != nil {
		a.logger.Warn("failed to clear online flag on logout", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
