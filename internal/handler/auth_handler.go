package handler

import (
	"errors"
	"net/http"
	"net/mail"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"barber-booking-api/internal/auth"
	"barber-booking-api/internal/model"
	"barber-booking-api/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Admin        bool   `json:"admin"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "all fields required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password too short")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
	}
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// don't reveal which emails exist
			writeError(w, http.StatusConflict, "registration failed")
			return
		}
		h.log.Error("create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.issueTokens(w, r, u, http.StatusCreated)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	u, err := h.store.UserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error("sign in lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issueTokens(w, r, u, http.StatusOK)
}

// Refresh rotates a refresh token. Replaying a revoked token revokes every
// token the user holds.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh token required")
		return
	}
	ctx := r.Context()

	rt, err := h.store.RefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if rt.Revoked {
		h.log.Warn("revoked refresh token replayed", zap.String("user_id", rt.UserID))
		if err := h.store.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			h.log.Error("revoke refresh tokens", zap.Error(err))
		}
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if !rt.Usable(h.now()) {
		writeError(w, http.StatusUnauthorized, "refresh token expired")
		return
	}

	u, err := h.store.UserByID(ctx, rt.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := h.store.RotateRefreshToken(ctx, rt.ID, u.ID, hash, h.now().Add(auth.RefreshTTL)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	tok, err := auth.MakeToken(identityOf(u), h.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{UserID: u.ID, Name: u.Name, Admin: u.IsAdmin, Token: tok, RefreshToken: raw})
}

func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, u *model.User, code int) {
	tok, err := auth.MakeToken(identityOf(u), h.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := h.store.CreateRefreshToken(r.Context(), u.ID, hash, h.now().Add(auth.RefreshTTL)); err != nil {
		h.log.Error("create refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, code, tokenResponse{UserID: u.ID, Name: u.Name, Admin: u.IsAdmin, Token: tok, RefreshToken: raw})
}

func identityOf(u *model.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Name: u.Name, Admin: u.IsAdmin}
}
