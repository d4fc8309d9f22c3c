package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-saga-commerce/internal/users"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type UserService interface {
	Register(ctx context.Context, email string) (users.User, error)
	GetUser(ctx context.Context, id string) (users.User, error)
	IssueVerificationToken(ctx context.Context, userID string) (users.Token, error)
	VerifyEmail(ctx context.Context, token string) (users.User, error)
	IssuePasswordResetToken(ctx context.Context, email string) (users.Token, error)
	ConsumePasswordResetToken(ctx context.Context, token string) (string, error)
	CreateSession(ctx context.Context, userID string) (users.Session, error)
	ValidateSession(ctx context.Context, id string) (users.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// UsersHandler returns issued tokens in the response body; mail delivery sits in front of it.
type UsersHandler struct {
	Users UserService
	Log   *zap.Logger
}

type emailReq struct {
	Email string `json:"email"`
}

type tokenReq struct {
	Token string `json:"token"`
}

func (h *UsersHandler) Register(r chi.Router) {
	r.Post("/users", h.register)
	r.Get("/users/{userID}", h.getUser)
	r.Post("/users/{userID}/verification-tokens", h.issueVerification)
	r.Post("/users/{userID}/sessions", h.createSession)
	r.Post("/verify-email", h.verifyEmail)
	r.Post("/password-resets", h.issueReset)
	r.Post("/password-resets/consume", h.consumeReset)
	r.Get("/sessions/{id}", h.validateSession)
	r.Delete("/sessions/{id}", h.deleteSession)
}

func (h *UsersHandler) register(w http.ResponseWriter, r *http.Request) {
	var req emailReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	u, err := h.Users.Register(ctx, req.Email)
	writeResult(w, h.Log, http.StatusCreated, u, err)
}

func (h *UsersHandler) getUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	u, err := h.Users.GetUser(ctx, chi.URLParam(r, "userID"))
	writeResult(w, h.Log, http.StatusOK, u, err)
}

func (h *UsersHandler) issueVerification(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	t, err := h.Users.IssueVerificationToken(ctx, chi.URLParam(r, "userID"))
	writeResult(w, h.Log, http.StatusCreated, t, err)
}

func (h *UsersHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	u, err := h.Users.VerifyEmail(ctx, req.Token)
	writeResult(w, h.Log, http.StatusOK, u, err)
}

func (h *UsersHandler) issueReset(w http.ResponseWriter, r *http.Request) {
	var req emailReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	t, err := h.Users.IssuePasswordResetToken(ctx, req.Email)
	writeResult(w, h.Log, http.StatusCreated, t, err)
}

func (h *UsersHandler) consumeReset(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	userID, err := h.Users.ConsumePasswordResetToken(ctx, req.Token)
	writeResult(w, h.Log, http.StatusOK, map[string]string{"userId": userID}, err)
}

func (h *UsersHandler) createSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	s, err := h.Users.CreateSession(ctx, chi.URLParam(r, "userID"))
	writeResult(w, h.Log, http.StatusCreated, s, err)
}

func (h *UsersHandler) validateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	s, err := h.Users.ValidateSession(ctx, chi.URLParam(r, "id"))
	writeResult(w, h.Log, http.StatusOK, s, err)
}

func (h *UsersHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	if err := h.Users.DeleteSession(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
