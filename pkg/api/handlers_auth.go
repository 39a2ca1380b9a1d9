package api

import (
	"errors"
	"net/http"

	"github.com/odvcencio/leadsplit/pkg/auth"
	"github.com/odvcencio/leadsplit/pkg/logging"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool           `json:"success"`
	Token   string         `json:"token"`
	User    auth.Principal `json:"user"`
}

const msgInvalidCredentials = "Invalid credentials"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), s.logger)

	if !s.loginLimiter.Allow(clientIP(r)) {
		metricLogins.WithLabelValues("throttled").Inc()
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		return
	}

	var in credentials
	if err := s.validators.decodeValidated(w, r, schemaLogin, &in); err != nil {
		metricLogins.WithLabelValues("invalid").Inc()
		writeAppError(w, err)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), in.Email)
	if errors.Is(err, storage.ErrNotFound) {
		metricLogins.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, msgInvalidCredentials)
		return
	}
	if err != nil {
		log.WithError(err).Error("login lookup failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, in.Password); err != nil {
		metricLogins.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, msgInvalidCredentials)
		return
	}

	principal := auth.Principal{UserID: user.ID, Email: user.Email, Role: user.Role}
	token, err := s.tokens.Issue(principal)
	if err != nil {
		log.WithError(err).Error("token issue failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	metricLogins.WithLabelValues("success").Inc()
	log.Info("operator signed in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token, User: principal})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := s.validators.decodeValidated(w, r, schemaRegister, &in); err != nil {
		writeAppError(w, err)
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.store.CreateUser(r.Context(), in.Email, hash, storage.RoleAdmin)
	if errors.Is(err, storage.ErrDuplicate) {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if err != nil {
		logging.FromContext(r.Context(), s.logger).WithError(err).Error("register failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	logging.FromContext(r.Context(), s.logger).Info("admin user created", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Admin user created successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": p})
}
