package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	authdomain "sampleapp/backend/internal/domain/auth"
	picturedomain "sampleapp/backend/internal/domain/picture"
	authusecase "sampleapp/backend/internal/usecase/auth"
	userusecase "sampleapp/backend/internal/usecase/user"
)

func (s *Server) registerRoutes() {
	s.router.Handle("/health", http.HandlerFunc(s.handleHealth))
	s.router.Handle("/auth/register", http.HandlerFunc(s.handleRegister))
	s.router.Handle("/auth/login", http.HandlerFunc(s.handleLogin))
	s.router.Handle("/auth/session", http.HandlerFunc(s.handleRestoreSession))
	s.router.Handle("/auth/renew", http.HandlerFunc(s.handleRenewToken))
	s.router.Handle("/account_activations/", http.HandlerFunc(s.handleAccountActivation))

	authenticated := s.authMiddleware
	s.router.Handle("/auth/logout", authenticated(http.HandlerFunc(s.handleLogout)))
	s.router.Handle("/users/change-password", authenticated(http.HandlerFunc(s.handleChangePassword)))
	s.router.Handle("/users/me", authenticated(http.HandlerFunc(s.handleMe)))
	s.router.Handle("/users/me/picture", authenticated(http.HandlerFunc(s.handleMyPicture)))
	s.router.Handle("/admin/users", authenticated(http.HandlerFunc(s.handleAdminUsers)))
	s.router.Handle("/admin/users/", authenticated(http.HandlerFunc(s.handleAdminUserByID)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	user, err := s.authService.Register(r.Context(), authusecase.RegisterInput{
		Name:                 payload.Name,
		Email:                payload.Email,
		Password:             payload.Password,
		PasswordConfirmation: payload.PasswordConfirmation,
	})
	if err != nil {
		if writeValidationError(w, err) {
			return
		}
		switch {
		case errors.Is(err, authdomain.ErrEmailExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error(r.Context(), "register failed", "error", err)
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    presentUser(user),
		"message": "Please check your email to activate your account.",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := s.authService.Login(r.Context(), authdomain.Credentials{
		Email:    payload.Email,
		Password: payload.Password,
	}, payload.RememberMe)
	if err != nil {
		switch {
		case errors.Is(err, authdomain.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, authdomain.ErrAccountNotActivated):
			writeError(w, http.StatusForbidden, "account not activated, check your email for the activation link")
		case errors.Is(err, authdomain.ErrTooManyAttempts):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			s.logger.Error(r.Context(), "login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	if result.RememberToken != "" {
		s.cookies.setRemember(w, result.User.ID, result.RememberToken)
	} else {
		s.cookies.clearRemember(w)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.AccessToken,
		"user":  presentUser(result.User),
	})
}

// handleRestoreSession trades the remember-me cookies for a new access token.
func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	result, err := s.authService.RestoreSession(r.Context(), cookieValue(r, cookieUserID), cookieValue(r, cookieRememberToken))
	if err != nil {
		if errors.Is(err, authdomain.ErrRememberInvalid) {
			s.cookies.clearRemember(w)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error(r.Context(), "restore session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session restore failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.AccessToken,
		"user":  presentUser(result.User),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	user, ok := currentUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := s.authService.Logout(r.Context(), user.ID); err != nil && !errors.Is(err, authdomain.ErrUserNotFound) {
		s.logger.Error(r.Context(), "logout failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	s.cookies.clearRemember(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenewToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			if errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "token required")
			} else {
				writeError(w, http.StatusBadRequest, "invalid JSON payload")
			}
			return
		}
		token = strings.TrimSpace(payload.Token)
	}

	if token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}

	result, err := s.authService.RenewToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, authdomain.ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.AccessToken,
	})
}

// handleAccountActivation serves GET /account_activations/{token}/edit?email=.
func (s *Server) handleAccountActivation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	remainder := strings.Trim(strings.TrimPrefix(r.URL.Path, "/account_activations/"), "/")
	segments := strings.Split(remainder, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] != "edit" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	result, err := s.authService.ActivateAccount(r.Context(), r.URL.Query().Get("email"), segments[0])
	if err != nil {
		if errors.Is(err, authdomain.ErrActivationInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error(r.Context(), "activation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "activation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Account activated!",
		"token":   result.AccessToken,
		"user":    presentUser(result.User),
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	user, ok := currentUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "current_password and new_password required")
		} else {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
		}
		return
	}

	if err := s.authService.ChangePassword(r.Context(), user.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		if writeValidationError(w, err) {
			return
		}
		switch {
		case errors.Is(err, authdomain.ErrPasswordMismatch):
			writeError(w, http.StatusBadRequest, "current password is incorrect")
		case errors.Is(err, authdomain.ErrPasswordUnchanged):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, authdomain.ErrUserNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			s.logger.Error(r.Context(), "change password failed", "user_id", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "password change failed")
		}
		return
	}

	s.cookies.clearRemember(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	user, ok := currentUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": presentUser(user)})
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !s.requireAdmin(w, r) {
			return
		}
		filter := userusecase.Filter{
			Role: r.URL.Query().Get("role"),
		}
		users, err := s.userService.List(r.Context(), filter)
		if err != nil {
			if errors.Is(err, authdomain.ErrInvalidRole) {
				writeError(w, http.StatusBadRequest, err.Error())
			} else {
				writeError(w, http.StatusInternalServerError, "listing users failed")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": presentUsers(users)})
	case http.MethodPost:
		if !s.requireAdmin(w, r) {
			return
		}
		var payload struct {
			Email    string `json:"email"`
			Name     string `json:"name"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			if errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "email, name, and password are required")
			} else {
				writeError(w, http.StatusBadRequest, "invalid JSON payload")
			}
			return
		}

		user, err := s.userService.Create(r.Context(), userusecase.CreateInput{
			Email:    payload.Email,
			Name:     payload.Name,
			Password: payload.Password,
			Role:     payload.Role,
		})
		if err != nil {
			if writeValidationError(w, err) {
				return
			}
			switch {
			case errors.Is(err, authdomain.ErrEmailExists):
				writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, authdomain.ErrInvalidRole):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": presentUser(user)})
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleAdminUserByID(w http.ResponseWriter, r *http.Request) {
	remainder := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	remainder = strings.TrimSpace(remainder)
	remainder = strings.Trim(remainder, "/")
	if remainder == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}

	segments := strings.Split(remainder, "/")
	id := strings.TrimSpace(segments[0])
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}

	if len(segments) > 1 {
		switch strings.TrimSpace(segments[1]) {
		case "role":
			s.handleAdminUserRole(w, r, id)
		case "activate":
			s.handleAdminActivate(w, r, id)
		default:
			writeError(w, http.StatusNotFound, "resource not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.requireAdmin(w, r) {
			return
		}
		user, err := s.userService.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, authdomain.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
			} else {
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, presentUser(user))
	case http.MethodPut, http.MethodPatch:
		if !s.requireAdmin(w, r) {
			return
		}
		var payload struct {
			Email    *string `json:"email"`
			Name     *string `json:"name"`
			Role     *string `json:"role"`
			Password *string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			if errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "update payload required")
			} else {
				writeError(w, http.StatusBadRequest, "invalid JSON payload")
			}
			return
		}

		user, err := s.userService.Update(r.Context(), id, userusecase.UpdateInput{
			Email:    payload.Email,
			Name:     payload.Name,
			Role:     payload.Role,
			Password: payload.Password,
		})
		if err != nil {
			if writeValidationError(w, err) {
				return
			}
			switch {
			case errors.Is(err, authdomain.ErrUserNotFound):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, authdomain.ErrEmailExists):
				writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, authdomain.ErrInvalidRole):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, presentUser(user))
	case http.MethodDelete:
		if !s.requireAdmin(w, r) {
			return
		}
		if err := s.pictureService.Delete(r.Context(), id); err != nil && !errors.Is(err, picturedomain.ErrNotFound) {
			s.logger.Warn(r.Context(), "removing picture of deleted user failed", "user_id", id, "error", err)
		}
		if err := s.userService.Delete(r.Context(), id); err != nil {
			if errors.Is(err, authdomain.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
			} else {
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) handleAdminUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if !s.requireAdmin(w, r) {
			return
		}
		user, err := s.userService.Get(r.Context(), userID)
		if err != nil {
			if errors.Is(err, authdomain.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
			} else {
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": presentUser(user)})
	case http.MethodPut, http.MethodPatch:
		if !s.requireAdmin(w, r) {
			return
		}

		var payload struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			if errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "role is required")
			} else {
				writeError(w, http.StatusBadRequest, "invalid JSON payload")
			}
			return
		}

		role := strings.TrimSpace(payload.Role)
		if role == "" {
			writeError(w, http.StatusBadRequest, "role is required")
			return
		}

		user, err := s.userService.Update(r.Context(), userID, userusecase.UpdateInput{
			Role: &role,
		})
		if err != nil {
			switch {
			case errors.Is(err, authdomain.ErrUserNotFound):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, authdomain.ErrInvalidRole):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, presentUser(user))
	case http.MethodDelete:
		if !s.requireAdmin(w, r) {
			return
		}

		defaultRole := string(authdomain.RoleUser)
		user, err := s.userService.Update(r.Context(), userID, userusecase.UpdateInput{
			Role: &defaultRole,
		})
		if err != nil {
			switch {
			case errors.Is(err, authdomain.ErrUserNotFound):
				writeError(w, http.StatusNotFound, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, presentUser(user))
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) handleAdminActivate(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}
	user, err := s.userService.Activate(r.Context(), userID)
	if err != nil {
		if errors.Is(err, authdomain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, "activation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, presentUser(user))
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authorization token required")
			return
		}

		user, err := s.authService.VerifyToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUser{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUserFromContext(ctx context.Context) (*authdomain.User, bool) {
	user, ok := ctx.Value(ctxKeyUser{}).(*authdomain.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user, ok := currentUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if user.Role != authdomain.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin privileges required")
		return false
	}
	return true
}

type ctxKeyUser struct{}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
