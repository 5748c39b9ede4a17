package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/services"
)

const oauthStateTTL = 10 * time.Minute

type userView struct {
	ID           string `json:"_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}

func newUserView(u *models.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, ProfileImage: u.ProfileImage}
}

type sessionResponse struct {
	ID           string `json:"_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func newSessionResponse(s *services.Session) sessionResponse {
	return sessionResponse{
		ID:           s.User.ID,
		Username:     s.User.Username,
		Email:        s.User.Email,
		Token:        s.Tokens.AccessToken,
		RefreshToken: s.Tokens.RefreshToken,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.users.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorAlreadyExists):
			respondMessage(w, http.StatusBadRequest, "User already exists")
		case errors.Is(err, common.ErrorValidation):
			respondMessage(w, http.StatusBadRequest, validationMessage(err))
		default:
			s.logger.Error(r.Context(), "register failed", "error", err)
			respondMessage(w, http.StatusInternalServerError, "Error registering user")
		}
		return
	}

	s.logger.Info(r.Context(), "Registered", "user_id", session.User.ID)
	respondJSON(w, http.StatusCreated, newSessionResponse(session))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorUnauthorized):
			respondMessage(w, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, common.ErrorValidation):
			respondMessage(w, http.StatusBadRequest, validationMessage(err))
		default:
			s.logger.Error(r.Context(), "login failed", "error", err)
			respondMessage(w, http.StatusInternalServerError, "Error logging in")
		}
		return
	}

	respondJSON(w, http.StatusOK, newSessionResponse(session))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		respondMessage(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	access, err := s.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			reason := failureReason(err)
			if errors.Is(err, common.ErrRefreshTokenSuperseded) {
				reason = "superseded"
			}
			s.metrics.authFailures.WithLabelValues("refresh_" + reason).Inc()
			s.logger.Warn(r.Context(), "refresh rejected", "reason", reason, "error", err)
			respondMessage(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		s.logger.Error(r.Context(), "refresh failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, "Error refreshing token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	if err := s.users.Logout(r.Context(), id.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			respondMessage(w, http.StatusNotFound, "User not found")
			return
		}
		s.logger.Error(r.Context(), "logout failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, "Error logging out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Not authorized, no user found")
		return
	}

	user, err := s.users.Profile(r.Context(), id.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			respondMessage(w, http.StatusNotFound, "User not found")
			return
		}
		s.logger.Error(r.Context(), "profile failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, "Error retrieving user profile")
		return
	}

	respondJSON(w, http.StatusOK, newUserView(user))
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.users.UpdateProfile(r.Context(), id.ID, services.ProfileUpdate{Username: req.Username, Email: req.Email})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			respondMessage(w, http.StatusNotFound, "User not found")
		case errors.Is(err, common.ErrorAlreadyExists):
			respondMessage(w, http.StatusBadRequest, "Username or email already in use")
		case errors.Is(err, common.ErrorValidation):
			respondMessage(w, http.StatusBadRequest, validationMessage(err))
		default:
			s.logger.Error(r.Context(), "profile update failed", "error", err)
			respondMessage(w, http.StatusInternalServerError, "Error updating profile")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    newUserView(user),
	})
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if s.opts.Google == nil {
		respondMessage(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}

	state, err := common.MakeRandHexString(16)
	if err != nil {
		s.logger.Error(r.Context(), "oauth state", "error", err)
		respondMessage(w, http.StatusInternalServerError, "Error starting Google sign-in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.OAuthStateCookieName,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.opts.Google.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.opts.Google == nil {
		respondMessage(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}

	cookie, err := r.Cookie(common.OAuthStateCookieName)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		respondMessage(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: common.OAuthStateCookieName, Path: "/api/auth/google", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		respondMessage(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	profile, err := s.opts.Google.Profile(r.Context(), code)
	if err != nil {
		s.logger.Warn(r.Context(), "google exchange failed", "error", err)
		respondMessage(w, http.StatusUnauthorized, "Google authentication failed")
		return
	}

	session, err := s.users.LoginWithOAuth(r.Context(), profile)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			respondMessage(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		s.logger.Error(r.Context(), "oauth login failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, "Error completing Google sign-in")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":      "Login successful",
		"user":         newUserView(session.User),
		"token":        session.Tokens.AccessToken,
		"refreshToken": session.Tokens.RefreshToken,
	})
}
