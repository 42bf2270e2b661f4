package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

// decode reads a JSON body into dst and validates it. An empty body is
// treated as an empty object.
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_payload", "Invalid payload")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "validation", err.Error())
		return false
	}
	return true
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Error(r.Context(), "Database unreachable", "err", err)
			respondError(w, http.StatusServiceUnavailable, "internal", "Database unreachable")
			return
		}
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "OK"})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), services.RegisterRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusCreated, RegisterResponse{UserID: user.ID, Email: user.Email, Role: user.Role})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.auth.Login(r.Context(), services.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Device: services.DeviceInfo{
			Label:     req.DeviceLabel,
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		},
	})
	if err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}

	resp := tokenResponse(res.Tokens)
	resp.UserID = res.User.ID
	respondJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !s.decode(w, r, &req) {
		return
	}

	pair, err := s.auth.Refresh(r.Context(), services.RefreshRequest{
		RefreshToken:   req.RefreshToken,
		ExpectedUserID: req.ExpectedUserID,
	})
	if err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, tokenResponse(pair))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !s.decode(w, r, &req) {
		return
	}
	scope, err := services.ParseLogoutScope(req.Scope)
	if err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}

	if err := s.auth.Logout(r.Context(), accessTokenFrom(r), scope); err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{Status: "logged_out"})
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	respondJSON(w, http.StatusOK, VerifyResponse{
		UserID:    id.UserID,
		Role:      id.Role,
		JTI:       id.JTI,
		SessionID: id.SessionID,
		ExpiresAt: id.ExpiresAt,
	})
}

func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	list, err := s.auth.ListSessions(r.Context(), id.UserID)
	if err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}

	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(list))}
	for _, sess := range list {
		resp.Sessions = append(resp.Sessions, sessionResponse(sess, id.SessionID))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	sess, err := s.auth.GetSession(r.Context(), id.UserID, mux.Vars(r)["family_id"])
	if err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(*sess, id.SessionID))
}

func (s *HTTPServer) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if err := s.auth.RevokeSession(r.Context(), id.UserID, mux.Vars(r)["family_id"]); err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "revoked"})
}

func (s *HTTPServer) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	n, err := s.auth.RevokeAllSessions(r.Context(), id.UserID)
	if err != nil {
		s.respondServiceError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, RevokeAllResponse{Status: "revoked", SessionsRevoked: n})
}

func tokenResponse(p *services.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(p.ExpiresIn.Seconds()),
		RefreshExpiresAt: p.RefreshExpiresAt,
		SessionID:        p.FamilyID,
	}
}

func sessionResponse(s models.Session, currentFamily string) SessionResponse {
	return SessionResponse{
		FamilyID:       s.FamilyID,
		DeviceLabel:    s.DeviceLabel,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		IsActive:       s.IsActive,
		EndedAt:        s.EndedAt,
		EndReason:      s.EndReason,
		Current:        s.FamilyID == currentFamily,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
