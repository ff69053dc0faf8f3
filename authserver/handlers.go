package authserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// handleAuthorize handles GET /oauth2/authorize. Consent is implied: the
// user agent is redirected straight back with the credential in the
// fragment.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "token" {
		s.errorResponse(w, "unsupported_response_type", "Only response_type=token is supported", http.StatusBadRequest)
		return
	}
	if q.Get("client_id") != s.config.ClientID {
		s.errorResponse(w, "unauthorized_client", "Unknown client", http.StatusBadRequest)
		return
	}
	redirect := q.Get("redirect_uri")
	if redirect == "" || strings.ContainsAny(redirect, "?#") || !s.redirectAllowed(redirect) {
		s.errorResponse(w, "invalid_request", "Invalid redirect_uri", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	pair, err := s.issueLocked(s.config.Subject, nil)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("issue token failed", zap.Error(err))
		s.errorResponse(w, "server_error", "Failed to create token", http.StatusInternalServerError)
		return
	}
	s.authorizations.Add(1)

	v := url.Values{}
	v.Set("access_token", pair.AccessToken)
	v.Set("refresh_token", pair.RefreshToken)
	v.Set("token_type", pair.TokenType)
	v.Set("expires_in", strconv.FormatInt(pair.ExpiresIn, 10))
	v.Set("api_server", s.apiServer(r))

	s.logger.Info("authorized", zap.String("redirect_uri", redirect))
	http.Redirect(w, r, redirect+"#"+v.Encode(), http.StatusFound)
}

// handleToken handles the refresh_token grant.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.refreshes.Add(1)

	if gt := r.FormValue("grant_type"); gt != "refresh_token" {
		s.errorResponse(w, "unsupported_grant_type", "Grant type not supported", http.StatusBadRequest)
		return
	}
	token := r.FormValue("refresh_token")
	if token == "" {
		s.errorResponse(w, "invalid_request", "Refresh token required", http.StatusBadRequest)
		return
	}

	pair, err := s.rotate(token)
	if err != nil {
		if errors.Is(err, errInvalidGrant) {
			s.logger.Info("refresh rejected", zap.Error(err))
			s.errorResponse(w, "invalid_grant", err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("refresh failed", zap.Error(err))
		s.errorResponse(w, "server_error", "Failed to refresh session", http.StatusInternalServerError)
		return
	}

	pair.APIServer = s.apiServer(r)
	s.tokenResponse(w, pair)
}

// handleRevoke revokes the family of the bearer access token.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.revokes.Add(1)

	famID, err := s.validateAccessToken(bearerToken(r))
	if err != nil {
		s.unauthorized(w, err)
		return
	}
	s.revokeFamily(famID)
	s.logger.Info("credential revoked")
	w.WriteHeader(http.StatusOK)
}

// requireAccessToken rejects requests without a valid bearer access token.
func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.validateAccessToken(bearerToken(r)); err != nil {
			s.unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"time": s.now().UTC().Format(time.RFC3339Nano),
	})
}

// handleEcho returns the request body unchanged.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.errorResponse(w, "invalid_request", "Unreadable body", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) unauthorized(w http.ResponseWriter, err error) {
	s.logger.Debug("access token rejected", zap.Error(err))
	w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"code":    1017,
		"message": "Access token is invalid",
	})
}

// tokenResponse sends a successful token response
func (s *Server) tokenResponse(w http.ResponseWriter, pair *tokenPair) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, pair)
}

// errorResponse sends an OAuth 2.0 compliant error response
func (s *Server) errorResponse(w http.ResponseWriter, code, description string, status int) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
