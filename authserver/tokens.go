package authserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errInvalidGrant = errors.New("invalid_grant")

// family is the chain of credentials descending from one authorization.
// Revoking it invalidates every access and refresh token in the chain.
type family struct {
	id      string
	subject string
	revoked bool
}

type grant struct {
	family    *family
	expiresAt time.Time
	used      bool
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	APIServer    string `json:"api_server"`
}

// issueLocked creates a token pair in fam, or in a new family when fam is nil.
func (s *Server) issueLocked(subject string, fam *family) (*tokenPair, error) {
	if fam == nil {
		fam = &family{id: uuid.NewString(), subject: subject}
		s.families[fam.id] = fam
	}

	access, err := s.createAccessToken(fam)
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	s.refresh[refresh] = &grant{
		family:    fam,
		expiresAt: s.now().Add(s.config.RefreshTokenExpiry),
	}

	return &tokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
	}, nil
}

// rotate exchanges a refresh token for a new pair. A refresh token can be
// used once; presenting it again revokes its whole family.
func (s *Server) rotate(refreshToken string) (*tokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.refresh[refreshToken]
	if !ok {
		return nil, fmt.Errorf("%w: unknown refresh token", errInvalidGrant)
	}
	if g.family.revoked {
		return nil, fmt.Errorf("%w: refresh token revoked", errInvalidGrant)
	}
	if s.now().After(g.expiresAt) {
		return nil, fmt.Errorf("%w: refresh token expired", errInvalidGrant)
	}
	if g.used {
		g.family.revoked = true
		return nil, fmt.Errorf("%w: refresh token reused, family revoked", errInvalidGrant)
	}
	g.used = true

	return s.issueLocked(g.family.subject, g.family)
}

func (s *Server) revokeFamily(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fam, ok := s.families[id]; ok {
		fam.revoked = true
	}
}

// createAccessToken creates a signed JWT access token
func (s *Server) createAccessToken(fam *family) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  fam.subject,
		"fam":  fam.id,
		"jti":  uuid.NewString(),
		"type": "access",
		"iat":  now.Unix(),
		"exp":  now.Add(s.config.AccessTokenExpiry).Unix(),
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// validateAccessToken checks the signature, expiry and family of an access
// token and returns its family id.
func (s *Server) validateAccessToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.config.SigningKey, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	if typ, _ := claims["type"].(string); typ != "access" {
		return "", fmt.Errorf("invalid token type")
	}
	famID, _ := claims["fam"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	fam, ok := s.families[famID]
	if !ok || fam.revoked {
		return "", fmt.Errorf("token revoked")
	}
	return famID, nil
}
