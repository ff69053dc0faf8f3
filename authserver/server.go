// Package authserver is a small implicit-grant authorization server and
// protected resource server. It issues HS256 JWT access tokens with
// rotating refresh tokens and is used by the questauth tests and the
// `questauth stub-server` command.
package authserver

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Default token lifetimes.
const (
	DefaultAccessTokenExpiry  = 30 * time.Minute
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// Config configures a Server.
type Config struct {
	// ClientID is the only client the server accepts.
	ClientID string

	// RedirectURLs lists the accepted redirect_uri values. Empty accepts any.
	RedirectURLs []string

	// SigningKey signs access tokens. A random key is generated when empty.
	SigningKey []byte
	Issuer     string

	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// APIServer is returned as api_server. Defaults to the URL the request
	// arrived on.
	APIServer string

	// Subject is the user every authorization is granted for.
	Subject string
}

// Server serves the authorization endpoints under /oauth2/ and a protected
// API under /v1/.
type Server struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
	router *mux.Router

	mu       sync.Mutex
	refresh  map[string]*grant
	families map[string]*family

	authorizations atomic.Int64
	refreshes      atomic.Int64
	revokes        atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for token issue and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Server.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("authserver: client id is required")
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = make([]byte, 32)
		if _, err := rand.Read(cfg.SigningKey); err != nil {
			return nil, fmt.Errorf("authserver: generate signing key: %w", err)
		}
	}
	if cfg.AccessTokenExpiry <= 0 {
		cfg.AccessTokenExpiry = DefaultAccessTokenExpiry
	}
	if cfg.RefreshTokenExpiry <= 0 {
		cfg.RefreshTokenExpiry = DefaultRefreshTokenExpiry
	}
	if cfg.Subject == "" {
		cfg.Subject = "user"
	}

	s := &Server{
		config:   cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		refresh:  make(map[string]*grant),
		families: make(map[string]*family),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/oauth2/authorize", s.handleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/oauth2/token", s.handleToken).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/oauth2/revoke", s.handleRevoke).Methods(http.MethodPost)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.requireAccessToken)
	api.HandleFunc("/time", s.handleTime).Methods(http.MethodGet)
	api.HandleFunc("/echo", s.handleEcho).Methods(http.MethodPost)

	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Authorizations returns the number of successful authorize redirects.
func (s *Server) Authorizations() int64 { return s.authorizations.Load() }

// Refreshes returns the number of refresh grant requests, successful or not.
func (s *Server) Refreshes() int64 { return s.refreshes.Load() }

// Revokes returns the number of revoke requests.
func (s *Server) Revokes() int64 { return s.revokes.Load() }

func (s *Server) redirectAllowed(uri string) bool {
	if len(s.config.RedirectURLs) == 0 {
		return true
	}
	for _, allowed := range s.config.RedirectURLs {
		if allowed == uri {
			return true
		}
	}
	return false
}

func (s *Server) apiServer(r *http.Request) string {
	if s.config.APIServer != "" {
		return s.config.APIServer
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}
