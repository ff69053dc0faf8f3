package questauth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultAuthBaseURL is the authorization server base for authorize, token
// and revoke calls.
const DefaultAuthBaseURL = "https://login.questrade.com/oauth2/"

// DefaultRefreshTimeout bounds a coalesced refresh, which does not inherit
// the cancellation of the call that started it.
const DefaultRefreshTimeout = 30 * time.Second

// Config holds the registration and storage settings for a Session.
type Config struct {
	ClientID    string
	RedirectURL string

	// AuthBaseURL defaults to DefaultAuthBaseURL.
	AuthBaseURL string

	// Store persists the credential. Defaults to a MemoryStore.
	Store    KeyValueStore
	StoreKey string

	// MaxAttempts defaults to DefaultMaxAttempts when zero. Use
	// WithMaxAttempts to set a non-positive bound explicitly.
	MaxAttempts int

	// DisableRefreshCoalescing makes every 401 run its own refresh grant
	// instead of sharing one in-flight refresh.
	DisableRefreshCoalescing bool

	RefreshTimeout time.Duration
}

// Session owns the credential for one user and executes authenticated calls.
type Session struct {
	clientID    string
	redirectURL string
	authBase    string
	oauth       oauth2.Config

	cache     *CredentialCache
	store     KeyValueStore
	storeKey  string
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
	hooks     []RequestHook
	observers observers

	maxAttempts    int
	coalesce       bool
	refreshTimeout time.Duration
	refreshGroup   singleflight.Group

	exec       *executor
	httpClient *http.Client
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTransport sets the transport used for every physical request.
// Defaults to an *http.Client with a 30s timeout.
func WithTransport(t Transport) SessionOption {
	return func(s *Session) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for expiry computation.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRequestHook adds a hook that sees every physical request.
func WithRequestHook(h RequestHook) SessionOption {
	return func(s *Session) {
		s.hooks = append(s.hooks, h)
	}
}

// WithObserver subscribes obs for the lifetime of the session.
func WithObserver(obs Observer) SessionOption {
	return func(s *Session) {
		s.observers.add(obs)
	}
}

// WithMaxAttempts sets the attempt bound, including zero or negative values
// which reject every call outright.
func WithMaxAttempts(n int) SessionOption {
	return func(s *Session) {
		s.maxAttempts = n
	}
}

// WithCredentialCache shares an existing cache, for example one watched by
// a file store.
func WithCredentialCache(c *CredentialCache) SessionOption {
	return func(s *Session) {
		s.cache = c
	}
}

// NewSession creates a Session.
func NewSession(cfg Config, opts ...SessionOption) (*Session, error) {
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if cfg.RedirectURL == "" {
		return nil, ErrMissingRedirectURL
	}

	base := cfg.AuthBaseURL
	if base == "" {
		base = DefaultAuthBaseURL
	}
	if _, err := parseServerURL(base); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	s := &Session{
		clientID:       cfg.ClientID,
		redirectURL:    cfg.RedirectURL,
		authBase:       base,
		store:          cfg.Store,
		storeKey:       cfg.StoreKey,
		transport:      &http.Client{Timeout: 30 * time.Second},
		logger:         zap.NewNop(),
		now:            time.Now,
		maxAttempts:    cfg.MaxAttempts,
		coalesce:       !cfg.DisableRefreshCoalescing,
		refreshTimeout: cfg.RefreshTimeout,
	}
	if s.maxAttempts == 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.refreshTimeout <= 0 {
		s.refreshTimeout = DefaultRefreshTimeout
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		s.cache = NewCredentialCache(s.store, s.storeKey, s.logger)
	}

	s.oauth = oauth2.Config{
		ClientID:    s.clientID,
		RedirectURL: s.redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.authBase + "authorize",
			TokenURL: s.authBase + "token",
		},
	}

	s.exec = &executor{
		transport: s.transport,
		cache:     s.cache,
		hooks:     s.hooks,
		logger:    s.logger,
		refresh:   s.refresh,
	}
	s.httpClient = &http.Client{Transport: &sessionTransport{session: s}}

	return s, nil
}

// Cache returns the session's credential cache.
func (s *Session) Cache() *CredentialCache {
	return s.cache
}

// Subscribe registers obs and returns a function that removes it.
func (s *Session) Subscribe(obs Observer) (unsubscribe func()) {
	return s.observers.add(obs)
}

// IsAuthorized reports whether a credential is cached and not yet expired.
func (s *Session) IsAuthorized(ctx context.Context) bool {
	return s.cache.Get(ctx).Valid(s.now())
}

// Credential returns a copy of the cached credential, or nil.
func (s *Session) Credential(ctx context.Context) *Credential {
	return s.cache.Get(ctx)
}

// AuthorizationURL returns the URL the user must open to grant access.
// The authorization server redirects back to the configured redirect URL
// with the credential in the fragment.
func (s *Session) AuthorizationURL() string {
	return s.oauth.AuthCodeURL("", oauth2.SetAuthURLParam("response_type", "token"))
}

// Authorize completes authorization from the redirect URL. No network call
// is made.
func (s *Session) Authorize(ctx context.Context, redirectURL string) error {
	cred, err := ParseRedirect(redirectURL, s.now())
	if err != nil {
		s.logger.Warn("authorization redirect rejected", zap.Error(err))
		s.observers.each(func(o Observer) { o.OnAuthorizeFailed(err) })
		return err
	}

	s.cache.Set(ctx, cred)
	s.logger.Info("authorized",
		zap.String("api_server", cred.APIServer),
		zap.Time("expiry", cred.Expiry))
	s.observers.each(func(o Observer) { o.OnAuthorized() })
	return nil
}

// Revoke asks the authorization server to revoke the credential and then
// signs out whatever the outcome. The returned error describes the revoke
// call only.
func (s *Session) Revoke(ctx context.Context) error {
	out := s.exec.run(ctx, call{
		req:           Request{Method: http.MethodPost, Path: s.authBase + "revoke"},
		maxAttempts:   1,
		refreshExempt: true,
	})
	if out.err != nil {
		s.logger.Warn("revoke failed", zap.Error(out.err))
	}
	s.signOut(ctx)
	return out.err
}

func (s *Session) signOut(ctx context.Context) {
	s.cache.Set(ctx, nil)
	s.logger.Info("signed out")
	s.observers.each(func(o Observer) { o.OnSignedOut() })
}

// HTTPClient returns an *http.Client whose requests go through the session:
// the credential is attached and a 401 triggers refresh and retry.
// Relative request URLs are not supported by net/http; use absolute URLs.
func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}

// Execute runs req and returns the raw body of the 200 response.
func (s *Session) Execute(ctx context.Context, req Request) ([]byte, error) {
	return Execute[[]byte](ctx, s, req)
}

// Result is the single value delivered by Go.
type Result[T any] struct {
	Value T
	Err   error
}

// Execute runs req through s and decodes the 200 response into T. A T of
// []byte receives the raw body.
func Execute[T any](ctx context.Context, s *Session, req Request) (T, error) {
	r := <-Go[T](ctx, s, req)
	return r.Value, r.Err
}

// Go runs req in the background. The returned channel receives exactly one
// Result and is never closed.
func Go[T any](ctx context.Context, s *Session, req Request) <-chan Result[T] {
	d := newDelivery[Result[T]]()
	go func() {
		var res Result[T]
		out := s.exec.run(ctx, call{req: req, maxAttempts: s.maxAttempts})
		if res.Err = out.err; res.Err == nil {
			res.Value, res.Err = Decode[T](out.resp)
		}
		d.deliver(res, func(r Result[T]) {
			if r.Err != nil {
				s.observers.each(func(o Observer) { o.OnRequestFailed(r.Err) })
			}
		})
	}()
	return d.done()
}

// TokenSource returns an oauth2.TokenSource backed by the session. An
// expired credential is refreshed before it is returned.
func (s *Session) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, session: s}
}

type sessionTokenSource struct {
	ctx     context.Context
	session *Session
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	s := ts.session
	cred := s.cache.Get(ts.ctx)
	if cred == nil {
		return nil, ErrMissingCredential
	}
	if !cred.Valid(s.now()) {
		if err := s.refresh(ts.ctx); err != nil {
			return nil, err
		}
		if cred = s.cache.Get(ts.ctx); cred == nil {
			return nil, ErrMissingCredential
		}
	}
	return cred.Token(), nil
}
