package questauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

const refreshKey = "refresh"

// Refresh exchanges the refresh token for a new credential. On failure the
// session is signed out and the failure returned. Without a cached credential
// it returns ErrMissingCredential and changes nothing.
func (s *Session) Refresh(ctx context.Context) error {
	if s.cache.Get(ctx) == nil {
		return ErrMissingCredential
	}
	return s.refresh(ctx)
}

// refresh coalesces concurrent callers into one grant unless coalescing is
// disabled. A shared grant runs detached from any single caller's context,
// bounded by refreshTimeout; each caller still stops waiting when its own
// context ends.
func (s *Session) refresh(ctx context.Context) error {
	if !s.coalesce {
		return s.refreshGrant(ctx)
	}

	ch := s.refreshGroup.DoChan(refreshKey, func() (any, error) {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()
		return nil, s.refreshGrant(gctx)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return &NetworkError{Method: http.MethodGet, URL: s.authBase + "token", Err: ctx.Err()}
	}
}

func (s *Session) refreshGrant(ctx context.Context) error {
	prev := s.cache.Get(ctx)
	if prev == nil {
		return ErrMissingCredential
	}

	q := url.Values{}
	q.Set("grant_type", "refresh_token")
	q.Set("refresh_token", prev.RefreshToken)
	out := s.exec.run(ctx, call{
		req:           Request{Method: http.MethodGet, Path: s.authBase + "token?" + q.Encode()},
		maxAttempts:   1,
		refreshExempt: true,
	})

	next, err := s.refreshedCredential(prev, out)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Abandoned by the caller; the server never rejected the token.
			return err
		}
		s.logger.Warn("refresh failed", zap.Error(err))
		s.signOut(ctx)
		return err
	}

	s.cache.Set(ctx, next)
	s.logger.Info("credential refreshed",
		zap.String("api_server", next.APIServer),
		zap.Time("expiry", next.Expiry))
	s.observers.each(func(o Observer) { o.OnRefreshed() })
	return nil
}

// refreshedCredential decodes the token response. Fields the server leaves
// out are carried over from the previous credential.
func (s *Session) refreshedCredential(prev *Credential, out outcome) (*Credential, error) {
	if out.err != nil {
		return nil, out.err
	}
	tr, err := Decode[tokenResponse](out.resp)
	if err != nil {
		return nil, err
	}
	if tr.RefreshToken == "" {
		tr.RefreshToken = prev.RefreshToken
	}
	if tr.APIServer == "" {
		tr.APIServer = prev.APIServer
	}
	if tr.TokenType == "" {
		tr.TokenType = prev.TokenType
	}
	return tr.credential(s.now())
}
