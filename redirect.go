package questauth

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Keys the authorization server puts in the redirect fragment.
const (
	paramAccessToken  = "access_token"
	paramRefreshToken = "refresh_token"
	paramAPIServer    = "api_server"
	paramExpiresIn    = "expires_in"
	paramTokenType    = "token_type"
)

var redirectParams = []string{
	paramAccessToken,
	paramRefreshToken,
	paramAPIServer,
	paramExpiresIn,
	paramTokenType,
}

// ParseRedirect parses the URL the authorization server redirected to after
// consent. The fragment is read as a query string: every '#' is replaced by
// '?' before parsing. All five credential keys must be present.
func ParseRedirect(redirectURL string, now time.Time) (*Credential, error) {
	u, err := url.Parse(strings.ReplaceAll(redirectURL, "#", "?"))
	if err != nil {
		return nil, &URLParsingError{URL: redirectURL, Reason: "malformed redirect URL", Err: err}
	}

	q := u.Query()
	for _, key := range redirectParams {
		if q.Get(key) == "" {
			return nil, &URLParsingError{URL: redirectURL, Reason: "missing " + key}
		}
	}

	if _, err := parseServerURL(q.Get(paramAPIServer)); err != nil {
		return nil, &URLParsingError{URL: redirectURL, Reason: "invalid api_server", Err: err}
	}

	return &Credential{
		AccessToken:  q.Get(paramAccessToken),
		RefreshToken: q.Get(paramRefreshToken),
		APIServer:    q.Get(paramAPIServer),
		TokenType:    q.Get(paramTokenType),
		Expiry:       now.Add(expiresIn(q.Get(paramExpiresIn))),
	}, nil
}

// expiresIn converts an expires_in value in seconds to a duration.
// Unparseable values count as zero, leaving the credential already stale.
func expiresIn(raw string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
