package questauth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryLayout is the timestamp layout used when a Credential is serialized.
// Millisecond precision, always written in UTC.
const ExpiryLayout = "2006-01-02T15:04:05.000Z07:00"

// Credential is the bearer credential for one authorized user.
type Credential struct {
	AccessToken  string
	RefreshToken string
	APIServer    string // absolute base URL for resource calls
	TokenType    string
	Expiry       time.Time
}

// credentialJSON is the persisted shape of a Credential
type credentialJSON struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	APIServer    string `json:"api_server"`
	TokenType    string `json:"token_type"`
	Expiry       string `json:"expiry"`
}

// Valid reports whether the credential has not yet expired at now.
// It is a status hint only; an expired credential is still sent and the
// server's 401 decides.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Expiry.After(now)
}

// IsExpired returns true if the access token has expired
func (c *Credential) IsExpired() bool {
	return !c.Valid(time.Now())
}

// HasRefreshToken returns true if a refresh token is available
func (c *Credential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// AuthorizationHeader returns the value for the Authorization header.
func (c *Credential) AuthorizationHeader() string {
	return c.TokenType + " " + c.AccessToken
}

// APIServerURL parses APIServer.
func (c *Credential) APIServerURL() (*url.URL, error) {
	return parseServerURL(c.APIServer)
}

// Clone returns a copy that shares nothing with c.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Equal compares two credentials, treating expiry at millisecond precision.
func (c *Credential) Equal(o *Credential) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.AccessToken == o.AccessToken &&
		c.RefreshToken == o.RefreshToken &&
		c.APIServer == o.APIServer &&
		c.TokenType == o.TokenType &&
		c.Expiry.Truncate(time.Millisecond).Equal(o.Expiry.Truncate(time.Millisecond))
}

// MarshalJSON implements json.Marshaler.
func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialJSON{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		APIServer:    c.APIServer,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry.UTC().Format(ExpiryLayout),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw credentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var expiry time.Time
	if raw.Expiry != "" {
		t, err := time.Parse(ExpiryLayout, raw.Expiry)
		if err != nil {
			return fmt.Errorf("invalid expiry %q: %w", raw.Expiry, err)
		}
		expiry = t
	}
	*c = Credential{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		APIServer:    raw.APIServer,
		TokenType:    raw.TokenType,
		Expiry:       expiry,
	}
	return nil
}

// Token converts the credential to an oauth2.Token. The API server is kept
// in the token's extra data under "api_server".
func (c *Credential) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
	return tok.WithExtra(map[string]any{"api_server": c.APIServer})
}

// CredentialFromToken builds a Credential from an oauth2.Token that carries
// an "api_server" extra.
func CredentialFromToken(tok *oauth2.Token) (*Credential, error) {
	if tok == nil {
		return nil, ErrMissingCredential
	}
	server, _ := tok.Extra("api_server").(string)
	if _, err := parseServerURL(server); err != nil {
		return nil, err
	}
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		APIServer:    server,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}, nil
}

// tokenResponse is the body returned by the refresh grant.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	APIServer    string      `json:"api_server"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    json.Number `json:"expires_in"`
}

func (r *tokenResponse) credential(now time.Time) (*Credential, error) {
	if r.AccessToken == "" {
		return nil, &DecodeError{Err: fmt.Errorf("token response has no access_token")}
	}
	if _, err := parseServerURL(r.APIServer); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &Credential{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		APIServer:    r.APIServer,
		TokenType:    r.TokenType,
		Expiry:       now.Add(expiresIn(string(r.ExpiresIn))),
	}, nil
}

func parseServerURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, &URLParsingError{URL: raw, Reason: "empty server URL"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &URLParsingError{URL: raw, Reason: "invalid server URL", Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &URLParsingError{URL: raw, Reason: "server URL must be absolute"}
	}
	return u, nil
}
