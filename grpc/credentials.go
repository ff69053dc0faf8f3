package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/panyam/questauth"
)

// DefaultMetadataKey is the gRPC metadata key the credential is sent under.
const DefaultMetadataKey = "authorization"

// Config holds the client-side auth settings.
type Config struct {
	// MetadataKey defaults to "authorization".
	MetadataKey string

	// MaxAttempts bounds sends of one unary call after Unauthenticated.
	// Defaults to questauth.DefaultMaxAttempts.
	MaxAttempts int

	// AllowInsecure lets PerRPCCredentials be used without TLS.
	// Should only be enabled in development/testing environments.
	AllowInsecure bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKey: DefaultMetadataKey,
		MaxAttempts: questauth.DefaultMaxAttempts,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKey
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = questauth.DefaultMaxAttempts
	}
}

func configOrDefault(c *Config) *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	out.EnsureDefaults()
	return &out
}

// PerRPCCredentials implements credentials.PerRPCCredentials from a session.
// An expired credential is refreshed before it is sent.
type PerRPCCredentials struct {
	session *questauth.Session
	config  *Config
}

// NewPerRPCCredentials creates PerRPCCredentials for session.
func NewPerRPCCredentials(session *questauth.Session, config *Config) *PerRPCCredentials {
	return &PerRPCCredentials{session: session, config: configOrDefault(config)}
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c *PerRPCCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	tok, err := c.session.TokenSource(ctx).Token()
	if err != nil {
		return nil, err
	}
	return map[string]string{c.config.MetadataKey: tok.Type() + " " + tok.AccessToken}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c *PerRPCCredentials) RequireTransportSecurity() bool {
	return !c.config.AllowInsecure
}

// withCredential returns ctx with the current credential set on the
// outgoing metadata, replacing any earlier value for the key.
func withCredential(ctx context.Context, cred *questauth.Credential, key string) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	md.Set(key, cred.AuthorizationHeader())
	return metadata.NewOutgoingContext(ctx, md)
}
